package types

import (
	"path"
	"strings"
)

// ArchiveKind is the closed set of archive types the scanner understands.
type ArchiveKind int

const (
	KindNone ArchiveKind = iota
	KindJar
	KindWar
	KindEar
	KindAar
	KindRar
	KindNar
	KindZip
)

var kindByExt = map[string]ArchiveKind{
	".jar": KindJar,
	".war": KindWar,
	".ear": KindEar,
	".aar": KindAar,
	".rar": KindRar,
	".nar": KindNar,
	".zip": KindZip,
}

func (k ArchiveKind) String() string {
	switch k {
	case KindJar:
		return "jar"
	case KindWar:
		return "war"
	case KindEar:
		return "ear"
	case KindAar:
		return "aar"
	case KindRar:
		return "rar"
	case KindNar:
		return "nar"
	case KindZip:
		return "zip"
	default:
		return "none"
	}
}

// KindOf classifies a file or entry name by extension, case-insensitively.
// Both '/' and the host separator are accepted.
func KindOf(name string) ArchiveKind {
	name = strings.ReplaceAll(name, "\\", "/")
	ext := strings.ToLower(path.Ext(name))
	return kindByExt[ext]
}

// Scannable reports whether the kind is opened for inspection. Zip is opt-in.
func (k ArchiveKind) Scannable(scanZip bool) bool {
	switch k {
	case KindNone:
		return false
	case KindZip:
		return scanZip
	default:
		return true
	}
}

// IsScanTarget reports whether name should be opened as an archive.
func IsScanTarget(name string, scanZip bool) bool {
	return KindOf(name).Scannable(scanZip)
}
