package walker

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/disk"
)

// DefaultExcludeFS are filesystem types skipped unless overridden.
var DefaultExcludeFS = []string{"nfs", "tmpfs", "devtmpfs", "iso9660"}

var networkFS = map[string]bool{
	"nfs": true, "nfs4": true, "cifs": true, "smbfs": true, "smb2": true,
	"afpfs": true, "9p": true, "fuse.sshfs": true, "webdav": true,
}

// partitions is replaced in tests.
var partitions = disk.Partitions

// AllDrives lists the mount points of local partitions. Network shares are
// skipped.
func AllDrives() ([]string, error) {
	parts, err := partitions(false)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	seen := make(map[string]bool)
	var roots []string
	for _, p := range parts {
		if networkFS[strings.ToLower(p.Fstype)] || strings.HasPrefix(p.Device, `\\`) || strings.HasPrefix(p.Device, "//") {
			continue
		}
		if p.Mountpoint == "" || seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true
		roots = append(roots, p.Mountpoint)
	}
	sort.Strings(roots)
	return roots, nil
}

// DriveRoots converts drive letters like "c" into root paths. Windows only.
func DriveRoots(letters []string) ([]string, error) {
	if runtime.GOOS != "windows" {
		return nil, errors.New("--drives is supported on Windows only")
	}
	if len(letters) == 0 {
		return nil, errors.New("specify drive letters")
	}
	var roots []string
	for _, l := range letters {
		l = strings.TrimSpace(l)
		if len(l) != 1 || !isLetter(l[0]) {
			return nil, fmt.Errorf("invalid drive letter: %s", l)
		}
		root := strings.ToUpper(l) + `:\`
		if _, err := os.Stat(root); err != nil {
			return nil, fmt.Errorf("unknown drive: %s", root)
		}
		roots = append(roots, root)
	}
	return roots, nil
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// ExcludedMounts returns the mount points whose filesystem type is in
// fsTypes. An empty fsTypes means DefaultExcludeFS.
func ExcludedMounts(fsTypes []string) ([]string, error) {
	if len(fsTypes) == 0 {
		fsTypes = DefaultExcludeFS
	}
	want := make(map[string]bool, len(fsTypes))
	for _, t := range fsTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			want[t] = true
		}
	}

	parts, err := partitions(true)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	var mounts []string
	for _, p := range parts {
		if want[strings.ToLower(p.Fstype)] {
			mounts = append(mounts, p.Mountpoint)
		}
	}
	return mounts, nil
}
