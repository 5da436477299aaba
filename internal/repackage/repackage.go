// Package repackage rewrites archives without selected entries. Removal
// applies at every nesting level, and every retained entry keeps its bytes.
package repackage

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding"

	"github.com/buemura/jarhunter/internal/archive"
	"github.com/buemura/jarhunter/internal/log"
	"github.com/buemura/jarhunter/pkg/types"
)

// Options controls what is removed and where recursion happens.
type Options struct {
	// DeleteTargets are exact entry names to omit.
	DeleteTargets []string
	// ShadeSuffixes omit relocated copies of the targets.
	ShadeSuffixes []string
	// ScanZip also rewrites nested .zip entries.
	ScanZip bool
	// NestedJar enables rewriting of nested archives. Without it nested
	// archives are copied as they are.
	NestedJar bool
	// Charset decodes entry names that are not UTF-8.
	Charset encoding.Encoding
	// MaxDepth bounds recursion into nested archives. 0 means unlimited.
	MaxDepth int
}

func (o Options) shouldDelete(name string) bool {
	for _, t := range o.DeleteTargets {
		if name == t {
			return true
		}
	}
	for _, s := range o.ShadeSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// File rewrites the archive at srcPath into dst. The source is never
// modified.
func File(srcPath string, dst io.Writer, opts Options) error {
	c, err := archive.OpenFile(srcPath, archive.Options{Charset: opts.Charset})
	if err != nil {
		return err
	}
	defer c.Close()
	return Repackage(c, dst, opts)
}

// Repackage copies every entry of src into a new archive on dst, in order,
// omitting deleted entries and duplicate names. Entries are written STORED
// with sizes and CRC-32 in the local header.
func Repackage(src archive.Cursor, dst io.Writer, opts Options) error {
	return repackage(src, dst, opts, 0)
}

func repackage(src archive.Cursor, dst io.Writer, opts Options, depth int) error {
	zw := zip.NewWriter(dst)
	seen := make(map[string]bool)

	for {
		e, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if opts.shouldDelete(e.Name) {
			log.Debugf("removing %s", e.Name)
			continue
		}
		if seen[e.Name] {
			log.Debugf("dropping duplicate entry %s", e.Name)
			continue
		}
		seen[e.Name] = true

		if e.IsDir {
			if err := writeStored(zw, e, nil); err != nil {
				return err
			}
			continue
		}

		r, err := e.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("reading %s: %w", e.Name, err)
		}

		if opts.recurse(e.Name, depth) {
			data, err = rewriteNested(e.Name, data, opts, depth+1)
			if err != nil {
				return err
			}
		}

		if err := writeStored(zw, e, data); err != nil {
			return err
		}
	}

	return zw.Close()
}

func (o Options) recurse(name string, depth int) bool {
	if !o.NestedJar || !types.IsScanTarget(name, o.ScanZip) {
		return false
	}
	return o.MaxDepth == 0 || depth < o.MaxDepth
}

// Bytes rewrites an in-memory archive.
func Bytes(data []byte, opts Options) ([]byte, error) {
	return rewriteBytes(data, opts, 0)
}

func rewriteBytes(data []byte, opts Options, depth int) ([]byte, error) {
	c := archive.OpenBytes(data, archive.Options{Charset: opts.Charset})
	defer c.Close()

	var buf bytes.Buffer
	buf.Grow(len(data))
	if err := repackage(c, &buf, opts, depth); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rewriteNested(name string, data []byte, opts Options, depth int) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	out, err := rewriteBytes(data, opts, depth)
	if err == nil {
		return out, nil
	}
	if types.KindOf(name) == types.KindRar && errors.Is(err, archive.ErrBrokenArchive) {
		log.Debugf("copying non-zip rar %s as is: %v", name, err)
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", name, err)
}

func writeStored(zw *zip.Writer, e *archive.Entry, data []byte) error {
	fh := &zip.FileHeader{
		Name:               e.Name,
		Method:             zip.Store,
		Modified:           e.Modified,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	}
	w, err := zw.CreateRaw(fh)
	if err != nil {
		return fmt.Errorf("writing %s: %w", e.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", e.Name, err)
	}
	return nil
}
