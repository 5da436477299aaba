package fixer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"

	"github.com/buemura/jarhunter/internal/archive"
	"github.com/buemura/jarhunter/internal/log"
)

var isWindows = runtime.GOOS == "windows"

// backupEntryName maps a .bak file to the archive entry that records where
// it came from: the absolute original path, with the drive colon dropped
// on Windows.
func backupEntryName(backup string, windows bool) string {
	name := strings.TrimSuffix(backup, BackupSuffix)
	if windows {
		name = strings.ReplaceAll(name, `\`, "/")
		if len(name) >= 2 && name[1] == ':' {
			name = name[:1] + name[2:]
		}
	}
	return name
}

// restorePath reverses backupEntryName.
func restorePath(name string, windows bool) (string, error) {
	if windows {
		if len(name) >= 2 && name[1] == '/' {
			return name[:1] + ":" + name[1:], nil
		}
		if strings.HasPrefix(name, "//") {
			return name, nil
		}
		return "", fmt.Errorf("not an absolute path: %s", name)
	}
	if !strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("not an absolute path: %s", name)
	}
	return name, nil
}

func writeBackupArchive(name string, backups []string) (err error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(name)
		}
	}()

	zw := zip.NewWriter(f)
	for _, b := range backups {
		abs, aerr := filepath.Abs(b)
		if aerr != nil {
			abs = b
		}
		if err = addFile(zw, backupEntryName(abs, isWindows), b); err != nil {
			zw.Close()
			f.Close()
			return err
		}
	}
	return multierr.Combine(zw.Close(), f.Sync(), f.Close())
}

func addFile(zw *zip.Writer, name, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	fh, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	fh.Name = name
	fh.Method = zip.Deflate

	w, err := zw.CreateHeader(fh)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// RestoreResult lists what a restore did.
type RestoreResult struct {
	Restored []string
	Failed   map[string]error
}

// Restore writes every file in a backup archive back to its original path.
// A failed entry does not stop the others.
func Restore(backupArchive string, out io.Writer) (*RestoreResult, error) {
	c, err := archive.OpenFile(backupArchive, archive.Options{Charset: archive.DefaultFallback})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	res := &RestoreResult{Failed: make(map[string]error)}
	for {
		e, err := c.Next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		if e.IsDir {
			continue
		}

		target, err := restorePath(e.Name, isWindows)
		if err == nil {
			var r io.Reader
			if r, err = e.Open(); err == nil {
				err = restoreOne(r, target)
			}
		}
		if err != nil {
			res.Failed[e.Name] = err
			log.Errorf("Cannot restore %s: %v", e.Name, err)
			continue
		}
		res.Restored = append(res.Restored, target)
		fmt.Fprintf(out, "Restored: %s\n", target)
	}
}

// restoreOne replaces the content of target with r. The data is staged next
// to target first, so a read or checksum failure leaves target as it was.
func restoreOne(r io.Reader, target string) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".restore-*")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return overwrite(tmp, target)
}

// overwrite truncates target in place and copies r into it, so the file
// keeps its inode.
func overwrite(r io.Reader, target string) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return multierr.Append(f.Sync(), f.Close())
}
