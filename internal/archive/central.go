package archive

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"
)

type centralCursor struct {
	zr     *zip.Reader
	closer io.Closer
	opts   Options
	next   int
	rc     io.ReadCloser
}

func newCentralCursor(ra io.ReaderAt, size int64, closer io.Closer, opts Options) (*centralCursor, error) {
	zr, err := newZipReader(ra, size)
	if err != nil {
		return nil, err
	}
	return &centralCursor{zr: zr, closer: closer, opts: opts}, nil
}

// newZipReader also accepts archives with a prefix, such as self-executable
// jars that start with a shell script.
func newZipReader(ra io.ReaderAt, size int64) (*zip.Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err == nil || !errors.Is(err, zip.ErrFormat) {
		return zr, err
	}
	offset, oerr := prefixOffset(ra, size)
	if oerr != nil || offset <= 0 {
		return nil, err
	}
	return zip.NewReader(io.NewSectionReader(ra, offset, size-offset), size-offset)
}

func (c *centralCursor) Mode() Mode { return ModeRandomAccess }

func (c *centralCursor) Next() (*Entry, error) {
	if err := c.closeEntry(); err != nil {
		return nil, err
	}
	if c.next >= len(c.zr.File) {
		return nil, io.EOF
	}

	f := c.zr.File[c.next]
	c.next++

	name, err := decodeName(f.Name, f.Flags, c.opts.Charset)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Name:     name,
		IsDir:    isDirName(name),
		Method:   f.Method,
		Modified: f.Modified,
		Size:     int64(f.UncompressedSize64),
	}
	e.open = func() (io.Reader, error) {
		if err := c.closeEntry(); err != nil {
			return nil, err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, broken("%s: %v", name, err)
		}
		c.rc = rc
		return brokenReader{rc}, nil
	}
	return e, nil
}

func (c *centralCursor) closeEntry() error {
	if c.rc == nil {
		return nil
	}
	err := c.rc.Close()
	c.rc = nil
	return err
}

func (c *centralCursor) Close() error {
	err := c.closeEntry()
	if c.closer != nil {
		err = multierr.Append(err, c.closer.Close())
	}
	return err
}

const (
	directoryEndLen = 22
	maxCommentLen   = 0xffff
)

// prefixOffset locates the end-of-central-directory record and returns how
// many bytes precede the archive proper.
func prefixOffset(ra io.ReaderAt, size int64) (int64, error) {
	searchLen := int64(directoryEndLen + maxCommentLen)
	if searchLen > size {
		searchLen = size
	}
	buf := make([]byte, searchLen)
	if _, err := ra.ReadAt(buf, size-searchLen); err != nil && err != io.EOF {
		return 0, err
	}

	for i := len(buf) - directoryEndLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != directoryEndSignature {
			continue
		}
		dirSize := int64(binary.LittleEndian.Uint32(buf[i+12:]))
		dirOffset := int64(binary.LittleEndian.Uint32(buf[i+16:]))
		end := size - searchLen + int64(i)
		offset := end - dirSize - dirOffset
		if offset < 0 {
			return 0, broken("invalid directory offset")
		}
		return offset, nil
	}
	return 0, broken("end of central directory not found")
}
