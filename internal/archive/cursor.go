// Package archive reads ZIP-family containers entry by entry. A Cursor is
// backed either by the central directory of a random-access source or by a
// forward-only parser of local file headers, which is the only option for
// archives nested inside another archive's entry stream.
package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/text/encoding"
)

var (
	// ErrBrokenArchive reports a corrupt or truncated container.
	ErrBrokenArchive = errors.New("broken archive")
	// ErrEncoding reports an entry name that cannot be decoded with the
	// active charset.
	ErrEncoding = errors.New("malformed entry name")
)

// Mode tells which backend produced a cursor.
type Mode int

const (
	ModeRandomAccess Mode = iota
	ModeStreaming
)

func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "random-access"
}

// Options control how entry names are decoded.
type Options struct {
	// Charset decodes names of entries without the UTF-8 flag. Nil means
	// names must be valid UTF-8.
	Charset encoding.Encoding
}

// Entry is one archive member. Its reader is valid until the cursor moves.
type Entry struct {
	Name     string
	IsDir    bool
	Method   uint16
	Modified time.Time
	// Size is the uncompressed size, or -1 when the stream does not declare it.
	Size int64

	open func() (io.Reader, error)
}

// Open returns the entry's uncompressed content.
func (e *Entry) Open() (io.Reader, error) {
	if e.open == nil {
		return bytes.NewReader(nil), nil
	}
	return e.open()
}

// Cursor walks archive entries forward. Next returns io.EOF after the last
// entry.
type Cursor interface {
	Next() (*Entry, error)
	Mode() Mode
	Close() error
}

// OpenFile opens an archive on disk. The central directory is used when it
// can be read; otherwise the file is parsed as a stream of local headers.
func OpenFile(path string, opts Options) (Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if c, err := newCentralCursor(f, info.Size(), f, opts); err == nil {
		return c, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return newStreamCursor(bufio.NewReaderSize(f, 32<<10), f, opts), nil
}

// OpenBytes opens an archive held in memory, preferring the central directory.
func OpenBytes(b []byte, opts Options) Cursor {
	if c, err := newCentralCursor(bytes.NewReader(b), int64(len(b)), nil, opts); err == nil {
		return c
	}
	return NewStream(bytes.NewReader(b), opts)
}

// NewStream parses r as a sequence of local file headers. Closing the cursor
// does not close r.
func NewStream(r io.Reader, opts Options) Cursor {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 32<<10)
	}
	return newStreamCursor(br, nil, opts)
}

func broken(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBrokenArchive, fmt.Sprintf(format, args...))
}

// brokenReader maps read failures other than io.EOF to ErrBrokenArchive.
type brokenReader struct {
	r io.Reader
}

func (b brokenReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && !errors.Is(err, ErrBrokenArchive) {
		err = fmt.Errorf("%w: %v", ErrBrokenArchive, err)
	}
	return n, err
}

func isDirName(name string) bool {
	return strings.HasSuffix(name, "/")
}
