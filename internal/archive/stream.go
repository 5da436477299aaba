package archive

import (
	"bufio"
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
)

const (
	fileHeaderSignature      = 0x04034b50
	directoryHeaderSignature = 0x02014b50
	directoryEndSignature    = 0x06054b50
	dataDescriptorSignature  = 0x08074b50
	archiveExtraSignature    = 0x08064b50
	splitMarkerSignature     = 0x30304b50

	fileHeaderLen = 30
	zip64ExtraID  = 0x0001

	methodStore   = 0
	methodDeflate = 8

	flagEncrypted  = 0x1
	flagDescriptor = 0x8
)

// streamCursor parses local file headers in order without seeking. Stored
// entries that carry a data descriptor are delimited by searching for the
// descriptor, which strict readers refuse.
type streamCursor struct {
	r      *bufio.Reader
	closer io.Closer
	opts   Options
	first  bool
	done   bool
	cur    *streamEntry
}

type streamEntry struct {
	// raw bounds the compressed bytes when the header declares their size.
	raw *io.LimitedReader
	// body yields uncompressed bytes and checks the CRC at EOF.
	body io.Reader
	// unsupported is returned by Open for entries that cannot be decoded.
	unsupported error
}

func newStreamCursor(r *bufio.Reader, closer io.Closer, opts Options) *streamCursor {
	return &streamCursor{r: r, closer: closer, opts: opts, first: true}
}

func (c *streamCursor) Mode() Mode { return ModeStreaming }

func (c *streamCursor) Close() error {
	c.cur = nil
	c.done = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *streamCursor) Next() (*Entry, error) {
	if c.done {
		return nil, io.EOF
	}
	if err := c.skipCurrent(); err != nil {
		return nil, err
	}

	var sigBuf [4]byte
	n, err := io.ReadFull(c.r, sigBuf[:])
	if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
		c.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, broken("reading signature: %v", err)
	}

	sig := binary.LittleEndian.Uint32(sigBuf[:])
	if c.first && sig == splitMarkerSignature {
		c.first = false
		return c.Next()
	}
	c.first = false

	switch sig {
	case fileHeaderSignature:
	case directoryHeaderSignature, directoryEndSignature, archiveExtraSignature:
		c.done = true
		return nil, io.EOF
	default:
		return nil, broken("unexpected record signature 0x%08x", sig)
	}

	return c.readEntry()
}

func (c *streamCursor) readEntry() (*Entry, error) {
	var hdr [fileHeaderLen - 4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return nil, broken("reading local header: %v", err)
	}

	b := readBuf(hdr[:])
	b.uint16() // version needed
	flags := b.uint16()
	method := b.uint16()
	modTime := b.uint16()
	modDate := b.uint16()
	crc := b.uint32()
	compressed := uint64(b.uint32())
	size := uint64(b.uint32())
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())

	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(c.r, nameBuf); err != nil {
		return nil, broken("reading entry name: %v", err)
	}
	extra := make([]byte, extraLen)
	if _, err := io.ReadFull(c.r, extra); err != nil {
		return nil, broken("reading extra field: %v", err)
	}

	if compressed == 0xffffffff || size == 0xffffffff {
		compressed, size = zip64Sizes(extra, compressed, size)
	}

	name, err := decodeName(string(nameBuf), flags, c.opts.Charset)
	if err != nil {
		return nil, err
	}

	descriptor := flags&flagDescriptor != 0
	e := &Entry{
		Name:     name,
		IsDir:    isDirName(name),
		Method:   method,
		Modified: msDosTimeToTime(modDate, modTime),
		Size:     int64(size),
	}
	if descriptor {
		e.Size = -1
	}

	se := &streamEntry{}
	if !descriptor {
		se.raw = &io.LimitedReader{R: c.r, N: int64(compressed)}
	}

	switch {
	case flags&flagEncrypted != 0:
		se.unsupported = broken("%s: encrypted entries are not supported", name)
	case method == methodStore && !descriptor:
		se.body = se.raw
	case method == methodStore:
		se.body = &storedDescriptorReader{r: c.r}
	case method == methodDeflate && !descriptor:
		se.body = flate.NewReader(bufio.NewReaderSize(se.raw, 4096))
	case method == methodDeflate:
		// The bufio.Reader is an io.ByteReader, so inflating stops exactly
		// at the end of the deflate stream and the descriptor follows.
		se.body = flate.NewReader(c.r)
	default:
		se.unsupported = broken("%s: unsupported compression method %d", name, method)
	}

	if se.unsupported != nil && descriptor {
		return nil, se.unsupported
	}

	if se.body != nil {
		se.body = &checksumReader{
			r:          brokenReader{se.body},
			src:        c.r,
			hash:       crc32.NewIEEE(),
			crc:        crc,
			size:       size,
			descriptor: descriptor,
		}
	}

	c.cur = se
	e.open = func() (io.Reader, error) {
		if se.unsupported != nil {
			return nil, se.unsupported
		}
		return se.body, nil
	}
	return e, nil
}

// skipCurrent positions the reader after the current entry's data.
func (c *streamCursor) skipCurrent() error {
	se := c.cur
	c.cur = nil
	if se == nil {
		return nil
	}
	if se.raw != nil {
		if _, err := io.Copy(io.Discard, se.raw); err != nil {
			return broken("skipping entry: %v", err)
		}
		if se.raw.N > 0 {
			return broken("truncated entry")
		}
		return nil
	}
	if _, err := io.Copy(io.Discard, se.body); err != nil {
		return err
	}
	return nil
}

// checksumReader verifies CRC-32 and size once the payload is exhausted,
// reading the data descriptor first when the header deferred them.
type checksumReader struct {
	r          io.Reader
	src        *bufio.Reader
	hash       hash.Hash32
	crc        uint32
	size       uint64
	descriptor bool
	n          uint64
	err        error
}

func (c *checksumReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.r.Read(p)
	c.hash.Write(p[:n])
	c.n += uint64(n)
	if err == nil {
		return n, nil
	}
	if err == io.EOF {
		if c.descriptor {
			crc, size, derr := readDataDescriptor(c.src)
			if derr != nil {
				err = derr
			} else {
				c.crc, c.size = crc, size
			}
		}
		if err == io.EOF {
			if c.n != c.size {
				err = broken("size mismatch: got %d, want %d", c.n, c.size)
			} else if c.hash.Sum32() != c.crc {
				err = broken("invalid checksum")
			}
		}
	}
	c.err = err
	return n, err
}

// readDataDescriptor reads an optional-signature descriptor. Both the 32-bit
// and the zip64 layouts are recognized.
func readDataDescriptor(r *bufio.Reader) (crc uint32, size uint64, err error) {
	head, err := r.Peek(4)
	if err != nil {
		return 0, 0, broken("reading data descriptor: %v", err)
	}
	if binary.LittleEndian.Uint32(head) == dataDescriptorSignature {
		r.Discard(4)
	}

	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, broken("reading data descriptor: %v", err)
	}
	crc = binary.LittleEndian.Uint32(buf[0:])
	size = uint64(binary.LittleEndian.Uint32(buf[8:]))

	// A zip64 descriptor has 8-byte sizes. Tell the two apart by where the
	// next record signature sits.
	next, err := r.Peek(12)
	if err == nil && !isRecordSignature(binary.LittleEndian.Uint32(next[0:])) &&
		isRecordSignature(binary.LittleEndian.Uint32(next[8:])) {
		size = binary.LittleEndian.Uint64(next[0:8])
		r.Discard(8)
	}
	return crc, size, nil
}

func isRecordSignature(sig uint32) bool {
	switch sig {
	case fileHeaderSignature, directoryHeaderSignature, directoryEndSignature, archiveExtraSignature:
		return true
	}
	return false
}

// storedDescriptorReader yields a stored entry of unknown length. The entry
// ends where a descriptor signature is followed by a compressed size equal to
// the number of bytes already produced.
type storedDescriptorReader struct {
	r    *bufio.Reader
	n    uint64
	done bool
}

func (s *storedDescriptorReader) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	i := 0
	for i < len(p) {
		if b, err := s.r.Peek(1); err == nil && b[0] == 'P' && s.atDescriptor() {
			s.done = true
			break
		}
		c, err := s.r.ReadByte()
		if err != nil {
			if i > 0 {
				return i, nil
			}
			return 0, broken("stored entry without data descriptor: %v", err)
		}
		p[i] = c
		i++
		s.n++
	}
	if s.done && i == 0 {
		return 0, io.EOF
	}
	return i, nil
}

func (s *storedDescriptorReader) atDescriptor() bool {
	head, err := s.r.Peek(16)
	if err != nil || len(head) < 16 {
		return false
	}
	if binary.LittleEndian.Uint32(head) != dataDescriptorSignature {
		return false
	}
	if uint64(binary.LittleEndian.Uint32(head[8:])) == s.n {
		return true
	}
	if zip64, err := s.r.Peek(24); err == nil && binary.LittleEndian.Uint64(zip64[8:]) == s.n {
		return true
	}
	return false
}

func zip64Sizes(extra []byte, compressed, size uint64) (uint64, uint64) {
	b := readBuf(extra)
	for len(b) >= 4 {
		id := b.uint16()
		n := int(b.uint16())
		if len(b) < n {
			break
		}
		field := readBuf(b[:n])
		b = b[n:]
		if id != zip64ExtraID {
			continue
		}
		if size == 0xffffffff && len(field) >= 8 {
			size = field.uint64()
		}
		if compressed == 0xffffffff && len(field) >= 8 {
			compressed = field.uint64()
		}
	}
	return compressed, size
}

func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0,
		time.UTC,
	)
}

type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}
