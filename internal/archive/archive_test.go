package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

type testEntry struct {
	name    string
	body    string
	method  uint16
	nonUTF8 bool
}

func buildZip(t *testing.T, entries ...testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method, NonUTF8: e.nonUTF8})
		require.NoError(t, err)
		_, err = io.WriteString(w, e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// storedWithDescriptor writes a single stored entry whose sizes are deferred
// to a data descriptor, followed by a central directory signature.
func storedWithDescriptor(name, body string) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	hdr := make([]byte, fileHeaderLen)
	le.PutUint32(hdr[0:], fileHeaderSignature)
	le.PutUint16(hdr[4:], 10)
	le.PutUint16(hdr[6:], flagDescriptor)
	le.PutUint16(hdr[8:], methodStore)
	le.PutUint16(hdr[26:], uint16(len(name)))
	buf.Write(hdr)
	buf.WriteString(name)
	buf.WriteString(body)

	desc := make([]byte, 16)
	le.PutUint32(desc[0:], dataDescriptorSignature)
	le.PutUint32(desc[4:], crc32.ChecksumIEEE([]byte(body)))
	le.PutUint32(desc[8:], uint32(len(body)))
	le.PutUint32(desc[12:], uint32(len(body)))
	buf.Write(desc)

	sig := make([]byte, 4)
	le.PutUint32(sig, directoryHeaderSignature)
	buf.Write(sig)
	return buf.Bytes()
}

func collect(t *testing.T, c Cursor) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for {
		e, err := c.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		r, err := e.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(r)
		require.NoError(t, err)
		out[e.Name] = string(b)
	}
}

func sampleEntries() []testEntry {
	return []testEntry{
		{name: "META-INF/", method: zip.Store},
		{name: "META-INF/MANIFEST.MF", body: "Manifest-Version: 1.0\n", method: zip.Deflate},
		{name: "a/b/C.class", body: "cafebabe", method: zip.Store},
	}
}

func TestOpenFile_RandomAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.jar")
	require.NoError(t, os.WriteFile(path, buildZip(t, sampleEntries()...), 0o644))

	c, err := OpenFile(path, Options{})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, ModeRandomAccess, c.Mode())
	got := collect(t, c)
	assert.Equal(t, map[string]string{
		"META-INF/":            "",
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\n",
		"a/b/C.class":          "cafebabe",
	}, got)
}

func TestOpenFile_SelfExecutablePrefix(t *testing.T) {
	data := append([]byte("#!/bin/sh\nexec java -jar \"$0\" \"$@\"\n"), buildZip(t, sampleEntries()...)...)
	path := filepath.Join(t.TempDir(), "app.jar")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := OpenFile(path, Options{})
	require.NoError(t, err)
	defer c.Close()

	got := collect(t, c)
	assert.Equal(t, "cafebabe", got["a/b/C.class"])
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.jar"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewStream_MatchesRandomAccess(t *testing.T) {
	data := buildZip(t, sampleEntries()...)

	stream := NewStream(bytes.NewReader(data), Options{})
	defer stream.Close()
	assert.Equal(t, ModeStreaming, stream.Mode())

	random := OpenBytes(data, Options{})
	defer random.Close()

	assert.Equal(t, collect(t, random), collect(t, stream))
}

func TestNewStream_SkipsUnreadEntries(t *testing.T) {
	data := buildZip(t, sampleEntries()...)
	c := NewStream(bytes.NewReader(data), Options{})

	var names []string
	for {
		e, err := c.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"META-INF/", "META-INF/MANIFEST.MF", "a/b/C.class"}, names)
}

func TestNewStream_StoredWithDataDescriptor(t *testing.T) {
	data := storedWithDescriptor("org/Foo.class", "stored-bytes-with-descriptor")

	c := NewStream(bytes.NewReader(data), Options{})
	got := collect(t, c)
	assert.Equal(t, map[string]string{"org/Foo.class": "stored-bytes-with-descriptor"}, got)
}

func TestNewStream_StoredWithDataDescriptor_SkippedUnread(t *testing.T) {
	data := storedWithDescriptor("org/Foo.class", "PK\x07\x08 looks like a descriptor but is not")

	c := NewStream(bytes.NewReader(data), Options{})
	e, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), e.Size)

	_, err = c.Next()
	assert.Equal(t, io.EOF, err)
}

func TestNewStream_Empty(t *testing.T) {
	c := NewStream(bytes.NewReader(nil), Options{})
	_, err := c.Next()
	assert.Equal(t, io.EOF, err)
}

func TestNewStream_Garbage(t *testing.T) {
	c := NewStream(bytes.NewReader([]byte("Rar!\x1a\x07\x01\x00 not a zip at all")), Options{})
	_, err := c.Next()
	assert.ErrorIs(t, err, ErrBrokenArchive)
}

func TestNewStream_Truncated(t *testing.T) {
	data := buildZip(t, testEntry{name: "big.bin", body: string(bytes.Repeat([]byte("x"), 4096)), method: zip.Store})
	c := NewStream(bytes.NewReader(data[:200]), Options{})

	e, err := c.Next()
	require.NoError(t, err)
	r, err := e.Open()
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, ErrBrokenArchive)
}

func TestNewStream_ChecksumMismatch(t *testing.T) {
	data := buildZip(t, testEntry{name: "a.txt", body: "hello world", method: zip.Store})
	i := bytes.Index(data, []byte("hello world"))
	require.Greater(t, i, 0)
	data[i] = 'j'

	c := NewStream(bytes.NewReader(data), Options{})
	e, err := c.Next()
	require.NoError(t, err)
	r, err := e.Open()
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, ErrBrokenArchive)
}

func TestNonUTF8Names(t *testing.T) {
	// "é.txt" in code page 437.
	raw := "\x82.txt"
	data := buildZip(t, testEntry{name: raw, body: "x", method: zip.Store, nonUTF8: true})

	t.Run("strict", func(t *testing.T) {
		c := NewStream(bytes.NewReader(data), Options{})
		_, err := c.Next()
		assert.True(t, errors.Is(err, ErrEncoding))

		c = OpenBytes(data, Options{})
		_, err = c.Next()
		assert.True(t, errors.Is(err, ErrEncoding))
	})

	t.Run("fallback", func(t *testing.T) {
		c := NewStream(bytes.NewReader(data), Options{Charset: charmap.CodePage437})
		e, err := c.Next()
		require.NoError(t, err)
		assert.Equal(t, "é.txt", e.Name)
	})
}

func TestLookupCharset(t *testing.T) {
	enc, err := LookupCharset("EUC-KR")
	require.NoError(t, err)
	assert.NotNil(t, enc)
	assert.Equal(t, "EUC-KR", CharsetName(enc))

	_, err = LookupCharset("klingon")
	assert.Error(t, err)
}

func TestMsDosTime(t *testing.T) {
	// 2021-12-10 13:45:30
	date := uint16((2021-1980)<<9 | 12<<5 | 10)
	tm := uint16(13<<11 | 45<<5 | 15)
	got := msDosTimeToTime(date, tm)
	assert.Equal(t, 2021, got.Year())
	assert.Equal(t, 13, got.Hour())
	assert.Equal(t, 30, got.Second())
}
