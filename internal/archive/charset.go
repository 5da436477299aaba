package archive

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// utf8Flag is general purpose bit 11: the name is UTF-8 encoded.
const utf8Flag = 0x800

// DefaultFallback decodes names when no charset is configured. Code page 437
// is the legacy encoding of the ZIP format.
var DefaultFallback encoding.Encoding = charmap.CodePage437

// LookupCharset resolves an IANA or MIME charset name such as "EUC-KR",
// "windows-1252" or "Shift_JIS".
func LookupCharset(name string) (encoding.Encoding, error) {
	for _, idx := range []*ianaindex.Index{ianaindex.IANA, ianaindex.MIME} {
		enc, err := idx.Encoding(name)
		if err == nil && enc != nil {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("unsupported charset %q", name)
}

// CharsetName returns the IANA name of enc, or "" when it has none.
func CharsetName(enc encoding.Encoding) string {
	if enc == nil {
		return ""
	}
	name, err := ianaindex.IANA.Name(enc)
	if err != nil {
		return ""
	}
	return name
}

func decodeName(raw string, flags uint16, cs encoding.Encoding) (string, error) {
	if flags&utf8Flag != 0 || cs == nil {
		if !utf8.ValidString(raw) {
			return "", fmt.Errorf("%w: %q", ErrEncoding, raw)
		}
		return raw, nil
	}
	if isASCII(raw) {
		return raw, nil
	}
	name, err := cs.NewDecoder().String(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrEncoding, raw, err)
	}
	return name, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
