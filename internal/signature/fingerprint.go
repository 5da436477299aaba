package signature

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// MD5Hex returns the lowercase hex MD5 digest of everything r yields.
func MD5Hex(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing entry: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
