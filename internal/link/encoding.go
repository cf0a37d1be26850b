package link

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// LookupEncoding returns the text encoding registered under name.
//
// An empty name, "utf8" and "utf-8" select UTF-8. Any other WHATWG
// encoding label is accepted, for example "windows-1252", "gbk" or
// "shift_jis".
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", "utf-8":
		return unicode.UTF8, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// codec converts between wire bytes and text with one encoding.
// Decoders and encoders are created per call, so a codec is safe for
// concurrent use.
type codec struct {
	enc encoding.Encoding
}

// decode converts exactly the given bytes to text. Invalid sequences are
// replaced rather than rejected by the x/text decoders.
func (c codec) decode(b []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decoding %d bytes: %w", len(b), err)
	}
	return string(out), nil
}

// encode converts text to wire bytes.
func (c codec) encode(s string) ([]byte, error) {
	out, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return out, nil
}
