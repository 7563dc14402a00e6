// Package encoding converts text written in legacy code pages to UTF-8.
// The resource compiler writes console output in the system code page on
// Windows, which is rarely UTF-8.
package encoding

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Codec decodes bytes from one code page. The zero value passes text
// through unchanged.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// Lookup returns the codec for an IANA charset name such as "IBM437",
// "windows-1252" or "EUC-KR". An empty name or "UTF-8" gives the zero Codec.
func Lookup(name string) (Codec, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return Codec{}, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return Codec{}, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return Codec{}, fmt.Errorf("encoding %q is not supported", name)
	}
	return Codec{name: name, enc: enc}, nil
}

// Name returns the charset name the codec was looked up with, or "" for UTF-8.
func (c Codec) Name() string {
	return c.name
}

// Decode converts data to a UTF-8 string.
// Returns the original bytes as a string if conversion fails.
func (c Codec) Decode(data []byte) string {
	if c.enc == nil {
		return string(data)
	}
	result, _, err := transform.Bytes(c.enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// DecodeIfNeeded decodes data unless it is already valid UTF-8.
// Plain ASCII compiler output is the common case and is returned as is.
func (c Codec) DecodeIfNeeded(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return c.Decode(data)
}
