// Package typedstream extracts the plain-text run from a legacy NeXTSTEP
// "streamtyped" archive, the serialization Apple uses for the attributedBody
// column in chat.db. Only the text content is recovered; attribute runs
// (fonts, mentions, link metadata) are skipped.
package typedstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrNotTypedstream means the payload does not start with the
	// streamtyped magic.
	ErrNotTypedstream = errors.New("typedstream: missing streamtyped header")
	// ErrNoText means the archive contains no NSString run.
	ErrNoText = errors.New("typedstream: no text content found")
)

var (
	magic = []byte("\x04\x0bstreamtyped")
	// The string class is followed by these marker bytes before the
	// length-prefixed UTF-8 data.
	stringHeader = []byte{0x01, 0x94, 0x84, 0x01, 0x2b}
)

// classMarkers are the archived string classes whose payload is the message
// text, in the order they should be tried.
var classMarkers = [][]byte{
	[]byte("NSMutableString"),
	[]byte("NSString"),
}

// Decoder is the default chatdb rich-text decoder.
type Decoder struct{}

func (Decoder) Decode(payload []byte) (string, error) {
	return Extract(payload)
}

// Extract returns the text run of a streamtyped attributedBody archive.
func Extract(data []byte) (string, error) {
	if !bytes.HasPrefix(data, magic) {
		return "", ErrNotTypedstream
	}

	for _, class := range classMarkers {
		idx := bytes.Index(data, class)
		if idx < 0 {
			continue
		}
		rest := data[idx+len(class):]
		if !bytes.HasPrefix(rest, stringHeader) {
			continue
		}
		text, err := readLengthPrefixed(rest[len(stringHeader):])
		if err != nil {
			return "", err
		}
		return text, nil
	}
	return "", ErrNoText
}

// readLengthPrefixed reads a streamtyped length-prefixed byte run. Lengths
// below 0x80 are a single byte; 0x81 and 0x82 prefix little-endian 16- and
// 32-bit lengths respectively.
func readLengthPrefixed(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNoText
	}

	var length int
	switch {
	case data[0] < 0x80:
		length = int(data[0])
		data = data[1:]
	case data[0] == 0x81:
		if len(data) < 3 {
			return "", fmt.Errorf("typedstream: truncated 16-bit length")
		}
		length = int(binary.LittleEndian.Uint16(data[1:3]))
		data = data[3:]
	case data[0] == 0x82:
		if len(data) < 5 {
			return "", fmt.Errorf("typedstream: truncated 32-bit length")
		}
		length = int(binary.LittleEndian.Uint32(data[1:5]))
		data = data[5:]
	default:
		return "", fmt.Errorf("typedstream: unsupported length marker %#x", data[0])
	}

	if length > len(data) {
		return "", fmt.Errorf("typedstream: text length %d exceeds payload", length)
	}
	text := data[:length]
	if !utf8.Valid(text) {
		return "", fmt.Errorf("typedstream: text run is not valid UTF-8")
	}
	return string(text), nil
}
