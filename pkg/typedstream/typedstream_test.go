package typedstream

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// payload assembles a minimal streamtyped archive around the given string
// class and length-prefixed text bytes.
func payload(class string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x04\x0bstreamtyped")
	buf.Write([]byte{0x81, 0xe8, 0x03, 0x84, 0x01, 0x40, 0x84, 0x84, 0x84})
	buf.WriteString("NSMutableAttributedString")
	buf.Write([]byte{0x00, 0x84, 0x84})
	buf.WriteString(class)
	buf.Write([]byte{0x01, 0x94, 0x84, 0x01, 0x2b})
	buf.Write(body)
	buf.Write([]byte{0x86, 0x84})
	return buf.Bytes()
}

func shortText(text string) []byte {
	return append([]byte{byte(len(text))}, text...)
}

func TestExtractShortString(t *testing.T) {
	text, err := Extract(payload("NSString", shortText("hello")))
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestExtractMutableString(t *testing.T) {
	text, err := Extract(payload("NSMutableString", shortText("hi there")))
	require.NoError(t, err)
	require.Equal(t, "hi there", text)
}

func TestExtractLongString(t *testing.T) {
	long := strings.Repeat("a", 300)
	body := append([]byte{0x81, 0x2c, 0x01}, long...) // 0x012c = 300, little-endian
	text, err := Extract(payload("NSString", body))
	require.NoError(t, err)
	require.Equal(t, long, text)
}

func TestExtractUnicode(t *testing.T) {
	text, err := Extract(payload("NSString", shortText("héllo 🎉")))
	require.NoError(t, err)
	require.Equal(t, "héllo 🎉", text)
}

func TestExtractMissingMagic(t *testing.T) {
	_, err := Extract([]byte("not a typedstream"))
	require.ErrorIs(t, err, ErrNotTypedstream)
}

func TestExtractNoTextRun(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("\x04\x0bstreamtyped")
	buf.WriteString("NSDictionary")
	_, err := Extract(buf.Bytes())
	require.ErrorIs(t, err, ErrNoText)
}

func TestExtractTruncatedLength(t *testing.T) {
	body := []byte{0x81, 0x2c} // missing second length byte
	_, err := Extract(payload("NSString", body))
	require.Error(t, err)
}

func TestExtractOverlongLength(t *testing.T) {
	body := []byte{0x20, 'h', 'i'} // claims 32 bytes, has 2 (plus trailer)
	_, err := Extract(payload("NSString", body))
	require.Error(t, err)
}

func TestDecoderImplementsExtract(t *testing.T) {
	text, err := Decoder{}.Decode(payload("NSString", shortText("via decoder")))
	require.NoError(t, err)
	require.Equal(t, "via decoder", text)
}
