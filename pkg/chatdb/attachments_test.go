package chatdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/ptr"
)

func newResolver(t *testing.T) (*AttachmentResolver, string) {
	t.Helper()
	root := t.TempDir()
	resolver, err := NewAttachmentResolver(root, zerolog.Nop())
	require.NoError(t, err)
	return resolver, root
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestResolveFromGUIDLayout(t *testing.T) {
	resolver, root := newResolver(t)
	guid := "AB12CD34-0000-0000-0000-000000000000"
	target := filepath.Join(root, "AB", "12", guid, "photo.heic")
	writeFile(t, target, []byte("x"))

	att := &Attachment{GUID: guid, Filename: ptr.Ptr("photo.heic")}
	require.Equal(t, target, resolver.Resolve(att))
}

func TestResolveFromGUIDFirstFileFallback(t *testing.T) {
	resolver, root := newResolver(t)
	guid := "AB12CD34-0000-0000-0000-000000000000"
	target := filepath.Join(root, "AB", "12", guid, "whatever.bin")
	writeFile(t, target, []byte("x"))

	att := &Attachment{GUID: guid}
	require.Equal(t, target, resolver.Resolve(att))
}

func TestResolvePrefixedGUID(t *testing.T) {
	resolver, root := newResolver(t)
	guid := "bp-EF56AA00-0000-0000-0000-000000000000"
	target := filepath.Join(root, "EF", "56", guid, "file.dat")
	writeFile(t, target, []byte("x"))

	att := &Attachment{GUID: guid}
	require.Equal(t, target, resolver.Resolve(att))
}

func TestResolveRejectsEscapingFilename(t *testing.T) {
	resolver, root := newResolver(t)
	outside := filepath.Join(filepath.Dir(root), "escape.txt")
	writeFile(t, outside, []byte("secret"))

	att := &Attachment{GUID: "XX", Filename: ptr.Ptr(outside)}
	require.Empty(t, resolver.Resolve(att))

	att = &Attachment{GUID: "XX", Filename: ptr.Ptr("../escape.txt")}
	require.Empty(t, resolver.Resolve(att))
}

func TestResolveMissingFile(t *testing.T) {
	resolver, _ := newResolver(t)
	att := &Attachment{GUID: "AB12CD34-0000", Filename: ptr.Ptr("gone.png")}
	require.Empty(t, resolver.Resolve(att))
}

func TestDetectMimeTypePrefersStoredValue(t *testing.T) {
	resolver, _ := newResolver(t)
	att := &Attachment{GUID: "XX", MimeType: ptr.Ptr("image/heic")}
	require.Equal(t, "image/heic", resolver.DetectMimeType(att))
}

func TestDetectMimeTypeSniffsFile(t *testing.T) {
	resolver, root := newResolver(t)
	guid := "AB12CD34-0000-0000-0000-000000000000"
	target := filepath.Join(root, "AB", "12", guid, "note")
	// PNG magic bytes.
	writeFile(t, target, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})

	att := &Attachment{GUID: guid}
	require.Equal(t, "image/png", resolver.DetectMimeType(att))
}

func TestDetectMimeTypeUnresolvable(t *testing.T) {
	resolver, _ := newResolver(t)
	att := &Attachment{GUID: "nope"}
	require.Empty(t, resolver.DetectMimeType(att))
}
