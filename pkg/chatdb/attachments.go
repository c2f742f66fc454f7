package chatdb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// AttachmentResolver locates attachment files on disk from their stored
// metadata. Every returned path is confined to the attachments root; stored
// filenames pointing elsewhere are rejected. Only paths and stat results are
// used — attachment contents stay untouched except for optional MIME
// detection.
type AttachmentResolver struct {
	root string
	log  zerolog.Logger
}

// DefaultAttachmentsRoot returns the platform-standard attachment directory
// (~/Library/Messages/Attachments).
func DefaultAttachmentsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, "Library", "Messages", "Attachments"), nil
}

// NewAttachmentResolver creates a resolver rooted at the given directory. An
// empty root resolves the platform default.
func NewAttachmentResolver(root string, log zerolog.Logger) (*AttachmentResolver, error) {
	if root == "" {
		var err error
		root, err = DefaultAttachmentsRoot()
		if err != nil {
			return nil, err
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve attachments root: %w", err)
	}
	return &AttachmentResolver{root: abs, log: log}, nil
}

// Root returns the confinement root.
func (r *AttachmentResolver) Root() string {
	return r.root
}

// Resolve returns the on-disk path for an attachment, or "" when no file can
// be located inside the root. The stored filename is tried first (absolute
// and ~-prefixed forms included), then the GUID-derived directory layout
// root/xx/yy/GUID/<filename>.
func (r *AttachmentResolver) Resolve(att *Attachment) string {
	var filename string
	if att.Filename != nil {
		filename = *att.Filename
	} else if att.TransferName != nil {
		filename = *att.TransferName
	}

	if filename != "" {
		if path := r.resolveStoredFilename(filename); path != "" {
			return path
		}
	}
	return r.resolveFromGUID(att.GUID, filepath.Base(filename))
}

func (r *AttachmentResolver) resolveStoredFilename(filename string) string {
	candidate := filename
	if strings.HasPrefix(candidate, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		candidate = filepath.Join(home, candidate[2:])
	}
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.root, candidate)
	}
	return r.confined(candidate)
}

// resolveFromGUID checks the layout Messages uses on disk: two levels of
// subdirectory derived from the GUID, then a directory named after the GUID
// itself. Prefixed GUIDs (bp-, sms-) derive the levels from the segment after
// the prefix.
func (r *AttachmentResolver) resolveFromGUID(guid, filename string) string {
	parts := strings.Split(guid, "-")
	if len(parts) < 2 {
		return ""
	}
	hashPart := parts[0]
	switch parts[0] {
	case "bp", "sms", "iMessage":
		hashPart = parts[1]
	}
	if len(hashPart) < 2 {
		return ""
	}
	dir1 := hashPart[:2]
	dir2 := "00"
	if len(hashPart) >= 4 {
		dir2 = hashPart[2:4]
	}

	guidDir := filepath.Join(r.root, dir1, dir2, guid)
	info, err := os.Stat(guidDir)
	if err != nil || !info.IsDir() {
		return ""
	}

	if filename != "" && filename != "." {
		if path := r.confined(filepath.Join(guidDir, filename)); path != "" {
			return path
		}
	}

	// No usable filename: take the first regular file in the GUID directory.
	entries, err := os.ReadDir(guidDir)
	if err != nil {
		r.log.Debug().Err(err).Str("guid", guid).Msg("Failed to list attachment directory")
		return ""
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			if path := r.confined(filepath.Join(guidDir, entry.Name())); path != "" {
				return path
			}
		}
	}
	return ""
}

// confined returns the cleaned path when it is an existing regular file under
// the root, else "".
func (r *AttachmentResolver) confined(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		r.log.Warn().Str("path", path).Str("root", r.root).
			Msg("Attachment path rejected: outside allowed root")
		return ""
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return abs
}

// DetectMimeType returns the attachment's MIME type, sniffing the on-disk
// file when the stored mime_type column is null and the file is locally
// resolvable. Returns "" when neither source yields a type.
func (r *AttachmentResolver) DetectMimeType(att *Attachment) string {
	if att.MimeType != nil && *att.MimeType != "" {
		return *att.MimeType
	}
	path := r.Resolve(att)
	if path == "" {
		return ""
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		r.log.Debug().Err(err).Str("path", path).Msg("MIME detection failed")
		return ""
	}
	return mtype.String()
}
