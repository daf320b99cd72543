package mux

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yazinsai/claude-code-remote/internal/shortid"
)

// maxUploadBytes bounds a single pasted image, matching the size a
// terminal-pasted screenshot realistically reaches.
const maxUploadBytes = 20 * 1024 * 1024

// saveUpload decodes a base64 image payload and writes it under dir,
// returning the path the CLI process can reference. Filenames are
// generated rather than trusted from the client to avoid path traversal.
func saveUpload(dir string, cmd imageUploadCmd) (string, error) {
	raw, err := decodeDataPayload(cmd.Data)
	if err != nil {
		return "", fmt.Errorf("decode image data: %w", err)
	}
	if len(raw) > maxUploadBytes {
		return "", fmt.Errorf("image exceeds %d bytes", maxUploadBytes)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}

	ext := extensionForMime(cmd.MimeType)
	name := fmt.Sprintf("%s-%s%s", time.Now().UTC().Format("20060102T150405"), shortid.New(), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

// decodeDataPayload accepts either a bare base64 string or a full
// "data:<mime>;base64,<data>" URI, matching what a browser clipboard
// paste typically produces.
func decodeDataPayload(data string) ([]byte, error) {
	if idx := strings.Index(data, ","); strings.HasPrefix(data, "data:") && idx >= 0 {
		data = data[idx+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}

func extensionForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
