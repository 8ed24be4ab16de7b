// Package core provides the execution model types for apptest-runner.
package core

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Attachment represents an artifact captured during step execution
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot
	ContentType string `json:"contentType"` // MIME type: image/png
	Path        string `json:"path"`        // File path on disk
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
)

// Common content types
const (
	ContentTypePNG = "image/png"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// ScreenshotPath returns the file a screenshot with the given label is saved to.
// Path separators and other unsafe characters in the label are replaced
// so the file always lands directly inside dir.
func ScreenshotPath(dir, label string) string {
	return filepath.Join(dir, SanitizeFileName(label)+".png")
}

// SanitizeFileName maps a free-form label to a safe file base name.
func SanitizeFileName(label string) string {
	label = strings.TrimSpace(label)
	var b strings.Builder
	for _, r := range label {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "screenshot"
	}
	return name
}
