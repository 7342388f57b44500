// Package extract converts uploaded files into plain text. The engine core
// only ever consumes the extracted text; this package is the narrow
// interface in front of format-specific parsing.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
)

// Supported reports whether the filename's extension has an extractor.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".pdf", ".xlsx":
		return true
	}
	return false
}

// FromBytes extracts plain text from content, dispatching on the filename's
// extension.
func FromBytes(name string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".txt", ".md":
		return string(content), nil
	case ".pdf":
		return fromPDF(content)
	case ".xlsx":
		return fromExcel(content)
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFile, ext)
	}
}

// FromFile reads path and extracts its text.
func FromFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("extract: read %s: %w", path, err)
	}
	return FromBytes(path, content)
}
