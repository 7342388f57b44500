// Package chunk splits document text into overlapping fixed-width windows.
package chunk

import (
	"strings"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
)

const (
	// DefaultSize is the default window width in characters.
	DefaultSize = 900
	// DefaultOverlap is the default number of characters shared by
	// neighbouring windows.
	DefaultOverlap = 120
)

// Split walks a window of width size across text, advancing by size-overlap
// each step. Each window is trimmed of surrounding whitespace; windows that
// trim to empty are skipped but still advance the offset, so whitespace-heavy
// input can produce fewer chunks than the window count suggests. Offsets
// count code points, not bytes, so a window never cuts a character in half.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, domain.NewParamError("chunk_size", "must be > 0")
	}
	if overlap < 0 {
		return nil, domain.NewParamError("overlap", "must be >= 0")
	}
	if overlap >= size {
		return nil, domain.NewParamError("overlap", "must be smaller than chunk_size")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			chunks = append(chunks, part)
		}
		if end >= len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks, nil
}
