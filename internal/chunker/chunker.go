package chunker

import (
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

// Default window parameters, matching the ingestion defaults.
const (
	DefaultChunkSize = 800
	DefaultOverlap   = 100
)

// Split cuts text into overlapping fixed-size character windows. Each chunk
// is trimmed of surrounding whitespace and empty chunks are dropped, so the
// output may be shorter than the raw window count. Splitting is
// deterministic and keeps no state between calls.
//
// The window only advances when overlap < chunkSize; anything else is
// rejected instead of looping forever.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("invalid overlap %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, domain.ErrOverlapTooLarge
	}

	runes := []rune(strings.ReplaceAll(text, "\r", "\n"))
	if len(runes) == 0 {
		return nil, nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
