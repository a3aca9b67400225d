package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/corpora-dev/corpora/internal/pkg/errs"
)

// Extractor turns one document file into plain text ready for
// chunking. Extraction failures mean "document unavailable" to the
// caller, never a fatal batch error.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

var registry = map[string]Extractor{}

// Register binds an extractor to a file extension (with leading dot).
func Register(ext string, e Extractor) {
	registry[strings.ToLower(ext)] = e
}

// ForPath resolves the extractor for a file by its extension.
func ForPath(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := registry[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no extractor for file type: %s", errs.ErrValidation, ext)
	}
	return e, nil
}

// SupportedExtensions lists the registered file extensions.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	return exts
}
