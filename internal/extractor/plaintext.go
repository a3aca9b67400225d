package extractor

import (
	"context"
	"fmt"
	"os"
)

type plainTextExtractor struct{}

func (p *plainTextExtractor) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}

func init() {
	Register(".txt", &plainTextExtractor{})
}
