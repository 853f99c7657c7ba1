// Package attachment turns uploaded research material into artifact text and
// screens it for prompt injection before it can reach a validation prompt.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/attachment")

// DefaultMaxSizeMB bounds one imported file.
const DefaultMaxSizeMB = 5

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

// Extractor extracts text content from research files.
type Extractor struct {
	maxSize int64
}

// NewExtractor creates an extractor with a size limit. maxSizeMB <= 0 uses
// DefaultMaxSizeMB.
func NewExtractor(maxSizeMB int) *Extractor {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	return &Extractor{maxSize: int64(maxSizeMB) * 1024 * 1024}
}

// Extract reads path and returns its text.
// Supported formats: .txt, .md, .csv, .json, .html/.htm.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.Size() > e.maxSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, info.Size(), e.maxSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file %s: %w", path, err)
	}
	return e.ExtractBytes(ctx, filepath.Base(path), content)
}

// ExtractBytes returns the text of content, typed by the extension of name.
func (e *Extractor) ExtractBytes(ctx context.Context, name string, content []byte) (string, error) {
	_, span := tracer.Start(ctx, "attachment.extract")
	defer span.End()

	if int64(len(content)) > e.maxSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(content), e.maxSize)
	}
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".txt", ".md", ".csv", ".json":
		return string(content), nil
	case ".html", ".htm":
		return bluemonday.StrictPolicy().Sanitize(string(content)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
}
