// Package extract turns uploaded PDF and TXT files into plain text.
//
// Uploads are staged to a temporary file which is removed on every exit path,
// including extraction failures.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const defaultMaxBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("extract: only PDF and TXT files are supported")
	ErrTooLarge        = errors.New("extract: file exceeds size limit")
)

type Extractor struct {
	stagingDir string
	maxBytes   int64
}

// New creates the staging directory if needed.
func New(stagingDir string, maxBytes int64) (*Extractor, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("extract: create staging dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Extractor{stagingDir: stagingDir, maxBytes: maxBytes}, nil
}

// Supported reports whether filename has an extension Extract accepts.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

func (e *Extractor) Extract(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !Supported(filename) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}
	ext := strings.ToLower(filepath.Ext(filename))

	path, err := e.stage(r, ext)
	if path != "" {
		defer func() { _ = os.Remove(path) }()
	}
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if ext == ".pdf" {
		return extractPDF(path)
	}
	return extractText(path)
}

// stage copies r into a temp file and returns its path. The path is returned
// even on error so the caller can clean up.
func (e *Extractor) stage(r io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp(e.stagingDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("extract: create staging file: %w", err)
	}
	path := tmp.Name()

	n, copyErr := io.Copy(tmp, io.LimitReader(r, e.maxBytes+1))
	closeErr := tmp.Close()
	if copyErr != nil {
		return path, fmt.Errorf("extract: stage upload: %w", copyErr)
	}
	if closeErr != nil {
		return path, fmt.Errorf("extract: stage upload: %w", closeErr)
	}
	if n > e.maxBytes {
		return path, fmt.Errorf("%w (%d bytes)", ErrTooLarge, e.maxBytes)
	}
	return path, nil
}

func extractText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("extract: error reading TXT file: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", errors.New("extract: error reading TXT file: content is not valid UTF-8")
	}
	return strings.TrimSpace(string(raw)), nil
}

func extractPDF(path string) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract: error reading PDF: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: error reading PDF: %w", err)
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract: error reading PDF page %d: %w", i, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
