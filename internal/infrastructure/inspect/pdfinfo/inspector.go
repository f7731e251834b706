package pdfinfo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bidassist/docingest/internal/core/ports"
)

// Inspector counts pages of PDF candidates before upload so page-level
// progress can be shown before the first poll response arrives. Non-PDF
// files report zero pages without error.
type Inspector struct {
	maxBytes int64
}

// New bounds inspection to payloads of at most maxBytes, since page counting
// reads the whole file into memory. Zero disables the bound.
func New(maxBytes int64) *Inspector {
	return &Inspector{maxBytes: maxBytes}
}

func (i *Inspector) PageCount(ctx context.Context, file ports.FileCandidate) (int, error) {
	if !isPDF(file) {
		return 0, nil
	}
	if i.maxBytes > 0 && file.SizeBytes > i.maxBytes {
		return 0, nil
	}

	src, err := file.Source.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open payload: %w", err)
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		return 0, fmt.Errorf("read payload: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	return reader.NumPage(), nil
}

func isPDF(file ports.FileCandidate) bool {
	if strings.EqualFold(filepath.Ext(file.Name), ".pdf") {
		return true
	}
	mime := strings.ToLower(file.MimeType)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime) == "application/pdf"
}
