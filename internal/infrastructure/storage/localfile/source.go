package localfile

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/bidassist/docingest/internal/core/ports"
)

// Source is a reopenable file payload backed by the local filesystem.
type Source struct {
	path string
}

func New(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Candidate builds a pipeline candidate from a path, capturing the metadata
// the validator needs. The MIME type comes from the extension; it may be
// empty, which is why validation also matches on the extension itself.
func Candidate(path string) (ports.FileCandidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ports.FileCandidate{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return ports.FileCandidate{}, fmt.Errorf("%s is a directory", path)
	}
	return ports.FileCandidate{
		Name:      filepath.Base(path),
		SizeBytes: info.Size(),
		MimeType:  mime.TypeByExtension(filepath.Ext(path)),
		Source:    New(path),
	}, nil
}
