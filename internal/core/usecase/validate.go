package usecase

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bidassist/docingest/internal/core/domain"
)

// FileLimits is the validation surface for candidate files. AllowedTypes
// entries starting with a dot match the filename extension; all others match
// the MIME type. Both are checked because browsers and operating systems
// populate MIME types inconsistently for document formats.
type FileLimits struct {
	MaxFileSize  int64
	AllowedTypes []string
}

// ValidateFile checks a candidate against the configured limits. It is pure
// and runs once per candidate, before any task exists.
func ValidateFile(name string, sizeBytes int64, mimeType string, limits FileLimits) error {
	if limits.MaxFileSize > 0 && sizeBytes > limits.MaxFileSize {
		return domain.WrapError(domain.ErrValidation, "validate file",
			fmt.Errorf("%q is %d bytes, limit is %d", name, sizeBytes, limits.MaxFileSize))
	}
	if len(limits.AllowedTypes) == 0 {
		return nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	for _, allowed := range limits.AllowedTypes {
		a := strings.ToLower(strings.TrimSpace(allowed))
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, ".") {
			if ext == a {
				return nil
			}
			continue
		}
		if mime == a {
			return nil
		}
	}
	return domain.WrapError(domain.ErrValidation, "validate file",
		fmt.Errorf("type of %q (%s) is not allowed", name, mimeType))
}
