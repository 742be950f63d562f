package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/models"
	"sendqueue/internal/security"
)

const bytesPerMB = 1024 * 1024

// FileLoader reads attachment bytes from a directory on disk. Attachment
// paths are relative to that directory and may not escape it.
type FileLoader struct {
	config models.AttachmentsConfig
}

func NewFileLoader(config models.AttachmentsConfig) *FileLoader {
	return &FileLoader{config: config}
}

// LoadAttachment returns att.Data when already set, otherwise the file
// contents. Missing files are NOT_FOUND, oversize files are validation errors.
func (l *FileLoader) LoadAttachment(ctx context.Context, att models.Attachment) ([]byte, error) {
	if att.Data != nil {
		return att.Data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if att.Path == "" {
		return nil, apperrors.NewValidationError("path", att.ID, "attachment has no path")
	}

	full, err := security.ResolveWithinBase(att.Path, l.config.Dir)
	if err != nil {
		return nil, apperrors.NewValidationError("path", att.Path, err.Error())
	}

	file, err := os.Open(full) // #nosec G304 - path resolved inside the attachment directory
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFoundError("attachment", att.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer file.Close()

	limit := l.MaxSizeFor(att.ContentType)
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, apperrors.NewValidationError("size", att.Path, fmt.Sprintf("attachment exceeds %d bytes", limit))
	}
	return data, nil
}

// MaxSizeFor returns the byte limit for a MIME type.
func (l *FileLoader) MaxSizeFor(contentType string) int64 {
	general := l.config.MaxSizeMB
	if general <= 0 {
		general = 100
	}
	if strings.HasPrefix(contentType, "image/") && l.config.MaxImageSizeMB > 0 {
		return int64(l.config.MaxImageSizeMB) * bytesPerMB
	}
	return int64(general) * bytesPerMB
}
