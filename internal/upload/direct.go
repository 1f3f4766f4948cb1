package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/francaflow/flow-go/internal/drive"
)

// MultipartBackend stores a file with metadata and content in one request.
// Satisfied by *drive.Client.
type MultipartBackend interface {
	MultipartUpload(ctx context.Context, parentID, name, mimeType string, content io.Reader) (*drive.File, error)
}

// DirectSender is the server-side small-batch path: resolve the folder
// once, then store each file with a single multipart request.
type DirectSender struct {
	folders FolderResolver
	backend MultipartBackend
	logger  *slog.Logger
}

// NewDirectSender creates a DirectSender.
func NewDirectSender(folders FolderResolver, backend MultipartBackend, logger *slog.Logger) *DirectSender {
	if logger == nil {
		logger = slog.Default()
	}

	return &DirectSender{folders: folders, backend: backend, logger: logger}
}

// UploadDirect stores files under dest, stopping at the first failure.
func (d *DirectSender) UploadDirect(ctx context.Context, files []File, dest Destination) (*DirectResult, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}

	folderID, err := d.folders.Resolve(ctx, dest)
	if err != nil {
		return nil, classifyBackendError("resolving destination folder", err)
	}

	res := &DirectResult{FolderLink: drive.FolderLink(folderID)}

	for _, f := range files {
		mimeType := f.MimeType
		if mimeType == "" {
			mimeType = defaultMimeType
		}

		stored, err := d.backend.MultipartUpload(ctx, folderID, f.Name, mimeType, io.NewSectionReader(f.Content, 0, f.Size))
		if err != nil {
			return nil, classifyBackendError(fmt.Sprintf("storing %s", f.Name), err)
		}

		d.logger.Info("file stored directly",
			slog.String("file", f.Name),
			slog.String("file_id", stored.ID),
			slog.Int64("size", f.Size),
		)

		res.Files = append(res.Files, FileResult{
			Name:        f.Name,
			FileID:      stored.ID,
			WebViewLink: stored.WebViewLink,
			Size:        f.Size,
		})
	}

	return res, nil
}
