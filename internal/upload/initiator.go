package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/francaflow/flow-go/internal/drive"
)

const defaultMimeType = "application/octet-stream"

// FolderResolver maps a destination to a backend folder ID, creating any
// missing folders. Must be idempotent.
type FolderResolver interface {
	Resolve(ctx context.Context, dest Destination) (string, error)
}

// SessionBackend allocates destination objects and resumable sessions.
// Satisfied by *drive.Client.
type SessionBackend interface {
	CreateFile(ctx context.Context, parentID, name, mimeType string) (*drive.File, error)
	StartResumable(ctx context.Context, fileID, mimeType string, size int64) (string, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// Initiator allocates one resumable session per file.
type Initiator struct {
	folders FolderResolver
	backend SessionBackend
	logger  *slog.Logger
}

// NewInitiator creates an Initiator.
func NewInitiator(folders FolderResolver, backend SessionBackend, logger *slog.Logger) *Initiator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Initiator{folders: folders, backend: backend, logger: logger}
}

// Initiate resolves the destination folder, creates an empty file there,
// and opens a resumable session scoped to exactly spec.Size bytes. Nothing
// is retried here beyond the transport retry of the backend client.
func (in *Initiator) Initiate(ctx context.Context, spec FileSpec, dest Destination) (*Session, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("%w: file name is empty", ErrInvalidFile)
	}

	if spec.Size <= 0 {
		return nil, fmt.Errorf("%w: %q has size %d", ErrInvalidFile, spec.Name, spec.Size)
	}

	if err := dest.Validate(); err != nil {
		return nil, err
	}

	mimeType := spec.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	folderID, err := in.folders.Resolve(ctx, dest)
	if err != nil {
		return nil, classifyBackendError("resolving destination folder", err)
	}

	f, err := in.backend.CreateFile(ctx, folderID, spec.Name, mimeType)
	if err != nil {
		return nil, classifyBackendError("creating "+spec.Name, err)
	}

	handle, err := in.backend.StartResumable(ctx, f.ID, mimeType, spec.Size)
	if err != nil {
		in.discardOrphan(ctx, f.ID, spec.Name)
		return nil, classifyBackendError("opening session for "+spec.Name, err)
	}

	in.logger.Info("upload session allocated",
		slog.String("file", spec.Name),
		slog.String("file_id", f.ID),
		slog.String("folder_id", folderID),
		slog.Int64("size", spec.Size),
	)

	return &Session{
		Handle:        handle,
		DestinationID: f.ID,
		FolderID:      folderID,
		FolderLink:    drive.FolderLink(folderID),
		WebViewLink:   f.WebViewLink,
		TotalSize:     spec.Size,
		MimeType:      mimeType,
		FileName:      spec.Name,
	}, nil
}

// discardOrphan removes the empty file left behind when no session could be
// opened for it. Failure only leaves a zero-byte file, so it is logged.
func (in *Initiator) discardOrphan(ctx context.Context, fileID, name string) {
	if err := in.backend.DeleteFile(context.WithoutCancel(ctx), fileID); err != nil {
		in.logger.Warn("could not delete empty file after failed session",
			slog.String("file", name),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

// classifyBackendError maps backend failures onto the upload taxonomy.
// Missing credentials, unreachable hosts and server faults are
// ErrBackendUnavailable; everything else, including a missing session URL,
// is ErrSessionAllocationFailed.
func classifyBackendError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s: %w", ErrCanceled, op, err)
	case errors.Is(err, drive.ErrTokenUnavailable),
		errors.Is(err, drive.ErrNoCredentials),
		errors.Is(err, drive.ErrUnauthorized),
		errors.Is(err, drive.ErrUnreachable),
		errors.Is(err, drive.ErrServerError),
		errors.Is(err, drive.ErrThrottled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrSessionAllocationFailed, op, err)
	}
}
