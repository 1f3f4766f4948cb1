package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// SessionInitiator allocates a resumable session for one file.
// Implemented by *Initiator and by relayclient.Client.
type SessionInitiator interface {
	Initiate(ctx context.Context, spec FileSpec, dest Destination) (*Session, error)
}

// FileSender drives one file through its session. Implemented by *Sequencer.
type FileSender interface {
	SendFile(ctx context.Context, content io.ReaderAt, session *Session, onProgress ProgressFunc) error
}

// DirectUploader submits a whole small batch in one request, bypassing
// sessions and chunking.
type DirectUploader interface {
	UploadDirect(ctx context.Context, files []File, dest Destination) (*DirectResult, error)
}

// Notifier announces a finished batch. Failures are logged, never surfaced.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// DirectResult describes a batch stored through the direct path.
type DirectResult struct {
	FolderLink string
	Files      []FileResult
}

// FileResult describes one stored file.
type FileResult struct {
	Name        string
	FileID      string
	WebViewLink string
	Size        int64
}

// Limits are the admission boundaries of the upload feature.
type Limits struct {
	MaxFileSize     int64
	MaxBatchSize    int64
	DirectThreshold int64
}

// BatchResult describes a completed batch.
type BatchResult struct {
	BatchID    string
	Direct     bool
	Files      []FileResult
	FolderLink string
	TotalBytes int64
	Notified   bool
}

// Orchestrator sends batches of files to one destination, strictly one
// file at a time, and announces each completed batch exactly once.
type Orchestrator struct {
	initiator SessionInitiator
	sender    FileSender
	direct    DirectUploader
	notifier  Notifier
	limits    Limits
	logger    *slog.Logger
	newID     func() string
}

// OrchestratorDeps are the collaborators of an Orchestrator. Direct and
// Notifier may be nil: without Direct every batch takes the chunked path,
// without Notifier no announcement is made.
type OrchestratorDeps struct {
	Initiator SessionInitiator
	Sender    FileSender
	Direct    DirectUploader
	Notifier  Notifier
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps, limits Limits, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		initiator: deps.Initiator,
		sender:    deps.Sender,
		direct:    deps.Direct,
		notifier:  deps.Notifier,
		limits:    limits,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Admit checks a batch against the size limits and returns its total size.
func (o *Orchestrator) Admit(files []File) (int64, error) {
	return Admit(files, o.limits)
}

// Admit checks a batch against limits and returns its total size. Empty
// files are refused up front because a resumable session cannot hold zero
// bytes. Zero limits are not enforced.
func Admit(files []File, limits Limits) (int64, error) {
	if len(files) == 0 {
		return 0, ErrEmptyBatch
	}

	var total int64

	for _, f := range files {
		if f.Size <= 0 {
			return 0, fmt.Errorf("%w: %q has size %d", ErrInvalidFile, f.Name, f.Size)
		}

		if limits.MaxFileSize > 0 && f.Size > limits.MaxFileSize {
			return 0, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrFileTooLarge, f.Name, f.Size, limits.MaxFileSize)
		}

		total += f.Size
	}

	if limits.MaxBatchSize > 0 && total > limits.MaxBatchSize {
		return 0, fmt.Errorf("%w: %d bytes, limit %d", ErrBatchTooLarge, total, limits.MaxBatchSize)
	}

	return total, nil
}

// SendBatch uploads files to dest. Batches no larger than the direct
// threshold go through the DirectUploader in one call; larger ones are
// initiated and sequenced file by file. onProgress (may be nil) receives
// the aggregate batch progress, which never decreases. The first failing
// file aborts the batch: later files are not attempted and no notification
// is sent.
func (o *Orchestrator) SendBatch(
	ctx context.Context, files []File, dest Destination, onProgress ProgressFunc,
) (*BatchResult, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}

	total, err := o.Admit(files)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{BatchID: o.newID(), TotalBytes: total}
	log := o.logger.With(slog.String("batch_id", result.BatchID))
	tracker := newBatchProgress(total, onProgress)

	log.Info("batch started",
		slog.String("client", dest.ClientName),
		slog.String("material_type", dest.MaterialType),
		slog.Int("files", len(files)),
		slog.Int64("bytes", total),
	)

	if o.direct != nil && total <= o.limits.DirectThreshold {
		if err := o.sendDirect(ctx, files, dest, result, tracker); err != nil {
			log.Warn("batch failed", slog.String("error", err.Error()))
			return nil, err
		}
	} else if err := o.sendChunked(ctx, files, dest, result, tracker, log); err != nil {
		log.Warn("batch failed", slog.String("error", err.Error()))
		return nil, err
	}

	result.Notified = o.notify(ctx, dest, len(files), result.FolderLink, log)

	log.Info("batch complete",
		slog.Bool("direct", result.Direct),
		slog.Bool("notified", result.Notified),
	)

	return result, nil
}

func (o *Orchestrator) sendDirect(
	ctx context.Context, files []File, dest Destination, result *BatchResult, tracker *batchProgress,
) error {
	result.Direct = true
	tracker.update(0)

	dr, err := o.direct.UploadDirect(ctx, files, dest)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}

		return fmt.Errorf("upload: direct submission: %w", err)
	}

	result.Files = dr.Files
	result.FolderLink = dr.FolderLink
	tracker.fileDone(tracker.total)

	return nil
}

func (o *Orchestrator) sendChunked(
	ctx context.Context, files []File, dest Destination, result *BatchResult,
	tracker *batchProgress, log *slog.Logger,
) error {
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: before %s: %w", ErrCanceled, f.Name, err)
		}

		session, err := o.initiator.Initiate(ctx, f.Spec(), dest)
		if err != nil {
			return fmt.Errorf("file %d/%d: %w", i+1, len(files), err)
		}

		if i == 0 {
			result.FolderLink = session.FolderLink
		}

		if err := o.sender.SendFile(ctx, f.Content, session, func(p Progress) {
			tracker.update(p.Loaded)
		}); err != nil {
			return fmt.Errorf("file %d/%d: %w", i+1, len(files), err)
		}

		tracker.fileDone(f.Size)

		result.Files = append(result.Files, FileResult{
			Name:        f.Name,
			FileID:      session.DestinationID,
			WebViewLink: session.WebViewLink,
			Size:        f.Size,
		})

		log.Info("file uploaded",
			slog.String("file", f.Name),
			slog.String("file_id", session.DestinationID),
		)
	}

	return nil
}

// notify sends the batch announcement. It runs even if ctx was canceled
// after the last file finished, since the files are already stored.
func (o *Orchestrator) notify(
	ctx context.Context, dest Destination, count int, folderLink string, log *slog.Logger,
) bool {
	if o.notifier == nil {
		return false
	}

	err := o.notifier.Notify(context.WithoutCancel(ctx), Notification{
		ClientName:   dest.ClientName,
		Category:     dest.Category,
		MaterialType: dest.MaterialType,
		Description:  dest.Description,
		FileCount:    count,
		FolderLink:   folderLink,
	})
	if err != nil {
		if !errors.Is(err, ErrNotificationFailed) {
			err = fmt.Errorf("%w: %w", ErrNotificationFailed, err)
		}

		log.Warn("notification failed", slog.String("error", err.Error()))

		return false
	}

	return true
}

// batchProgress folds per-file progress into one non-decreasing batch
// readout: completed file sizes plus the current file's loaded bytes.
type batchProgress struct {
	total     int64
	completed int64
	last      int64
	emit      ProgressFunc
}

func newBatchProgress(total int64, emit ProgressFunc) *batchProgress {
	return &batchProgress{total: total, last: -1, emit: emit}
}

// update reports loaded bytes of the file in flight.
func (b *batchProgress) update(loaded int64) {
	b.report(b.completed + loaded)
}

// fileDone credits a finished file in full.
func (b *batchProgress) fileDone(size int64) {
	b.completed += size
	b.report(b.completed)
}

func (b *batchProgress) report(loaded int64) {
	loaded = min(loaded, b.total)

	// A probe may move a file's cursor backward; the batch readout holds.
	if loaded <= b.last {
		return
	}

	b.last = loaded

	if b.emit != nil {
		b.emit(NewProgress(loaded, b.total))
	}
}
