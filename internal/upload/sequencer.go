package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Sequencer defaults.
const (
	DefaultChunkSize    = 4 * 1024 * 1024
	DefaultMaxProbes    = 10
	DefaultChunkTimeout = 2 * time.Minute
)

// SequencerConfig tunes a Sequencer. Zero values select the defaults;
// a negative ChunkTimeout disables the per-call deadline.
type SequencerConfig struct {
	ChunkSize    int64
	MaxProbes    int
	ChunkTimeout time.Duration
}

// Sequencer drives one file at a time through a ChunkRelay in strictly
// increasing offset order, recovering from failed chunks by probing the
// session for its authoritative received-byte count.
type Sequencer struct {
	relay        ChunkRelay
	chunkSize    int64
	maxProbes    int
	chunkTimeout time.Duration
	logger       *slog.Logger
}

// NewSequencer creates a Sequencer sending through relay.
func NewSequencer(relay ChunkRelay, cfg SequencerConfig, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = DefaultMaxProbes
	}

	switch {
	case cfg.ChunkTimeout == 0:
		cfg.ChunkTimeout = DefaultChunkTimeout
	case cfg.ChunkTimeout < 0:
		cfg.ChunkTimeout = 0
	}

	return &Sequencer{
		relay:        relay,
		chunkSize:    cfg.ChunkSize,
		maxProbes:    cfg.MaxProbes,
		chunkTimeout: cfg.ChunkTimeout,
		logger:       logger,
	}
}

// ChunkSize returns the fixed chunk size in bytes.
func (s *Sequencer) ChunkSize() int64 {
	return s.chunkSize
}

// chunkAccepted reports whether a chunk write moved the session forward.
func chunkAccepted(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated || status == http.StatusPermanentRedirect
}

func sessionComplete(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated
}

// SendFile uploads content through session. onProgress (may be nil) is
// called with the file's cumulative bytes after every accepted chunk and
// every probe resume; the reported value never decreases. On failure the
// error wraps ErrRecoveryExhausted, ErrCanceled, or the relay's validation
// error; bytes already relayed stay committed in the backend session.
func (s *Sequencer) SendFile(ctx context.Context, content io.ReaderAt, session *Session, onProgress ProgressFunc) error {
	total := session.TotalSize
	if total <= 0 {
		return fmt.Errorf("%w: %q has size %d", ErrInvalidFile, session.FileName, total)
	}

	// Reported progress only moves forward, even when a probe rewinds the
	// cursor below bytes already shown.
	var reported int64

	report := func(loaded int64) {
		reported = max(reported, loaded)

		if onProgress != nil {
			onProgress(NewProgress(reported, total))
		}
	}

	log := s.logger.With(slog.String("file", session.FileName))

	var (
		offset int64
		probes int
	)

	for offset < total {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s at offset %d: %w", ErrCanceled, session.FileName, offset, err)
		}

		end := min(offset+s.chunkSize, total) - 1
		d := Chunk(offset, end, total)

		res, err := s.call(ctx, session.Handle, io.NewSectionReader(content, offset, d.Len()), d)

		switch {
		case err == nil && chunkAccepted(res.Status):
			offset = end + 1
			report(offset)

			continue

		case err != nil && ctx.Err() != nil:
			return fmt.Errorf("%w: %s at offset %d: %w", ErrCanceled, session.FileName, offset, ctx.Err())

		case err != nil && !errors.Is(err, ErrRelayTransport):
			return fmt.Errorf("upload: sending %s: %w", session.FileName, err)

		case err != nil:
			log.Warn("chunk transport failure, probing",
				slog.String("content_range", d.ContentRange()),
				slog.String("error", err.Error()),
			)

		default:
			log.Warn("chunk rejected, probing",
				slog.String("content_range", d.ContentRange()),
				slog.Int("status", res.Status),
			)
		}

		probes++
		if probes > s.maxProbes {
			return fmt.Errorf("%w: %s: more than %d probes", ErrRecoveryExhausted, session.FileName, s.maxProbes)
		}

		next, done, err := s.probe(ctx, session)
		if err != nil {
			return err
		}

		if done {
			log.Info("probe reports session complete")
			report(total)

			return nil
		}

		log.Info("resuming after probe",
			slog.Int64("from", offset),
			slog.Int64("to", next),
			slog.Int("probe", probes),
		)

		offset = next
		report(offset)
	}

	log.Debug("file sent", slog.Int64("size", total), slog.Int("probes", probes))

	return nil
}

// probe asks the session how many bytes it holds. Returns the offset to
// resume from, or done=true if the backend already considers the upload
// complete.
func (s *Sequencer) probe(ctx context.Context, session *Session) (next int64, done bool, err error) {
	d := Probe(session.TotalSize)

	res, err := s.call(ctx, session.Handle, nil, d)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, fmt.Errorf("%w: %s during probe: %w", ErrCanceled, session.FileName, ctx.Err())
		}

		return 0, false, fmt.Errorf("%w: %s: probe failed: %w", ErrRecoveryExhausted, session.FileName, err)
	}

	if sessionComplete(res.Status) {
		return session.TotalSize, true, nil
	}

	next, ok := ParseReceivedRange(res.Range)
	if !ok || next > session.TotalSize {
		return 0, false, fmt.Errorf("%w: %s: probe returned status %d with range %q",
			ErrRecoveryExhausted, session.FileName, res.Status, res.Range)
	}

	return next, false, nil
}

// call performs one relay round trip under the per-chunk deadline.
func (s *Sequencer) call(ctx context.Context, handle string, body io.Reader, d ChunkDescriptor) (RelayResult, error) {
	if s.chunkTimeout <= 0 {
		return s.relay.RelayChunk(ctx, handle, body, d)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.chunkTimeout)
	defer cancel()

	return s.relay.RelayChunk(callCtx, handle, body, d)
}
