package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/francaflow/flow-go/internal/drive"
)

// ChunkRelay forwards one chunk (or one probe) to a resumable session.
// Implemented in-process by Relay and over HTTP by relayclient.Client.
// A call is exactly one backend round trip. Any backend status is returned
// in the result; only a failure to reach the backend is an error, and it
// wraps ErrRelayTransport.
type ChunkRelay interface {
	RelayChunk(ctx context.Context, handle string, body io.Reader, d ChunkDescriptor) (RelayResult, error)
}

// ChunkPutter performs the raw PUT against a session URL.
// Satisfied by *drive.Client.
type ChunkPutter interface {
	PutChunk(ctx context.Context, sessionURL string, body io.Reader, contentRange string, length int64) (*drive.ChunkResponse, error)
}

// RelayEvent describes one completed relay call.
type RelayEvent struct {
	Kind         string    `json:"kind"` // "chunk" or "probe"
	ContentRange string    `json:"contentRange"`
	Status       int       `json:"status,omitempty"`
	Range        string    `json:"range,omitempty"`
	Error        string    `json:"error,omitempty"`
	Bytes        int64     `json:"bytes"`
	At           time.Time `json:"at"`
}

// RelayOptions configures a Relay.
type RelayOptions struct {
	// AllowedPrefix restricts session URLs the relay will forward to.
	// Empty allows any URL.
	AllowedPrefix string
	Limiter       *BandwidthLimiter
	Logger        *slog.Logger
	// Observer, if set, is called after every relay call.
	Observer func(RelayEvent)
}

// Relay is the stateless server-side chunk relay. Safe for concurrent use:
// it holds no per-session state.
type Relay struct {
	putter        ChunkPutter
	allowedPrefix string
	limiter       *BandwidthLimiter
	logger        *slog.Logger
	observer      func(RelayEvent)
	nowFunc       func() time.Time
}

// NewRelay creates a Relay forwarding through putter.
func NewRelay(putter ChunkPutter, opts RelayOptions) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		putter:        putter,
		allowedPrefix: opts.AllowedPrefix,
		limiter:       opts.Limiter,
		logger:        logger,
		observer:      opts.Observer,
		nowFunc:       time.Now,
	}
}

// CheckHandle reports whether the relay is allowed to forward to handle.
func (r *Relay) CheckHandle(handle string) error {
	if handle == "" {
		return fmt.Errorf("%w: empty session URL", ErrSessionNotAllowed)
	}

	if r.allowedPrefix != "" && !strings.HasPrefix(handle, r.allowedPrefix) {
		return fmt.Errorf("%w: must start with %s", ErrSessionNotAllowed, r.allowedPrefix)
	}

	return nil
}

// RelayChunk forwards body as the byte range d to the session at handle.
// For a probe, body is ignored and an empty PUT with "bytes */total" is
// sent. body must supply at least d.Len() bytes; extra bytes are not sent.
func (r *Relay) RelayChunk(ctx context.Context, handle string, body io.Reader, d ChunkDescriptor) (RelayResult, error) {
	if err := d.Validate(); err != nil {
		return RelayResult{}, err
	}

	if err := r.CheckHandle(handle); err != nil {
		return RelayResult{}, err
	}

	kind := "chunk"

	var payload io.Reader

	if d.IsProbe() {
		kind = "probe"
	} else {
		if body == nil {
			return RelayResult{}, fmt.Errorf("%w: chunk %s has no body", ErrInvalidChunk, d.ContentRange())
		}

		payload = r.limiter.WrapReader(ctx, io.LimitReader(body, d.Len()))
	}

	resp, err := r.putter.PutChunk(ctx, handle, payload, d.ContentRange(), d.Len())
	if err != nil {
		r.emit(RelayEvent{Kind: kind, ContentRange: d.ContentRange(), Error: err.Error(), Bytes: d.Len()})

		if errors.Is(err, context.Canceled) {
			return RelayResult{}, fmt.Errorf("%w: %w", ErrCanceled, err)
		}

		return RelayResult{}, fmt.Errorf("%w: %w", ErrRelayTransport, err)
	}

	res := RelayResult{Status: resp.StatusCode, StatusText: resp.Status, Range: resp.Range}

	r.logger.Debug("relayed",
		slog.String("kind", kind),
		slog.String("content_range", d.ContentRange()),
		slog.Int("status", res.Status),
		slog.String("range", res.Range),
	)

	r.emit(RelayEvent{
		Kind:         kind,
		ContentRange: d.ContentRange(),
		Status:       res.Status,
		Range:        res.Range,
		Bytes:        d.Len(),
	})

	return res, nil
}

func (r *Relay) emit(ev RelayEvent) {
	if r.observer == nil {
		return
	}

	ev.At = r.nowFunc()
	r.observer(ev)
}
