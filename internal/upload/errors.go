package upload

import "errors"

// Session and transfer failures.
var (
	// ErrBackendUnavailable means credentials or connectivity to the storage
	// backend are missing. Terminal for the file.
	ErrBackendUnavailable = errors.New("upload: storage backend unavailable")

	// ErrSessionAllocationFailed means the backend answered but did not hand
	// out a resumable session. Terminal for the file.
	ErrSessionAllocationFailed = errors.New("upload: session allocation failed")

	// ErrRelayTransport means the relay could not reach the backend for one
	// chunk attempt. The sequencer recovers from it with a probe.
	ErrRelayTransport = errors.New("upload: relay transport error")

	// ErrRecoveryExhausted means a probe returned no usable range, or the
	// per-file probe budget ran out.
	ErrRecoveryExhausted = errors.New("upload: recovery exhausted")

	// ErrCanceled marks a user-initiated stop, as opposed to a failure.
	ErrCanceled = errors.New("upload: canceled")

	// ErrNotificationFailed is logged and swallowed; it never fails a batch.
	ErrNotificationFailed = errors.New("upload: notification failed")
)

// Admission and validation failures.
var (
	ErrEmptyBatch         = errors.New("upload: batch contains no files")
	ErrFileTooLarge       = errors.New("upload: file exceeds the per-file size limit")
	ErrBatchTooLarge      = errors.New("upload: batch exceeds the per-batch size limit")
	ErrInvalidFile        = errors.New("upload: invalid file")
	ErrInvalidDestination = errors.New("upload: invalid destination")
	ErrInvalidChunk       = errors.New("upload: invalid chunk")
	ErrSessionNotAllowed  = errors.New("upload: session URL not allowed")
)
