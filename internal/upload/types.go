// Package upload implements the resumable chunked upload protocol: session
// initiation, the stateless chunk relay, the per-file chunk sequencer with
// probe-based recovery, and the batch orchestrator that drives several files
// through them with a single aggregate progress readout.
package upload

import (
	"fmt"
	"io"
	"strings"
)

// Material types a batch can be filed under.
const (
	MaterialAds       = "Anúncios"
	MaterialCreatives = "Materiais"
)

// FileSpec is the metadata the initiator needs to allocate a session.
type FileSpec struct {
	Name     string
	MimeType string
	Size     int64
}

// Destination identifies where a batch lands in the folder taxonomy.
type Destination struct {
	ClientName   string
	Category     string
	MaterialType string
	// Description is optional free text; when set it becomes an extra
	// folder level below the month.
	Description string
}

// Validate checks the fields required to resolve a destination folder.
func (d Destination) Validate() error {
	var missing []string

	if strings.TrimSpace(d.ClientName) == "" {
		missing = append(missing, "client name")
	}

	if strings.TrimSpace(d.Category) == "" {
		missing = append(missing, "category")
	}

	if strings.TrimSpace(d.MaterialType) == "" {
		missing = append(missing, "material type")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidDestination, strings.Join(missing, ", "))
	}

	return nil
}

// Session is one resumable upload session for one file. Immutable once
// created and never persisted: a restart loses it and the file must start
// over from byte 0 with a new session. Exactly one Sequencer may drive a
// Session at a time.
type Session struct {
	// Handle is the backend's resumable session URL.
	Handle        string
	DestinationID string
	FolderID      string
	FolderLink    string
	WebViewLink   string
	TotalSize     int64
	MimeType      string
	FileName      string
}

// ChunkDescriptor is the inclusive byte range [Start, End] of a Total-byte
// file. A probe descriptor carries no range.
type ChunkDescriptor struct {
	Start int64
	End   int64
	Total int64
	probe bool
}

// Chunk returns the descriptor for bytes [start, end] of a total-byte file.
func Chunk(start, end, total int64) ChunkDescriptor {
	return ChunkDescriptor{Start: start, End: end, Total: total}
}

// Probe returns the status-query descriptor for a total-byte file.
func Probe(total int64) ChunkDescriptor {
	return ChunkDescriptor{Total: total, probe: true}
}

// IsProbe reports whether d is a status query rather than a data chunk.
func (d ChunkDescriptor) IsProbe() bool {
	return d.probe
}

// Len is the number of payload bytes the descriptor covers.
func (d ChunkDescriptor) Len() int64 {
	if d.probe {
		return 0
	}

	return d.End - d.Start + 1
}

// ContentRange renders the Content-Range header value.
func (d ChunkDescriptor) ContentRange() string {
	if d.probe {
		return fmt.Sprintf("bytes */%d", d.Total)
	}

	return fmt.Sprintf("bytes %d-%d/%d", d.Start, d.End, d.Total)
}

// Validate checks 0 <= Start <= End < Total for data chunks and Total > 0.
func (d ChunkDescriptor) Validate() error {
	if d.Total <= 0 {
		return fmt.Errorf("%w: total size must be positive, got %d", ErrInvalidChunk, d.Total)
	}

	if d.probe {
		return nil
	}

	if d.Start < 0 || d.Start > d.End || d.End >= d.Total {
		return fmt.Errorf("%w: range %d-%d outside 0-%d", ErrInvalidChunk, d.Start, d.End, d.Total-1)
	}

	return nil
}

// RelayResult is the backend's verbatim answer to one relay call.
type RelayResult struct {
	Status     int
	StatusText string
	// Range is the received-range header, e.g. "bytes=0-4999999", or empty.
	Range string
}

// Progress is a cumulative byte count for one file or one batch.
type Progress struct {
	Loaded     int64
	Total      int64
	Percentage int
}

// NewProgress computes the rounded, capped percentage for loaded of total.
func NewProgress(loaded, total int64) Progress {
	p := Progress{Loaded: loaded, Total: total}

	switch {
	case total <= 0:
		p.Percentage = 0
	case loaded >= total:
		p.Percentage = 100
	default:
		p.Percentage = int((loaded*200 + total) / (total * 2))
		p.Percentage = min(p.Percentage, 100)
	}

	return p
}

// ProgressFunc receives progress updates. It is called synchronously from
// the sending goroutine and must not block.
type ProgressFunc func(Progress)

// File is one file of a batch. Content must serve reads at any offset so a
// probe can rewind or skip the cursor.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Content  io.ReaderAt
}

// Spec returns the session metadata for f.
func (f File) Spec() FileSpec {
	return FileSpec{Name: f.Name, MimeType: f.MimeType, Size: f.Size}
}

// Notification is the post-batch message payload.
type Notification struct {
	ClientName   string
	Category     string
	MaterialType string
	Description  string
	FileCount    int
	FolderLink   string
}
