package upload

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseContentRange parses a Content-Range request header of the form
// "bytes a-b/total" or the probe form "bytes */total".
func ParseContentRange(h string) (ChunkDescriptor, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(h), "bytes ")
	if !ok {
		return ChunkDescriptor{}, fmt.Errorf("%w: Content-Range %q must start with \"bytes \"", ErrInvalidChunk, h)
	}

	span, totalStr, ok := strings.Cut(rest, "/")
	if !ok {
		return ChunkDescriptor{}, fmt.Errorf("%w: Content-Range %q has no total", ErrInvalidChunk, h)
	}

	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil {
		return ChunkDescriptor{}, fmt.Errorf("%w: Content-Range %q has a bad total", ErrInvalidChunk, h)
	}

	var d ChunkDescriptor

	if span == "*" {
		d = Probe(total)
	} else {
		startStr, endStr, ok := strings.Cut(span, "-")
		if !ok {
			return ChunkDescriptor{}, fmt.Errorf("%w: Content-Range %q has a bad range", ErrInvalidChunk, h)
		}

		start, err1 := strconv.ParseInt(startStr, 10, 64)
		end, err2 := strconv.ParseInt(endStr, 10, 64)

		if err1 != nil || err2 != nil {
			return ChunkDescriptor{}, fmt.Errorf("%w: Content-Range %q has a bad range", ErrInvalidChunk, h)
		}

		d = Chunk(start, end, total)
	}

	if err := d.Validate(); err != nil {
		return ChunkDescriptor{}, err
	}

	return d, nil
}

// ParseReceivedRange parses a backend Range header "bytes=0-N" and returns
// the offset to resume from (N+1). ok is false when the header is absent or
// unusable.
func ParseReceivedRange(h string) (next int64, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(h), "bytes=")
	if !found {
		return 0, false
	}

	startStr, endStr, found := strings.Cut(rest, "-")
	if !found {
		return 0, false
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start != 0 {
		return 0, false
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 {
		return 0, false
	}

	return end + 1, true
}
