package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Size multiplier constants (decimal / SI).
const (
	kilobyte = 1000
	megabyte = 1000 * kilobyte
	gigabyte = 1000 * megabyte
)

// Size multiplier constants (binary / IEC).
const (
	kibibyte = 1024
	mebibyte = 1024 * kibibyte
	gibibyte = 1024 * mebibyte
)

// ParseSize converts a human-readable size string to bytes.
// Supports both SI (KB, MB, GB) and IEC (KiB, MiB, GiB) suffixes.
// Empty string and "0" return 0. A bare number is treated as raw bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	upper := strings.ToUpper(s)

	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GIB", gibibyte},
		{"MIB", mebibyte},
		{"KIB", kibibyte},
		{"GB", gigabyte},
		{"MB", megabyte},
		{"KB", kilobyte},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(upper, sf.suffix) {
			numStr := strings.TrimSpace(s[:len(s)-len(sf.suffix)])

			return parseSizeNumber(numStr, sf.multiplier, s)
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return n, nil
}

// ParseRate parses a transfer rate such as "5MB/s" or "100KiB/s" into bytes
// per second. The "/s" suffix is optional. "0" and "" mean unlimited.
func ParseRate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(strings.ToLower(s), "/s") {
		s = s[:len(s)-len("/s")]
	}

	n, err := ParseSize(s)
	if err != nil {
		return 0, fmt.Errorf("invalid rate: %w", err)
	}

	return n, nil
}

func parseSizeNumber(numStr string, multiplier int64, original string) (int64, error) {
	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", original, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", original)
	}

	return int64(n * float64(multiplier)), nil
}

// Sizes is the parsed byte form of every size-valued setting.
type Sizes struct {
	ChunkSize       int64
	BandwidthLimit  int64
	MaxFileSize     int64
	MaxBatchSize    int64
	DirectThreshold int64
	MaxRequestBody  int64
}

// Sizes parses the size-valued settings. Validate has already accepted them,
// so an error here means the Config was mutated after validation.
func (c *Config) Sizes() (Sizes, error) {
	var (
		s    Sizes
		errs []error
	)

	parse := func(dst *int64, key, raw string) {
		n, err := ParseSize(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}

		*dst = n
	}

	parse(&s.ChunkSize, "chunk_size", c.Transfers.ChunkSize)
	if n, err := ParseRate(c.Transfers.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	} else {
		s.BandwidthLimit = n
	}

	parse(&s.MaxFileSize, "max_file_size", c.Limits.MaxFileSize)
	parse(&s.MaxBatchSize, "max_batch_size", c.Limits.MaxBatchSize)
	parse(&s.DirectThreshold, "direct_threshold", c.Limits.DirectThreshold)
	parse(&s.MaxRequestBody, "max_request_body", c.Server.MaxRequestBody)

	if len(errs) > 0 {
		return Sizes{}, errs[0]
	}

	return s, nil
}

// Timeouts is the parsed form of the duration-valued settings. Zero means
// no deadline.
type Timeouts struct {
	Chunk   time.Duration
	Connect time.Duration
	Data    time.Duration
}

// Timeouts parses the duration-valued settings.
func (c *Config) Timeouts() (Timeouts, error) {
	var t Timeouts

	for _, d := range []struct {
		dst *time.Duration
		key string
		raw string
	}{
		{&t.Chunk, "chunk_timeout", c.Transfers.ChunkTimeout},
		{&t.Connect, "connect_timeout", c.Network.ConnectTimeout},
		{&t.Data, "data_timeout", c.Network.DataTimeout},
	} {
		v, err := parseDuration(d.raw)
		if err != nil {
			return Timeouts{}, fmt.Errorf("%s: %w", d.key, err)
		}

		*d.dst = v
	}

	return t, nil
}

// parseDuration accepts Go duration syntax; empty and "0" mean zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must be non-negative", s)
	}

	return d, nil
}
