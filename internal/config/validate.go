package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	chunkAlignBytes = 262_144     // 256 KiB alignment for resumable upload chunks
	minChunkBytes   = 262_144     // 256 KiB
	maxChunkBytes   = 104_857_600 // 100 MiB
	minProbes       = 1
	maxProbes       = 100
	minChunkTimeout = 5 * time.Second
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDrive(&cfg.Drive)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)
	errs = append(errs, validateClients(&cfg.Clients)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateDrive(d *DriveConfig) []error {
	var errs []error

	errs = append(errs, validateURL("api_base_url", d.APIBaseURL)...)
	errs = append(errs, validateURL("upload_base_url", d.UploadBaseURL)...)

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	errs = append(errs, validateChunkSize(t.ChunkSize)...)

	if t.MaxProbes < minProbes || t.MaxProbes > maxProbes {
		errs = append(errs, fmt.Errorf("max_probes: must be between %d and %d, got %d",
			minProbes, maxProbes, t.MaxProbes))
	}

	d, err := parseDuration(t.ChunkTimeout)
	if err != nil {
		errs = append(errs, fmt.Errorf("chunk_timeout: %w", err))
	} else if d != 0 && d < minChunkTimeout {
		errs = append(errs, fmt.Errorf("chunk_timeout: must be 0 or at least %s, got %s", minChunkTimeout, d))
	}

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	return errs
}

func validateChunkSize(s string) []error {
	bytes, err := ParseSize(s)
	if err != nil {
		return []error{fmt.Errorf("chunk_size: %w", err)}
	}

	var errs []error

	if bytes < minChunkBytes || bytes > maxChunkBytes {
		errs = append(errs, fmt.Errorf("chunk_size: must be between 256KiB and 100MiB, got %s", s))
	}

	if bytes%chunkAlignBytes != 0 {
		errs = append(errs, fmt.Errorf("chunk_size: must be a multiple of 256 KiB, got %s", s))
	}

	return errs
}

func validateLimits(l *LimitsConfig) []error {
	var errs []error

	fileMax, err := ParseSize(l.MaxFileSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("max_file_size: %w", err))
	} else if fileMax <= 0 {
		errs = append(errs, errors.New("max_file_size: must be greater than zero"))
	}

	batchMax, err := ParseSize(l.MaxBatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("max_batch_size: %w", err))
	} else if batchMax < fileMax {
		errs = append(errs, fmt.Errorf("max_batch_size: must be at least max_file_size (%s)", l.MaxFileSize))
	}

	if _, err := ParseSize(l.DirectThreshold); err != nil {
		errs = append(errs, fmt.Errorf("direct_threshold: %w", err))
	}

	return errs
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.Listen == "" {
		errs = append(errs, errors.New("listen: must not be empty"))
	}

	errs = append(errs, validateURL("url", s.URL)...)
	errs = append(errs, validateURL("allowed_upload_prefix", s.AllowedUploadPrefix)...)

	if n, err := ParseSize(s.MaxRequestBody); err != nil {
		errs = append(errs, fmt.Errorf("max_request_body: %w", err))
	} else if n < minChunkBytes {
		errs = append(errs, fmt.Errorf("max_request_body: must be at least 256KiB, got %s", s.MaxRequestBody))
	}

	return errs
}

func validateNotify(n *NotifyConfig) []error {
	var errs []error

	if n.Endpoint != "" {
		errs = append(errs, validateURL("endpoint", n.Endpoint)...)
	}

	if _, err := time.LoadLocation(n.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("time_zone: %w", err))
	}

	return errs
}

func validateClients(c *ClientsConfig) []error {
	switch c.Backend {
	case ClientsBackendSQLite:
		return nil
	case ClientsBackendRedis:
		if c.RedisAddr == "" {
			return []error{errors.New("redis_addr: required when backend is \"redis\"")}
		}

		if c.RedisKey == "" {
			return []error{errors.New("redis_key: must not be empty")}
		}

		return nil
	default:
		return []error{fmt.Errorf("backend: must be %q or %q, got %q",
			ClientsBackendSQLite, ClientsBackendRedis, c.Backend)}
	}
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if _, err := parseDuration(n.ConnectTimeout); err != nil {
		errs = append(errs, fmt.Errorf("connect_timeout: %w", err))
	}

	if _, err := parseDuration(n.DataTimeout); err != nil {
		errs = append(errs, fmt.Errorf("data_timeout: %w", err))
	}

	return errs
}

func validateURL(key, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", key, err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("%s: must be an http(s) URL, got %q", key, raw)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("%s: missing host in %q", key, raw)}
	}

	return nil
}
