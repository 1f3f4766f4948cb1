package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_ChunkSize(t *testing.T) {
	tests := []struct {
		size    string
		wantErr string
	}{
		{"4MiB", ""},
		{"256KiB", ""},
		{"100MiB", ""},
		{"128KiB", "between 256KiB and 100MiB"},
		{"200MiB", "between 256KiB and 100MiB"},
		{"5MB", "multiple of 256 KiB"},
		{"lots", "chunk_size"},
	}

	for _, tt := range tests {
		t.Run(tt.size, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Transfers.ChunkSize = tt.size

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ChunkTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transfers.ChunkTimeout = "0"
	assert.NoError(t, Validate(cfg))

	cfg.Transfers.ChunkTimeout = "1s"
	assert.ErrorContains(t, Validate(cfg), "chunk_timeout")

	cfg.Transfers.ChunkTimeout = "soon"
	assert.ErrorContains(t, Validate(cfg), "chunk_timeout")
}

func TestValidate_BatchSmallerThanFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxFileSize = "100MiB"
	cfg.Limits.MaxBatchSize = "50MiB"

	assert.ErrorContains(t, Validate(cfg), "max_batch_size")
}

func TestValidate_ZeroFileLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxFileSize = "0"

	assert.ErrorContains(t, Validate(cfg), "max_file_size: must be greater than zero")
}

func TestValidate_URLs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.URL = "ftp://example.com"
	cfg.Server.AllowedUploadPrefix = "not a url"
	cfg.Drive.APIBaseURL = "https://"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url: must be an http(s) URL")
	assert.Contains(t, err.Error(), "allowed_upload_prefix")
	assert.Contains(t, err.Error(), "api_base_url: missing host")
}

func TestValidate_NotifyTimeZone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Notify.TimeZone = "Mars/Olympus_Mons"

	assert.ErrorContains(t, Validate(cfg), "time_zone")
}

func TestValidate_ClientsBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clients.Backend = "postgres"

	assert.ErrorContains(t, Validate(cfg), `backend: must be "sqlite" or "redis"`)
}

func TestValidate_LogFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.LogFormat = "xml"

	assert.ErrorContains(t, Validate(cfg), "log_format")
}
