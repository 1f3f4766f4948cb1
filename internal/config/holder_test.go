package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHolder(t *testing.T) {
	cfg := DefaultConfig()
	h := NewHolder(cfg, "/etc/flow-go/config.toml")

	require.NotNil(t, h)
	assert.Equal(t, cfg, h.Config())
	assert.Equal(t, "/etc/flow-go/config.toml", h.Path())
}

func TestHolder_Update(t *testing.T) {
	cfg1 := DefaultConfig()
	h := NewHolder(cfg1, "/tmp/config.toml")

	cfg2 := DefaultConfig()
	cfg2.Limits.MaxFileSize = "10MiB"

	h.Update(cfg2)

	got := h.Config()
	assert.Same(t, cfg2, got)
	assert.Equal(t, "10MiB", got.Limits.MaxFileSize)
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/tmp/config.toml")

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(2) //nolint:mnd // one reader, one writer

		go func() {
			defer wg.Done()
			_ = h.Config()
		}()

		go func() {
			defer wg.Done()
			h.Update(DefaultConfig())
		}()
	}

	wg.Wait()
	assert.NotNil(t, h.Config())
}
