package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc rebuilds the effective config from the file at path, applying
// the same environment and CLI overrides as the initial load.
type ReloadFunc func(path string) (*Config, error)

// Watch reloads the config into h whenever the config file is written,
// created, or renamed into place. The parent directory is watched rather than
// the file so that editors that save via rename are picked up. An invalid
// file is logged and ignored; the previous config stays active. Watch blocks
// until ctx is canceled.
func Watch(ctx context.Context, h *Holder, reload ReloadFunc, logger *slog.Logger) error {
	path := h.Path()
	if path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	logger.Debug("watching config file", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}

			Reload(h, reload, logger)

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", werr.Error()))
		}
	}
}

// Reload rebuilds the config from h's file and installs it. On failure the
// previous config stays active.
func Reload(h *Holder, reload ReloadFunc, logger *slog.Logger) {
	cfg, err := reload(h.Path())
	if err != nil {
		logger.Warn("config reload failed, keeping previous config",
			slog.String("path", h.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	h.Update(cfg)
	logger.Info("config reloaded", slog.String("path", h.Path()))
}
