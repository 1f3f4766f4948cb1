package config

import "sync"

// Holder is the live config of a running server. Watch and the SIGHUP
// handler swap in a new *Config through Update; HTTP handlers and the
// notifier call Config per request, so a reload reaches the next request
// without restarting anything. A *Config handed out is never mutated.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder returns a Holder serving cfg. path is the file Watch follows;
// an empty path means the server runs on defaults and never reloads.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the config in effect now.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the watched config file, or "" when there is none.
func (h *Holder) Path() string {
	return h.path
}

// Update makes cfg the config for every later Config call.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}
