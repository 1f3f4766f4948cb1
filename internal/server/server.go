// Package server is the HTTP face of flow-go: the chunk relay and session
// endpoints used by uploading clients, the small-batch direct upload, the
// post-batch notification hook, the client directory, and a websocket feed
// of relay activity.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/francaflow/flow-go/internal/clients"
	"github.com/francaflow/flow-go/internal/config"
	"github.com/francaflow/flow-go/internal/upload"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
	maxJSONBody       = 1 << 20
	maxFormMemory     = 32 << 20
)

// ChunkRelay forwards chunks to resumable sessions. Satisfied by
// *upload.Relay.
type ChunkRelay interface {
	upload.ChunkRelay
	CheckHandle(handle string) error
}

// Deps are the collaborators behind the HTTP surface. Direct, Notifier and
// Events may be nil; the endpoints that need them then answer 503 (or, for
// notifications, succeed without sending).
type Deps struct {
	Initiator upload.SessionInitiator
	Relay     ChunkRelay
	Direct    upload.DirectUploader
	Notifier  upload.Notifier
	Clients   clients.Store
	Events    *Hub
}

// Server serves the flow-go HTTP API. Limits and the admin password are
// read from the config holder on every request, so a config reload takes
// effect without a restart.
type Server struct {
	deps    Deps
	holder  *config.Holder
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New creates a Server.
func New(deps Deps, holder *config.Holder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{deps: deps, holder: holder, logger: logger, nowFunc: time.Now}
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/limits", s.handleLimits)

	mux.HandleFunc("POST /api/upload-sessions", s.handleCreateSession)
	mux.HandleFunc("PUT /api/upload-chunk", s.handleUploadChunk)
	mux.HandleFunc("POST /api/upload", s.handleDirectUpload)
	mux.HandleFunc("POST /api/notify-after-upload", s.handleNotify)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/clients/{code}", s.handleLookupClient)
	mux.HandleFunc("POST /api/admin/login", s.handleLogin)
	mux.HandleFunc("POST /api/admin/logout", s.handleLogout)
	mux.Handle("GET /api/admin/clients", s.requireAdmin(http.HandlerFunc(s.handleListClients)))
	mux.Handle("POST /api/admin/clients", s.requireAdmin(http.HandlerFunc(s.handleAddClient)))
	mux.Handle("DELETE /api/admin/clients", s.requireAdmin(http.HandlerFunc(s.handleRemoveClient)))
	mux.Handle("POST /api/admin/migrate", s.requireAdmin(http.HandlerFunc(s.handleMigrateClients)))

	return s.withRequestLog(mux)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully. Returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errc := make(chan error, 1)

	go func() {
		s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}

	return nil
}

// settings is the per-request view of the live config.
type settings struct {
	limits        upload.Limits
	chunkSize     int64
	maxBody       int64
	adminPassword string
}

func (s *Server) settings() (settings, error) {
	cfg := s.holder.Config()

	sizes, err := cfg.Sizes()
	if err != nil {
		return settings{}, fmt.Errorf("server: reading limits: %w", err)
	}

	return settings{
		limits: upload.Limits{
			MaxFileSize:     sizes.MaxFileSize,
			MaxBatchSize:    sizes.MaxBatchSize,
			DirectThreshold: sizes.DirectThreshold,
		},
		chunkSize:     sizes.ChunkSize,
		maxBody:       sizes.MaxRequestBody,
		adminPassword: cfg.Server.AdminPassword,
	}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n") //nolint:errcheck // nothing to do on a failed health write
}

// LimitsResponse is the body of GET /api/limits.
type LimitsResponse struct {
	MaxFileSize     int64 `json:"maxFileSize"`
	MaxBatchSize    int64 `json:"maxBatchSize"`
	DirectThreshold int64 `json:"directThreshold"`
	ChunkSize       int64 `json:"chunkSize"`
}

func (s *Server) handleLimits(w http.ResponseWriter, _ *http.Request) {
	st, err := s.settings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, LimitsResponse{
		MaxFileSize:     st.limits.MaxFileSize,
		MaxBatchSize:    st.limits.MaxBatchSize,
		DirectThreshold: st.limits.DirectThreshold,
		ChunkSize:       st.chunkSize,
	})
}
