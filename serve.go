package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/francaflow/flow-go/internal/clients"
	"github.com/francaflow/flow-go/internal/config"
	"github.com/francaflow/flow-go/internal/drive"
	"github.com/francaflow/flow-go/internal/folders"
	"github.com/francaflow/flow-go/internal/notify"
	"github.com/francaflow/flow-go/internal/server"
	"github.com/francaflow/flow-go/internal/upload"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload relay and client directory server",
		Long: `Run the HTTP server that uploading clients talk to: session creation,
the chunk relay, small-batch direct uploads, batch notifications, the client
directory and its admin endpoints.

The config file is watched; limits, the admin password and the [notify]
settings take effect on the next request after a save. Drive credentials,
the client directory backend and the relay's upload prefix and bandwidth
limit are read once at startup. SIGHUP (or
"flow-go reload") forces a re-read.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (overrides [server] listen)")
	cmd.Flags().String("pid-file", config.PIDFilePath(), "PID file guarding against a second server")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	ctx := shutdownContext(cmd.Context(), logger)

	pidPath, _ := cmd.Flags().GetString("pid-file")

	removePID, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer removePID()

	holder := config.NewHolder(cc.Cfg, watchablePath(cc.CfgPath))

	// The token source outlives ctx so requests draining during shutdown
	// can still authenticate.
	deps, closeDeps, err := buildServerDeps(context.WithoutCancel(ctx), holder, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	srv := server.New(deps, holder, logger)

	reload := func(path string) (*config.Config, error) {
		cli := cc.Overrides
		cli.ConfigPath = path

		cfg, _, err := config.Resolve(config.ReadEnvOverrides(), cli)

		return cfg, err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(gctx, cc.Cfg.Server.Listen)
	})

	g.Go(func() error {
		return config.Watch(gctx, holder, reload, logger)
	})

	g.Go(func() error {
		reloadOnSIGHUP(gctx, holder, reload, logger)
		return nil
	})

	logger.Info("flow-go server starting",
		slog.String("version", version),
		slog.String("listen", cc.Cfg.Server.Listen),
		slog.String("config", cc.CfgPath),
	)

	return g.Wait()
}

// reloadOnSIGHUP re-reads the config file each time the process receives
// SIGHUP, until ctx is canceled.
func reloadOnSIGHUP(ctx context.Context, h *config.Holder, reload config.ReloadFunc, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if h.Path() == "" {
				logger.Warn("SIGHUP ignored: running without a config file")
				continue
			}

			config.Reload(h, reload, logger)
		}
	}
}

func newReloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask the running server to re-read its config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			pidPath, _ := cmd.Flags().GetString("pid-file")

			pid, err := signalReload(pidPath)
			if err != nil {
				return err
			}

			cc.Statusf("Sent reload to server (PID %d)\n", pid)

			return nil
		},
	}

	cmd.Flags().String("pid-file", config.PIDFilePath(), "PID file of the running server")

	return cmd
}

// watchablePath returns path if the config file exists. Running on pure
// defaults leaves nothing to watch.
func watchablePath(path string) string {
	if path == "" {
		return ""
	}

	if _, err := os.Stat(path); err != nil {
		return ""
	}

	return path
}

// buildServerDeps wires the Drive client, folder resolver, upload pipeline,
// notifier and client directory. Everything but the notifier is built from
// the config current at startup; the notifier reads h on every send. The
// returned func releases the client directory.
func buildServerDeps(ctx context.Context, h *config.Holder, logger *slog.Logger) (server.Deps, func(), error) {
	cfg := h.Config()

	sizes, err := cfg.Sizes()
	if err != nil {
		return server.Deps{}, nil, fmt.Errorf("config: %w", err)
	}

	timeouts, err := cfg.Timeouts()
	if err != nil {
		return server.Deps{}, nil, fmt.Errorf("config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Notify.TimeZone)
	if err != nil {
		return server.Deps{}, nil, fmt.Errorf("config: time_zone: %w", err)
	}

	dc, err := newDriveClient(ctx, cfg, timeouts, logger)
	if err != nil {
		return server.Deps{}, nil, err
	}

	if cfg.Drive.RootFolderID == "" {
		return server.Deps{}, nil, errors.New("config: [drive] root_folder_id is required to serve")
	}

	resolver := folders.NewResolver(dc, cfg.Drive.RootFolderID, loc, logger)
	hub := server.NewHub(logger)

	relay := upload.NewRelay(dc, upload.RelayOptions{
		AllowedPrefix: cfg.Server.AllowedUploadPrefix,
		Limiter:       upload.NewBandwidthLimiter(sizes.BandwidthLimit, logger),
		Logger:        logger,
		Observer:      hub.Publish,
	})

	notifier := notify.NewSourceClient(notifySettings(h, logger), newHTTPClient(timeouts), logger)

	if !notifier.Enabled() {
		logger.Warn("notifications disabled: [notify] token and group_id are not both set")
	}

	store, err := openClientStore(ctx, cfg, logger)
	if err != nil {
		return server.Deps{}, nil, err
	}

	deps := server.Deps{
		Initiator: upload.NewInitiator(resolver, dc, logger),
		Relay:     relay,
		Direct:    upload.NewDirectSender(resolver, dc, logger),
		Notifier:  notifier,
		Clients:   store,
		Events:    hub,
	}

	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing client directory", slog.String("error", err.Error()))
		}
	}

	return deps, closeFn, nil
}

// notifySettings reads [notify] from the live config so a reload changes
// the endpoint, token, group or time zone of the next notification.
func notifySettings(h *config.Holder, logger *slog.Logger) notify.Source {
	return func() notify.Config {
		n := h.Config().Notify

		loc, err := time.LoadLocation(n.TimeZone)
		if err != nil {
			logger.Warn("notify: falling back to UTC",
				slog.String("time_zone", n.TimeZone),
				slog.String("error", err.Error()),
			)

			loc = time.UTC
		}

		return notify.Config{
			Endpoint: n.Endpoint,
			Token:    n.Token,
			GroupID:  n.GroupID,
			Location: loc,
		}
	}
}

// newDriveClient authenticates with the configured service account key.
func newDriveClient(ctx context.Context, cfg *config.Config, t config.Timeouts, logger *slog.Logger) (*drive.Client, error) {
	key, err := drive.LoadServiceAccountKey(cfg.Drive.CredentialsFile, cfg.Drive.CredentialsJSON)
	if err != nil {
		return nil, fmt.Errorf("drive credentials: %w", err)
	}

	ts, err := drive.ServiceAccountTokenSource(ctx, key, logger)
	if err != nil {
		return nil, fmt.Errorf("drive credentials: %w", err)
	}

	return drive.NewClient(drive.Endpoints{
		APIBaseURL:    cfg.Drive.APIBaseURL,
		UploadBaseURL: cfg.Drive.UploadBaseURL,
		SharedDriveID: cfg.Drive.SharedDriveID,
	}, newHTTPClient(t), ts, logger, cfg.Network.UserAgent), nil
}

// openClientStore opens the configured client directory backend.
func openClientStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (clients.Store, error) {
	switch cfg.Clients.Backend {
	case config.ClientsBackendRedis:
		return clients.NewRedisStore(cfg.Clients.RedisAddr, cfg.Clients.RedisKey, logger), nil
	default:
		path := config.ClientsDBPath(cfg)
		if path == "" {
			return nil, errors.New("config: cannot determine clients db_path; set [clients] db_path")
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}

		store, err := clients.NewSQLiteStore(ctx, path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening client directory: %w", err)
		}

		return store, nil
	}
}
