// Package notify posts the post-batch announcement to the team chat group
// through a uazapi-compatible "send text" endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/francaflow/flow-go/internal/upload"
)

// timestampLayout matches the pt-BR short date and time style.
const timestampLayout = "02/01/2006, 15:04"

// Config configures a Client.
type Config struct {
	Endpoint string
	Token    string
	GroupID  string
	Location *time.Location
}

// Source returns the settings for the next notification. The server backs
// it with the live config so edits to [notify] apply without a restart.
type Source func() Config

// Client sends batch notifications. A Client with no token or group is
// valid and skips every notification.
type Client struct {
	source     Source
	httpClient *http.Client
	logger     *slog.Logger
	nowFunc    func() time.Time
}

// NewClient creates a notification client with fixed settings.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	return NewSourceClient(func() Config { return cfg }, httpClient, logger)
}

// NewSourceClient creates a notification client that reads its settings
// from source on every call.
func NewSourceClient(source Source, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{source: source, httpClient: httpClient, logger: logger, nowFunc: time.Now}
}

func (c *Client) settings() Config {
	cfg := c.source()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return cfg
}

// Enabled reports whether notifications will actually be sent.
func (c *Client) Enabled() bool {
	return c.settings().enabled()
}

func (cfg Config) enabled() bool {
	return cfg.Token != "" && cfg.GroupID != "" && cfg.Endpoint != ""
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// Notify posts the announcement for n. Errors wrap
// upload.ErrNotificationFailed; callers log them and move on.
func (c *Client) Notify(ctx context.Context, n upload.Notification) error {
	cfg := c.settings()
	if !cfg.enabled() {
		c.logger.Warn("notification skipped: token or group not configured")
		return nil
	}

	body, err := json.Marshal(sendTextRequest{Number: cfg.GroupID, Text: c.message(n, cfg.Location)})
	if err != nil {
		return fmt.Errorf("%w: marshaling message: %w", upload.ErrNotificationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", upload.ErrNotificationFailed, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", upload.ErrNotificationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // best-effort read for error message
		return fmt.Errorf("%w: HTTP %d: %s", upload.ErrNotificationFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	c.logger.Info("notification sent",
		slog.String("client", n.ClientName),
		slog.Int("files", n.FileCount),
	)

	return nil
}

// Message renders the chat message for n.
func (c *Client) Message(n upload.Notification) string {
	return c.message(n, c.settings().Location)
}

func (c *Client) message(n upload.Notification, loc *time.Location) string {
	var b strings.Builder

	b.WriteString("📥 *Novo upload recebido!*\n\n")
	fmt.Fprintf(&b, "👤 Cliente: %s\n", n.ClientName)
	fmt.Fprintf(&b, "📂 Categoria: %s\n", n.Category)
	fmt.Fprintf(&b, "📁 Tipo: %s\n", n.MaterialType)
	fmt.Fprintf(&b, "📎 Arquivos: %d", n.FileCount)

	if d := strings.TrimSpace(n.Description); d != "" {
		fmt.Fprintf(&b, "\n📝 Descrição: %s", d)
	}

	if n.FolderLink != "" {
		fmt.Fprintf(&b, "\n📂 Pasta no Drive:\n%s", n.FolderLink)
	}

	fmt.Fprintf(&b, "\n🕒 Data: %s", c.nowFunc().In(loc).Format(timestampLayout))

	return b.String()
}
