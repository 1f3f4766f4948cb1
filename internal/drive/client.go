package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Retry and backoff constants.
const (
	maxRetries       = 5
	baseBackoff      = 1 * time.Second
	maxBackoff       = 60 * time.Second
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	defaultUserAgent = "flow-go/0.1"
)

// Default Drive endpoints.
const (
	DefaultAPIBaseURL    = "https://www.googleapis.com/drive/v3"
	DefaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3"
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// (drive package) per Go convention "accept interfaces, return structs".
type TokenSource interface {
	Token() (string, error)
}

// Endpoints locates the Drive API and the shared drive all folders and
// files live in.
type Endpoints struct {
	APIBaseURL    string
	UploadBaseURL string
	SharedDriveID string
}

// Client is an HTTP client for the Google Drive v3 API.
// It handles request construction, authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	apiURL     string
	uploadURL  string
	driveID    string
	httpClient *http.Client
	// chunkClient never follows redirects: a 308 from a resumable session
	// means "resume incomplete", not "go elsewhere".
	chunkClient *http.Client
	token       TokenSource
	logger      *slog.Logger
	userAgent   string

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Drive API client. Empty endpoint URLs fall back to
// the public Google endpoints.
func NewClient(ep Endpoints, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if ep.APIBaseURL == "" {
		ep.APIBaseURL = DefaultAPIBaseURL
	}

	if ep.UploadBaseURL == "" {
		ep.UploadBaseURL = DefaultUploadBaseURL
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	chunkClient := *httpClient
	chunkClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		apiURL:      ep.APIBaseURL,
		uploadURL:   ep.UploadBaseURL,
		driveID:     ep.SharedDriveID,
		httpClient:  httpClient,
		chunkClient: &chunkClient,
		token:       token,
		logger:      logger,
		userAgent:   userAgent,
		sleepFunc:   timeSleep,
	}
}

// SharedDriveID returns the shared drive the client targets.
func (c *Client) SharedDriveID() string {
	return c.driveID
}

// request describes one authenticated API call. body is held as bytes so
// the request can be rebuilt on every retry attempt.
type request struct {
	method      string
	url         string
	contentType string
	body        []byte
	header      http.Header
}

// do executes an authenticated request with retry. Token failures are not
// retried. The caller is responsible for closing the response body on
// success.
func (c *Client) do(ctx context.Context, r *request) (*http.Response, error) {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, r)
		if err != nil {
			if errors.Is(err, ErrTokenUnavailable) {
				return nil, err
			}

			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("drive: request canceled: %w", ctx.Err())
			}

			// Network errors are retryable.
			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", r.method),
					slog.String("url", r.url),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("drive: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%w: %s %s failed after %d retries: %w",
				ErrUnreachable, r.method, r.url, maxRetries, err)
		}

		// 2xx — success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", r.method),
				slog.String("url", r.url),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		apiErr := newAPIError(resp.StatusCode, errBody)

		if isRetryable(apiErr) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", r.method),
				slog.String("url", r.url),
				slog.Int("status", resp.StatusCode),
				slog.String("reason", apiErr.Reason),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("drive: request canceled: %w", err)
			}

			attempt++

			continue
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", r.method),
				slog.String("url", r.url),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, apiErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, r *request) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}

	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)

	if r.body != nil {
		contentType := r.contentType
		if contentType == "" {
			contentType = "application/json"
		}

		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
