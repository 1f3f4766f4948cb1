// Package relayclient talks to a flow-go server on behalf of an uploading
// client. It implements the upload package's collaborator interfaces
// (session initiation, chunk relay, direct submission, notification) over
// HTTP, so an upload.Orchestrator can run on the client side exactly as it
// would inside the server.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/francaflow/flow-go/internal/server"
	"github.com/francaflow/flow-go/internal/upload"
)

// ErrNotFound is returned by LookupClient for an unknown code.
var ErrNotFound = errors.New("relayclient: not found")

const maxErrorBody = 4096

// Client is an HTTP client of the flow-go server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the server at baseURL.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Initiate asks the server to open a resumable session for spec.
func (c *Client) Initiate(ctx context.Context, spec upload.FileSpec, dest upload.Destination) (*upload.Session, error) {
	var out server.SessionResponse

	status, msg, err := c.doJSON(ctx, http.MethodPost, "/api/upload-sessions", server.SessionRequest{
		FileName:    spec.Name,
		MimeType:    spec.MimeType,
		FileSize:    spec.Size,
		ClientName:  dest.ClientName,
		Category:    dest.Category,
		Type:        dest.MaterialType,
		Description: dest.Description,
	}, &out)
	if err != nil {
		return nil, transportError(ctx, upload.ErrBackendUnavailable, err)
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", sessionStatusError(status), status, msg)
	}

	if out.UploadURL == "" {
		return nil, fmt.Errorf("%w: server returned no upload URL", upload.ErrSessionAllocationFailed)
	}

	return &upload.Session{
		Handle:        out.UploadURL,
		DestinationID: out.FileID,
		FolderID:      out.FolderID,
		FolderLink:    out.FolderLink,
		WebViewLink:   out.WebViewLink,
		TotalSize:     spec.Size,
		MimeType:      spec.MimeType,
		FileName:      spec.Name,
	}, nil
}

func sessionStatusError(status int) error {
	switch status {
	case http.StatusBadRequest:
		return upload.ErrInvalidFile
	case http.StatusRequestEntityTooLarge:
		return upload.ErrFileTooLarge
	case http.StatusServiceUnavailable:
		return upload.ErrBackendUnavailable
	default:
		return upload.ErrSessionAllocationFailed
	}
}

// RelayChunk sends one chunk (or probe) through the server relay. Any
// backend status comes back as a result; only relay-level failures are
// errors.
func (c *Client) RelayChunk(ctx context.Context, handle string, body io.Reader, d upload.ChunkDescriptor) (upload.RelayResult, error) {
	if err := d.Validate(); err != nil {
		return upload.RelayResult{}, err
	}

	var payload io.Reader = http.NoBody
	if !d.IsProbe() {
		if body == nil {
			return upload.RelayResult{}, fmt.Errorf("%w: chunk %s has no body", upload.ErrInvalidChunk, d.ContentRange())
		}

		payload = io.LimitReader(body, d.Len())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/upload-chunk", payload)
	if err != nil {
		return upload.RelayResult{}, fmt.Errorf("relayclient: creating request: %w", err)
	}

	req.ContentLength = d.Len()
	req.Header.Set(server.HeaderUploadURL, handle)
	req.Header.Set(server.HeaderContentRange, d.ContentRange())
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return upload.RelayResult{}, transportError(ctx, upload.ErrRelayTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return upload.RelayResult{}, fmt.Errorf("%w: %s", upload.ErrInvalidChunk, readError(resp))
	case http.StatusForbidden:
		return upload.RelayResult{}, fmt.Errorf("%w: %s", upload.ErrSessionNotAllowed, readError(resp))
	default:
		return upload.RelayResult{}, fmt.Errorf("%w: relay answered HTTP %d: %s",
			upload.ErrRelayTransport, resp.StatusCode, readError(resp))
	}

	var out server.ChunkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return upload.RelayResult{}, fmt.Errorf("%w: decoding relay response: %w", upload.ErrRelayTransport, err)
	}

	return upload.RelayResult{Status: out.Status, StatusText: out.StatusText, Range: out.Range}, nil
}

// UploadDirect submits a small batch as one multipart form. The server is
// told not to announce it; the caller's orchestrator does that.
func (c *Client) UploadDirect(ctx context.Context, files []upload.File, dest upload.Destination) (*upload.DirectResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeDirectForm(mw, files, dest))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("relayclient: creating request: %w", err)
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return nil, transportError(ctx, upload.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", sessionStatusError(resp.StatusCode), resp.StatusCode, readError(resp))
	}

	var out server.DirectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("relayclient: decoding direct upload response: %w", err)
	}

	res := &upload.DirectResult{FolderLink: out.FolderLink}
	for _, f := range out.Files {
		res.Files = append(res.Files, upload.FileResult(f))
	}

	return res, nil
}

func writeDirectForm(mw *multipart.Writer, files []upload.File, dest upload.Destination) error {
	fields := [][2]string{
		{server.FormClientName, dest.ClientName},
		{server.FormCategory, dest.Category},
		{server.FormType, dest.MaterialType},
		{server.FormDescription, dest.Description},
		{server.FormSkipNotify, "true"},
	}

	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	for i, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s%d"; filename="%s"`,
			server.FormFilePrefix, i, escapeQuotes(f.Name)))

		mimeType := f.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		h.Set("Content-Type", mimeType)

		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}

		if _, err := io.Copy(part, io.NewSectionReader(f.Content, 0, f.Size)); err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
	}

	return mw.Close()
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Notify asks the server to announce a batch. Errors wrap
// upload.ErrNotificationFailed.
func (c *Client) Notify(ctx context.Context, n upload.Notification) error {
	status, msg, err := c.doJSON(ctx, http.MethodPost, "/api/notify-after-upload", server.NotifyRequest{
		ClientName:  n.ClientName,
		Category:    n.Category,
		Type:        n.MaterialType,
		FileCount:   n.FileCount,
		Description: n.Description,
		FolderLink:  n.FolderLink,
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", upload.ErrNotificationFailed, err)
	}

	if status != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d: %s", upload.ErrNotificationFailed, status, msg)
	}

	return nil
}

// LookupClient resolves a public client code to its name and category.
func (c *Client) LookupClient(ctx context.Context, code string) (server.LookupResponse, error) {
	var out server.LookupResponse

	status, msg, err := c.doJSON(ctx, http.MethodGet, "/api/clients/"+url.PathEscape(code), nil, &out)
	if err != nil {
		return out, fmt.Errorf("relayclient: looking up %q: %w", code, err)
	}

	switch status {
	case http.StatusOK:
		return out, nil
	case http.StatusNotFound:
		return out, fmt.Errorf("%w: client code %q", ErrNotFound, code)
	default:
		return out, fmt.Errorf("relayclient: looking up %q: HTTP %d: %s", code, status, msg)
	}
}

// Limits fetches the server's admission limits and chunk size.
func (c *Client) Limits(ctx context.Context) (server.LimitsResponse, error) {
	var out server.LimitsResponse

	status, msg, err := c.doJSON(ctx, http.MethodGet, "/api/limits", nil, &out)
	if err != nil {
		return out, fmt.Errorf("relayclient: fetching limits: %w", err)
	}

	if status != http.StatusOK {
		return out, fmt.Errorf("relayclient: fetching limits: HTTP %d: %s", status, msg)
	}

	return out, nil
}

// doJSON sends in (if non-nil) as JSON and decodes a 200 response into out
// (if non-nil). For other statuses it returns the server's error message.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) (int, string, error) {
	var body io.Reader = http.NoBody

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, "", fmt.Errorf("encoding request: %w", err)
		}

		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, readError(resp), nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, "", fmt.Errorf("decoding %s response: %w", path, err)
		}
	}

	return resp.StatusCode, "", nil
}

// readError extracts the server's {"error": ...} message, falling back to
// the raw body.
func readError(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort read for error message

	var e struct {
		Error string `json:"error"`
	}

	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}

	return strings.TrimSpace(string(raw))
}

// transportError classifies a failed round trip: canceled contexts become
// upload.ErrCanceled, everything else kind.
func transportError(ctx context.Context, kind, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", upload.ErrCanceled, err)
	}

	return fmt.Errorf("%w: %w", kind, err)
}
