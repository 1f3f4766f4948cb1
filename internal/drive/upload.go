package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
)

// StartResumable opens a resumable upload session for the existing file
// fileID, scoped to exactly size bytes of mimeType content. Returns the
// session URL from the Location header. The session URL is pre-authorized:
// chunk PUTs against it carry no bearer token.
func (c *Client) StartResumable(ctx context.Context, fileID, mimeType string, size int64) (string, error) {
	c.logger.Info("starting resumable session",
		slog.String("file_id", fileID),
		slog.String("mime_type", mimeType),
		slog.Int64("size", size),
	)

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Upload-Content-Type", mimeType)
	header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))

	resp, err := c.do(ctx, &request{
		method: http.MethodPatch,
		url: c.uploadURL + "/files/" + url.PathEscape(fileID) +
			"?uploadType=resumable&supportsAllDrives=true",
		header: header,
	})
	if err != nil {
		return "", fmt.Errorf("drive: starting resumable session: %w", err)
	}
	defer resp.Body.Close()

	// Drain body to reuse connection.
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", ErrNoSessionURL
	}

	c.logger.Debug("resumable session opened", slog.String("file_id", fileID))

	return loc, nil
}

// PutChunk sends one PUT to a resumable session URL with the given
// Content-Range and returns the backend's answer verbatim, whatever its
// status. Exactly one round trip: no retry, no auth header, no redirects.
// A nil body with length 0 is a status probe ("bytes */total").
func (c *Client) PutChunk(
	ctx context.Context, sessionURL string, body io.Reader, contentRange string, length int64,
) (*ChunkResponse, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, body)
	if err != nil {
		return nil, fmt.Errorf("drive: creating chunk request: %w", err)
	}

	req.Header.Set("Content-Range", contentRange)
	req.Header.Set("User-Agent", c.userAgent)
	req.ContentLength = length

	if length == 0 {
		req.Body = http.NoBody
	}

	resp, err := c.chunkClient.Do(req)
	if err != nil {
		c.logger.Warn("chunk request failed",
			slog.String("content_range", contentRange),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("drive: chunk PUT failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain body to reuse connection.
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain

	c.logger.Debug("chunk response",
		slog.String("content_range", contentRange),
		slog.Int("status", resp.StatusCode),
		slog.String("range", resp.Header.Get("Range")),
	)

	return &ChunkResponse{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Range:      resp.Header.Get("Range"),
	}, nil
}

// MultipartUpload creates a file under parentID with metadata and content
// in a single multipart/related request. Content is buffered in memory so
// the request can be retried; use it only for small files.
func (c *Client) MultipartUpload(
	ctx context.Context, parentID, name, mimeType string, content io.Reader,
) (*File, error) {
	meta, err := json.Marshal(createFileRequest{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	})
	if err != nil {
		return nil, fmt.Errorf("drive: marshaling file metadata: %w", err)
	}

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("drive: building multipart body: %w", err)
	}

	if _, err := metaPart.Write(meta); err != nil {
		return nil, fmt.Errorf("drive: building multipart body: %w", err)
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return nil, fmt.Errorf("drive: building multipart body: %w", err)
	}

	n, err := io.Copy(mediaPart, content)
	if err != nil {
		return nil, fmt.Errorf("drive: reading content of %q: %w", name, err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("drive: building multipart body: %w", err)
	}

	c.logger.Info("multipart upload",
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.Int64("size", n),
	)

	resp, err := c.do(ctx, &request{
		method: http.MethodPost,
		url: c.uploadURL +
			"/files?uploadType=multipart&supportsAllDrives=true&fields=id,name,webViewLink",
		contentType: "multipart/related; boundary=" + mw.Boundary(),
		body:        buf.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("drive: uploading %q: %w", name, err)
	}
	defer resp.Body.Close()

	var f File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("drive: decoding upload response: %w", err)
	}

	return &f, nil
}
