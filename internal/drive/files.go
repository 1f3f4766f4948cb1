package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// FindFolder looks up a non-trashed folder named name directly under
// parentID in the shared drive. Returns found=false when none exists. When
// several match, the first one Drive lists wins.
func (c *Client) FindFolder(ctx context.Context, parentID, name string) (string, bool, error) {
	q := fmt.Sprintf("name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), FolderMimeType, escapeQuery(parentID))

	params := url.Values{}
	params.Set("q", q)
	params.Set("fields", "files(id)")
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")

	if c.driveID != "" {
		params.Set("corpora", "drive")
		params.Set("driveId", c.driveID)
	}

	resp, err := c.do(ctx, &request{
		method: http.MethodGet,
		url:    c.apiURL + "/files?" + params.Encode(),
	})
	if err != nil {
		return "", false, fmt.Errorf("drive: listing folder %q: %w", name, err)
	}
	defer resp.Body.Close()

	var fl fileList
	if err := json.NewDecoder(resp.Body).Decode(&fl); err != nil {
		return "", false, fmt.Errorf("drive: decoding folder list: %w", err)
	}

	if len(fl.Files) == 0 {
		return "", false, nil
	}

	return fl.Files[0].ID, true, nil
}

// CreateFolder creates a folder named name under parentID and returns its ID.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	f, err := c.create(ctx, createFileRequest{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentID},
	}, "id")
	if err != nil {
		return "", fmt.Errorf("drive: creating folder %q: %w", name, err)
	}

	c.logger.Info("created folder",
		slog.String("name", name),
		slog.String("parent_id", parentID),
		slog.String("folder_id", f.ID),
	)

	return f.ID, nil
}

// CreateFile creates an empty file with the given name and MIME type under
// parentID. Its content is written later through a resumable session.
func (c *Client) CreateFile(ctx context.Context, parentID, name, mimeType string) (*File, error) {
	f, err := c.create(ctx, createFileRequest{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}, "id,name,webViewLink")
	if err != nil {
		return nil, fmt.Errorf("drive: creating file %q: %w", name, err)
	}

	c.logger.Debug("created empty file",
		slog.String("name", name),
		slog.String("file_id", f.ID),
	)

	return f, nil
}

// DeleteFile permanently deletes a file.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	resp, err := c.do(ctx, &request{
		method: http.MethodDelete,
		url:    c.apiURL + "/files/" + url.PathEscape(fileID) + "?supportsAllDrives=true",
	})
	if err != nil {
		return fmt.Errorf("drive: deleting file %s: %w", fileID, err)
	}

	resp.Body.Close()

	return nil
}

func (c *Client) create(ctx context.Context, body createFileRequest, fields string) (*File, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	params := url.Values{}
	params.Set("supportsAllDrives", "true")
	params.Set("fields", fields)

	resp, err := c.do(ctx, &request{
		method: http.MethodPost,
		url:    c.apiURL + "/files?" + params.Encode(),
		body:   data,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var f File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if f.ID == "" {
		return nil, errors.New("response carried no file id")
	}

	return &f, nil
}
