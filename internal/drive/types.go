package drive

import "strings"

// FolderMimeType is the MIME type Drive uses for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// File is the subset of Drive file metadata the uploader consumes.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	WebViewLink string `json:"webViewLink,omitempty"`
}

type fileList struct {
	Files []File `json:"files"`
}

type createFileRequest struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

// ChunkResponse is the backend's answer to a chunk PUT or status probe,
// passed through verbatim.
type ChunkResponse struct {
	StatusCode int
	Status     string
	// Range is the Range response header, e.g. "bytes=0-4194303". Empty
	// when the backend has not persisted any bytes.
	Range string
}

// FolderLink returns the browser URL for a Drive folder.
func FolderLink(folderID string) string {
	return "https://drive.google.com/drive/folders/" + folderID
}

// escapeQuery escapes a literal for use inside a single-quoted Drive query
// string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
