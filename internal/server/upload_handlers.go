package server

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/francaflow/flow-go/internal/upload"
)

// Request headers of the chunk relay.
const (
	HeaderUploadURL    = "X-Upload-Url"
	HeaderContentRange = "Content-Range"
)

// ChunkResponse is the body of a relayed chunk: the backend's answer,
// passed through unchanged.
type ChunkResponse struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Range      string `json:"range,omitempty"`
}

// handleUploadChunk relays one chunk or probe. It answers 200 whenever the
// backend answered, whatever its status; the client reads the outcome from
// the body.
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	handle := r.Header.Get(HeaderUploadURL)
	contentRange := r.Header.Get(HeaderContentRange)

	if handle == "" || contentRange == "" {
		s.writeError(w, http.StatusBadRequest, "missing X-Upload-Url or Content-Range header")
		return
	}

	d, err := upload.ParseContentRange(contentRange)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Relay.CheckHandle(handle); err != nil {
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}

	if !d.IsProbe() && r.ContentLength >= 0 && r.ContentLength != d.Len() {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("body is %d bytes, Content-Range %s needs %d", r.ContentLength, contentRange, d.Len()))

		return
	}

	res, err := s.deps.Relay.RelayChunk(r.Context(), handle, r.Body, d)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrInvalidChunk):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, upload.ErrSessionNotAllowed):
			s.writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, upload.ErrCanceled):
			s.logger.Debug("chunk relay canceled by client", slog.String("content_range", contentRange))
		default:
			s.logger.Warn("chunk relay failed",
				slog.String("content_range", contentRange),
				slog.String("error", err.Error()),
			)
			s.writeError(w, http.StatusBadGateway, err.Error())
		}

		return
	}

	s.writeJSON(w, http.StatusOK, ChunkResponse{Status: res.Status, StatusText: res.StatusText, Range: res.Range})
}

// SessionRequest is the body of POST /api/upload-sessions.
type SessionRequest struct {
	FileName    string `json:"fileName"`
	MimeType    string `json:"mimeType"`
	FileSize    int64  `json:"fileSize"`
	ClientName  string `json:"clienteNome"`
	Category    string `json:"categoria"`
	Type        string `json:"tipo"`
	Description string `json:"descricao,omitempty"`
}

// Destination returns the upload destination named by the request.
func (r SessionRequest) Destination() upload.Destination {
	return upload.Destination{
		ClientName:   r.ClientName,
		Category:     r.Category,
		MaterialType: r.Type,
		Description:  r.Description,
	}
}

// SessionResponse is the body of a successful POST /api/upload-sessions.
type SessionResponse struct {
	Success     bool   `json:"success"`
	FileID      string `json:"fileId"`
	UploadURL   string `json:"uploadUrl"`
	FolderID    string `json:"folderId"`
	FolderLink  string `json:"folderLink"`
	WebViewLink string `json:"webViewLink,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req SessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	spec := upload.FileSpec{Name: req.FileName, MimeType: req.MimeType, Size: req.FileSize}

	if _, err := upload.Admit([]upload.File{{Name: spec.Name, Size: spec.Size}}, st.limits); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	session, err := s.deps.Initiator.Initiate(r.Context(), spec, req.Destination())
	if err != nil {
		s.logger.Warn("session initiation failed",
			slog.String("file", req.FileName),
			slog.String("error", err.Error()),
		)
		s.writeError(w, statusFor(err), err.Error())

		return
	}

	s.writeJSON(w, http.StatusOK, SessionResponse{
		Success:     true,
		FileID:      session.DestinationID,
		UploadURL:   session.Handle,
		FolderID:    session.FolderID,
		FolderLink:  session.FolderLink,
		WebViewLink: session.WebViewLink,
	})
}

// Form fields of POST /api/upload.
const (
	FormClientName  = "clienteNome"
	FormCategory    = "categoria"
	FormType        = "tipo"
	FormDescription = "descricao"
	FormSkipNotify  = "skipNotify"
	FormFilePrefix  = "file_"
)

// DirectResponse is the body of a successful POST /api/upload.
type DirectResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	BatchID    string             `json:"batchId"`
	FolderLink string             `json:"folderLink"`
	Files      []DirectFileResult `json:"files"`
	Notified   bool               `json:"notified"`
}

// DirectFileResult describes one stored file.
type DirectFileResult struct {
	Name        string `json:"name"`
	FileID      string `json:"fileId"`
	WebViewLink string `json:"webViewLink,omitempty"`
	Size        int64  `json:"size"`
}

// handleDirectUpload stores a small batch sent as one multipart form and,
// unless the caller announces the batch itself, notifies the team.
func (s *Server) handleDirectUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Direct == nil {
		s.writeError(w, http.StatusServiceUnavailable, "direct upload disabled")
		return
	}

	st, err := s.settings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if st.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, st.maxBody)
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}

		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files are best-effort cleanup

	dest := upload.Destination{
		ClientName:   r.FormValue(FormClientName),
		Category:     r.FormValue(FormCategory),
		MaterialType: r.FormValue(FormType),
		Description:  r.FormValue(FormDescription),
	}

	files, closeAll, err := formFiles(r.MultipartForm)
	defer closeAll()

	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deps := upload.OrchestratorDeps{Direct: s.deps.Direct}
	if skip, _ := strconv.ParseBool(r.FormValue(FormSkipNotify)); !skip { //nolint:errcheck // absent or malformed means notify
		deps.Notifier = s.deps.Notifier
	}

	limits := st.limits
	limits.DirectThreshold = math.MaxInt64

	res, err := upload.NewOrchestrator(deps, limits, s.logger).SendBatch(r.Context(), files, dest, nil)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	out := DirectResponse{
		Success:    true,
		Message:    fmt.Sprintf("%d arquivo(s) enviado(s) com sucesso", len(res.Files)),
		BatchID:    res.BatchID,
		FolderLink: res.FolderLink,
		Notified:   res.Notified,
	}

	for _, f := range res.Files {
		out.Files = append(out.Files, DirectFileResult(f))
	}

	s.writeJSON(w, http.StatusOK, out)
}

// formFiles opens every "file_*" part in field order (file_0, file_1, ...).
// The returned func closes whatever was opened.
func formFiles(form *multipart.Form) ([]upload.File, func(), error) {
	var opened []multipart.File

	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	var keys []string

	for k := range form.File {
		if strings.HasPrefix(k, FormFilePrefix) {
			keys = append(keys, k)
		}
	}

	slices.SortFunc(keys, compareFileFields)

	var files []upload.File

	for _, k := range keys {
		for _, fh := range form.File[k] {
			f, err := fh.Open()
			if err != nil {
				return nil, closeAll, fmt.Errorf("opening %s: %w", fh.Filename, err)
			}

			opened = append(opened, f)
			files = append(files, upload.File{
				Name:     fh.Filename,
				MimeType: fh.Header.Get("Content-Type"),
				Size:     fh.Size,
				Content:  f,
			})
		}
	}

	return files, closeAll, nil
}

// compareFileFields orders "file_N" fields numerically, others by name.
func compareFileFields(a, b string) int {
	na, errA := strconv.Atoi(strings.TrimPrefix(a, FormFilePrefix))
	nb, errB := strconv.Atoi(strings.TrimPrefix(b, FormFilePrefix))

	if errA == nil && errB == nil {
		return na - nb
	}

	return strings.Compare(a, b)
}

// NotifyRequest is the body of POST /api/notify-after-upload.
type NotifyRequest struct {
	ClientName  string `json:"clienteNome"`
	Category    string `json:"categoria"`
	Type        string `json:"tipo"`
	FileCount   int    `json:"quantidade"`
	Description string `json:"descricao,omitempty"`
	FolderLink  string `json:"driveLink,omitempty"`
}

// handleNotify announces a batch the client uploaded through the relay.
// Delivery problems never fail the request.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.deps.Notifier != nil {
		err := s.deps.Notifier.Notify(r.Context(), upload.Notification{
			ClientName:   req.ClientName,
			Category:     req.Category,
			MaterialType: req.Type,
			Description:  req.Description,
			FileCount:    req.FileCount,
			FolderLink:   req.FolderLink,
		})
		if err != nil {
			s.logger.Warn("notification failed", slog.String("error", err.Error()))
		}
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// statusFor maps upload errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, upload.ErrInvalidFile),
		errors.Is(err, upload.ErrInvalidDestination),
		errors.Is(err, upload.ErrEmptyBatch),
		errors.Is(err, upload.ErrInvalidChunk):
		return http.StatusBadRequest
	case errors.Is(err, upload.ErrFileTooLarge), errors.Is(err, upload.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, upload.ErrSessionAllocationFailed):
		return http.StatusBadGateway
	case errors.Is(err, upload.ErrCanceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
