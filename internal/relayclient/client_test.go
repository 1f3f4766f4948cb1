package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francaflow/flow-go/internal/clients"
	"github.com/francaflow/flow-go/internal/config"
	"github.com/francaflow/flow-go/internal/drive"
	"github.com/francaflow/flow-go/internal/server"
	"github.com/francaflow/flow-go/internal/upload"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// driveSession is a fake Drive resumable session that can drop the tail
// of a chunk once, to exercise probe recovery end to end.
type driveSession struct {
	mu        sync.Mutex
	data      []byte
	total     int64
	dropBytes int
	dropped   bool
}

func (d *driveSession) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cr := r.Header.Get("Content-Range")
	body, _ := io.ReadAll(r.Body) //nolint:errcheck // test double

	if !strings.HasPrefix(cr, "bytes */") {
		if d.dropBytes > 0 && !d.dropped && len(d.data) > 0 {
			// Keep part of the chunk and report a server error.
			d.dropped = true
			d.data = append(d.data, body[:len(body)-d.dropBytes]...)
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		d.data = append(d.data, body...)
	}

	if int64(len(d.data)) == d.total {
		w.WriteHeader(http.StatusOK)
		return
	}

	if len(d.data) > 0 {
		w.Header().Set("Range", "bytes=0-"+strconv.Itoa(len(d.data)-1))
	}

	w.WriteHeader(http.StatusPermanentRedirect)
}

type stubInitiator struct {
	sessionURL string
}

func (s *stubInitiator) Initiate(_ context.Context, spec upload.FileSpec, _ upload.Destination) (*upload.Session, error) {
	return &upload.Session{
		Handle:        s.sessionURL,
		DestinationID: "file-1",
		FolderID:      "month",
		FolderLink:    drive.FolderLink("month"),
		TotalSize:     spec.Size,
		FileName:      spec.Name,
	}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []upload.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note upload.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, note)

	return nil
}

type storedDirect struct {
	names []string
}

func (s *storedDirect) UploadDirect(_ context.Context, files []upload.File, _ upload.Destination) (*upload.DirectResult, error) {
	res := &upload.DirectResult{FolderLink: drive.FolderLink("month")}

	for _, f := range files {
		s.names = append(s.names, f.Name)
		res.Files = append(res.Files, upload.FileResult{Name: f.Name, FileID: "id-" + f.Name, Size: f.Size})
	}

	return res, nil
}

type stack struct {
	client   *Client
	session  *driveSession
	notifier *recordingNotifier
	direct   *storedDirect
	store    clients.Store
}

// newStack runs a real server in front of a fake Drive session.
func newStack(t *testing.T, total int64) *stack {
	t.Helper()

	ds := &driveSession{total: total}
	driveSrv := httptest.NewServer(ds)
	t.Cleanup(driveSrv.Close)

	dc := drive.NewClient(drive.Endpoints{APIBaseURL: driveSrv.URL, UploadBaseURL: driveSrv.URL},
		driveSrv.Client(), drive.StaticToken("tok"), testLogger(), "")

	store, err := clients.NewSQLiteStore(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	notifier := &recordingNotifier{}
	direct := &storedDirect{}

	srv := server.New(server.Deps{
		Initiator: &stubInitiator{sessionURL: driveSrv.URL + "/upload/s1"},
		Relay:     upload.NewRelay(dc, upload.RelayOptions{AllowedPrefix: driveSrv.URL + "/", Logger: testLogger()}),
		Direct:    direct,
		Notifier:  notifier,
		Clients:   store,
	}, config.NewHolder(config.DefaultConfig(), ""), testLogger())

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &stack{
		client:   New(api.URL+"/", api.Client(), testLogger()),
		session:  ds,
		notifier: notifier,
		direct:   direct,
		store:    store,
	}
}

func content(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}

	return b
}

func TestEndToEnd_ChunkedBatchWithRecovery(t *testing.T) {
	const size = 1000

	st := newStack(t, size)
	st.session.dropBytes = 50

	data := content(size)
	seq := upload.NewSequencer(st.client, upload.SequencerConfig{ChunkSize: 256}, testLogger())

	orch := upload.NewOrchestrator(upload.OrchestratorDeps{
		Initiator: st.client,
		Sender:    seq,
		Notifier:  st.client,
	}, upload.Limits{}, testLogger())

	var last upload.Progress

	res, err := orch.SendBatch(context.Background(), []upload.File{
		{Name: "video.mp4", MimeType: "video/mp4", Size: size, Content: bytes.NewReader(data)},
	}, upload.Destination{ClientName: "Loja X", Category: "E-commerce", MaterialType: upload.MaterialAds}, func(p upload.Progress) {
		assert.GreaterOrEqual(t, p.Loaded, last.Loaded)
		last = p
	})
	require.NoError(t, err)

	assert.Equal(t, data, st.session.data, "backend holds every byte exactly once")
	assert.True(t, st.session.dropped)
	assert.Equal(t, 100, last.Percentage)
	assert.Equal(t, "https://drive.google.com/drive/folders/month", res.FolderLink)

	require.Len(t, st.notifier.sent, 1)
	assert.Equal(t, 1, st.notifier.sent[0].FileCount)
	assert.Equal(t, res.FolderLink, st.notifier.sent[0].FolderLink)
}

func TestEndToEnd_DirectBatchNotifiesOnce(t *testing.T) {
	st := newStack(t, 1)

	orch := upload.NewOrchestrator(upload.OrchestratorDeps{
		Direct:   st.client,
		Notifier: st.client,
	}, upload.Limits{DirectThreshold: 1 << 20}, testLogger())

	res, err := orch.SendBatch(context.Background(), []upload.File{
		{Name: "a.png", Size: 3, Content: bytes.NewReader([]byte("abc"))},
		{Name: "b \"q\".png", Size: 2, Content: bytes.NewReader([]byte("de"))},
	}, upload.Destination{ClientName: "A", Category: "B", MaterialType: upload.MaterialCreatives}, nil)
	require.NoError(t, err)

	assert.True(t, res.Direct)
	assert.Equal(t, []string{"a.png", `b "q".png`}, st.direct.names)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "id-a.png", res.Files[0].FileID)

	// The server skipped its own announcement; the orchestrator sent one.
	assert.Len(t, st.notifier.sent, 1)
}

func TestLookupClientAndLimits(t *testing.T) {
	st := newStack(t, 1)

	_, err := st.store.Add(context.Background(), clients.NewClient{Name: "Cara de Cão", Category: "Negócio Local", Code: "cara-de-cao"})
	require.NoError(t, err)

	got, err := st.client.LookupClient(context.Background(), "cara-de-cao")
	require.NoError(t, err)
	assert.Equal(t, "Cara de Cão", got.Name)

	_, err = st.client.LookupClient(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	limits, err := st.client.Limits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(50<<20), limits.MaxFileSize)
}

func TestRelayChunk_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"transport", http.StatusBadGateway, upload.ErrRelayTransport},
		{"malformed", http.StatusBadRequest, upload.ErrInvalidChunk},
		{"forbidden", http.StatusForbidden, upload.ErrSessionNotAllowed},
		{"unexpected", http.StatusInternalServerError, upload.ErrRelayTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"error": "boom"}) //nolint:errcheck // test double
			}))
			defer srv.Close()

			c := New(srv.URL, srv.Client(), testLogger())

			_, err := c.RelayChunk(context.Background(), "https://x/upload", bytes.NewReader([]byte("ab")), upload.Chunk(0, 1, 10))
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "boom")
		})
	}
}

func TestRelayChunk_SendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "https://x/upload", r.Header.Get(server.HeaderUploadURL))
		assert.Equal(t, "bytes */10", r.Header.Get(server.HeaderContentRange))
		assert.Zero(t, r.ContentLength)

		json.NewEncoder(w).Encode(server.ChunkResponse{Status: 308, Range: "bytes=0-4"}) //nolint:errcheck // test double
	}))
	defer srv.Close()

	res, err := New(srv.URL, srv.Client(), testLogger()).RelayChunk(context.Background(), "https://x/upload", nil, upload.Probe(10))
	require.NoError(t, err)
	assert.Equal(t, 308, res.Status)
	assert.Equal(t, "bytes=0-4", res.Range)
}

func TestInitiate_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusServiceUnavailable, upload.ErrBackendUnavailable},
		{http.StatusBadGateway, upload.ErrSessionAllocationFailed},
		{http.StatusRequestEntityTooLarge, upload.ErrFileTooLarge},
		{http.StatusBadRequest, upload.ErrInvalidFile},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer srv.Close()

			_, err := New(srv.URL, srv.Client(), testLogger()).Initiate(context.Background(),
				upload.FileSpec{Name: "a", Size: 1}, upload.Destination{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInitiate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil, testLogger()).Initiate(context.Background(), upload.FileSpec{Name: "a", Size: 1}, upload.Destination{})
	assert.ErrorIs(t, err, upload.ErrBackendUnavailable)
}

func TestRelayChunk_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL, srv.Client(), testLogger()).RelayChunk(ctx, "https://x/upload",
		bytes.NewReader([]byte("a")), upload.Chunk(0, 0, 1))
	assert.True(t, errors.Is(err, upload.ErrCanceled), "got %v", err)
}

func TestNotify_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL, srv.Client(), testLogger()).Notify(context.Background(), upload.Notification{})
	assert.ErrorIs(t, err, upload.ErrNotificationFailed)
}
