package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francaflow/flow-go/internal/drive"
)

const testPrefix = "https://www.googleapis.com/upload/"

type putCall struct {
	url          string
	body         string
	contentRange string
	length       int64
}

type fakePutter struct {
	calls []putCall
	resp  *drive.ChunkResponse
	err   error
}

func (f *fakePutter) PutChunk(_ context.Context, sessionURL string, body io.Reader, contentRange string, length int64) (*drive.ChunkResponse, error) {
	c := putCall{url: sessionURL, contentRange: contentRange, length: length}

	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}

		c.body = string(b)
	}

	f.calls = append(f.calls, c)

	if f.err != nil {
		return nil, f.err
	}

	return f.resp, nil
}

func TestRelayChunk_ForwardsVerbatim(t *testing.T) {
	putter := &fakePutter{resp: &drive.ChunkResponse{
		StatusCode: http.StatusPermanentRedirect,
		Status:     "Permanent Redirect",
		Range:      "bytes=0-3",
	}}

	var events []RelayEvent

	r := NewRelay(putter, RelayOptions{
		AllowedPrefix: testPrefix,
		Logger:        testLogger(t),
		Observer:      func(ev RelayEvent) { events = append(events, ev) },
	})

	// Extra trailing bytes are never forwarded.
	res, err := r.RelayChunk(context.Background(), testPrefix+"s1", strings.NewReader("abcdEXTRA"), Chunk(0, 3, 10))
	require.NoError(t, err)

	assert.Equal(t, RelayResult{Status: http.StatusPermanentRedirect, StatusText: "Permanent Redirect", Range: "bytes=0-3"}, res)
	require.Len(t, putter.calls, 1)
	assert.Equal(t, putCall{url: testPrefix + "s1", body: "abcd", contentRange: "bytes 0-3/10", length: 4}, putter.calls[0])

	require.Len(t, events, 1)
	assert.Equal(t, "chunk", events[0].Kind)
	assert.Equal(t, http.StatusPermanentRedirect, events[0].Status)
	assert.False(t, events[0].At.IsZero())
}

func TestRelayChunk_ErrorStatusIsNotAnError(t *testing.T) {
	putter := &fakePutter{resp: &drive.ChunkResponse{StatusCode: http.StatusServiceUnavailable}}
	r := NewRelay(putter, RelayOptions{AllowedPrefix: testPrefix})

	res, err := r.RelayChunk(context.Background(), testPrefix+"s1", strings.NewReader("x"), Chunk(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
}

func TestRelayChunk_Probe(t *testing.T) {
	putter := &fakePutter{resp: &drive.ChunkResponse{StatusCode: http.StatusPermanentRedirect, Range: "bytes=0-4999999"}}
	r := NewRelay(putter, RelayOptions{AllowedPrefix: testPrefix})

	res, err := r.RelayChunk(context.Background(), testPrefix+"s1", strings.NewReader("ignored"), Probe(10_000_000))
	require.NoError(t, err)
	assert.Equal(t, "bytes=0-4999999", res.Range)

	require.Len(t, putter.calls, 1)
	assert.Equal(t, "bytes */10000000", putter.calls[0].contentRange)
	assert.Empty(t, putter.calls[0].body)
	assert.Zero(t, putter.calls[0].length)
}

func TestRelayChunk_TransportError(t *testing.T) {
	putter := &fakePutter{err: errors.New("dial tcp: connection refused")}
	r := NewRelay(putter, RelayOptions{})

	_, err := r.RelayChunk(context.Background(), testPrefix+"s1", strings.NewReader("x"), Chunk(0, 0, 1))
	assert.ErrorIs(t, err, ErrRelayTransport)
}

func TestRelayChunk_CanceledIsNotTransport(t *testing.T) {
	putter := &fakePutter{err: context.Canceled}
	r := NewRelay(putter, RelayOptions{})

	_, err := r.RelayChunk(context.Background(), testPrefix+"s1", strings.NewReader("x"), Chunk(0, 0, 1))
	require.ErrorIs(t, err, ErrCanceled)
	assert.NotErrorIs(t, err, ErrRelayTransport)
}

func TestRelayChunk_Validation(t *testing.T) {
	putter := &fakePutter{resp: &drive.ChunkResponse{StatusCode: http.StatusOK}}
	r := NewRelay(putter, RelayOptions{AllowedPrefix: testPrefix})

	_, err := r.RelayChunk(context.Background(), "https://evil.example/steal", strings.NewReader("x"), Chunk(0, 0, 1))
	require.ErrorIs(t, err, ErrSessionNotAllowed)

	_, err = r.RelayChunk(context.Background(), "", strings.NewReader("x"), Chunk(0, 0, 1))
	require.ErrorIs(t, err, ErrSessionNotAllowed)

	_, err = r.RelayChunk(context.Background(), testPrefix+"s1", strings.NewReader("x"), Chunk(5, 2, 10))
	require.ErrorIs(t, err, ErrInvalidChunk)

	_, err = r.RelayChunk(context.Background(), testPrefix+"s1", nil, Chunk(0, 0, 1))
	require.ErrorIs(t, err, ErrInvalidChunk)

	assert.Empty(t, putter.calls)
}

func TestRelayChunk_ThroughDriveClient(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", string(body))
		assert.Equal(t, "bytes 0-4/10", r.Header.Get("Content-Range"))

		w.Header().Set("Range", "bytes=0-4")
		w.WriteHeader(http.StatusPermanentRedirect)
	}))
	defer backend.Close()

	client := drive.NewClient(drive.Endpoints{}, backend.Client(), drive.StaticToken("t"), testLogger(t), "")
	r := NewRelay(client, RelayOptions{AllowedPrefix: backend.URL})

	res, err := r.RelayChunk(context.Background(), backend.URL+"/session", strings.NewReader("hello"), Chunk(0, 4, 10))
	require.NoError(t, err)
	assert.Equal(t, http.StatusPermanentRedirect, res.Status)
	assert.Equal(t, "bytes=0-4", res.Range)
}

func TestRelayChunk_BandwidthLimited(t *testing.T) {
	putter := &fakePutter{resp: &drive.ChunkResponse{StatusCode: http.StatusOK}}

	// 1000 B/s with a 2000 B burst: 4000 bytes needs about two seconds of
	// refill after the burst; the context cuts it short.
	r := NewRelay(putter, RelayOptions{Limiter: NewBandwidthLimiter(1000, testLogger(t))})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := r.RelayChunk(ctx, testPrefix+"s1", strings.NewReader(strings.Repeat("x", 4000)), Chunk(0, 3999, 4000))
	require.Error(t, err)
}
