package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInitiator struct {
	specs []FileSpec
	err   error
}

func (f *fakeInitiator) Initiate(_ context.Context, spec FileSpec, _ Destination) (*Session, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.specs = append(f.specs, spec)
	n := len(f.specs)

	return &Session{
		Handle:        fmt.Sprintf("%ssession-%d", testPrefix, n),
		DestinationID: fmt.Sprintf("file-%d", n),
		FolderID:      fmt.Sprintf("folder-%d", n),
		FolderLink:    fmt.Sprintf("https://drive.google.com/drive/folders/folder-%d", n),
		TotalSize:     spec.Size,
		MimeType:      spec.MimeType,
		FileName:      spec.Name,
	}, nil
}

// scriptedSender reports the given per-file loaded values, then fails if
// the file is listed in failOn.
type scriptedSender struct {
	sent   []string
	steps  map[string][]int64
	failOn map[string]error
}

func (s *scriptedSender) SendFile(_ context.Context, _ io.ReaderAt, session *Session, onProgress ProgressFunc) error {
	s.sent = append(s.sent, session.FileName)

	for _, loaded := range s.steps[session.FileName] {
		onProgress(NewProgress(loaded, session.TotalSize))
	}

	if err := s.failOn[session.FileName]; err != nil {
		return err
	}

	onProgress(NewProgress(session.TotalSize, session.TotalSize))

	return nil
}

type fakeDirect struct {
	calls [][]File
	err   error
}

func (f *fakeDirect) UploadDirect(_ context.Context, files []File, _ Destination) (*DirectResult, error) {
	f.calls = append(f.calls, files)

	if f.err != nil {
		return nil, f.err
	}

	res := &DirectResult{FolderLink: "https://drive.google.com/drive/folders/direct"}
	for i, file := range files {
		res.Files = append(res.Files, FileResult{Name: file.Name, FileID: fmt.Sprintf("d-%d", i), Size: file.Size})
	}

	return res, nil
}

type fakeNotifier struct {
	sent []Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func testFiles(sizes ...int64) []File {
	files := make([]File, len(sizes))
	for i, size := range sizes {
		files[i] = File{
			Name:     fmt.Sprintf("file%d.mp4", i+1),
			MimeType: "video/mp4",
			Size:     size,
			Content:  bytes.NewReader(testContent(int(size))),
		}
	}

	return files
}

func testLimits() Limits {
	return Limits{MaxFileSize: 50 << 20, MaxBatchSize: 200 << 20, DirectThreshold: 4 << 20}
}

func TestSendBatch_SingleFileTwoChunks(t *testing.T) {
	relay := &fakeSessionRelay{}
	notifier := &fakeNotifier{}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{},
		Sender:    NewSequencer(relay, SequencerConfig{ChunkSize: 5_000_000}, testLogger(t)),
		Direct:    &fakeDirect{},
		Notifier:  notifier,
	}, testLimits(), testLogger(t))

	var last Progress

	res, err := o.SendBatch(context.Background(), testFiles(10_000_000), testDestination(), func(p Progress) {
		last = p
	})
	require.NoError(t, err)

	assert.Len(t, relay.calls, 2)
	assert.Equal(t, 100, last.Percentage)
	assert.False(t, res.Direct)
	assert.True(t, res.Notified)
	assert.NotEmpty(t, res.BatchID)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, 1, notifier.sent[0].FileCount)
	assert.Equal(t, "Clínica Sorriso", notifier.sent[0].ClientName)
	assert.Equal(t, MaterialAds, notifier.sent[0].MaterialType)
}

func TestSendBatch_ThresholdRouting(t *testing.T) {
	const threshold = 1000

	tests := []struct {
		name   string
		sizes  []int64
		direct bool
	}{
		{"below", []int64{400, 500}, true},
		{"exactly at threshold", []int64{500, 500}, true},
		{"one byte above", []int64{500, 501}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direct := &fakeDirect{}
			sender := &scriptedSender{}

			o := NewOrchestrator(OrchestratorDeps{
				Initiator: &fakeInitiator{},
				Sender:    sender,
				Direct:    direct,
				Notifier:  &fakeNotifier{},
			}, Limits{DirectThreshold: threshold}, testLogger(t))

			res, err := o.SendBatch(context.Background(), testFiles(tt.sizes...), testDestination(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.direct, res.Direct)

			if tt.direct {
				assert.Len(t, direct.calls, 1)
				assert.Empty(t, sender.sent)
				assert.Equal(t, "https://drive.google.com/drive/folders/direct", res.FolderLink)
			} else {
				assert.Empty(t, direct.calls)
				assert.Len(t, sender.sent, len(tt.sizes))
			}
		})
	}
}

func TestSendBatch_AbortsOnFailure(t *testing.T) {
	initiator := &fakeInitiator{}
	sender := &scriptedSender{failOn: map[string]error{
		"file2.mp4": fmt.Errorf("%w: probe returned no range", ErrRecoveryExhausted),
	}}
	notifier := &fakeNotifier{}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: initiator,
		Sender:    sender,
		Notifier:  notifier,
	}, Limits{}, testLogger(t))

	res, err := o.SendBatch(context.Background(), testFiles(10, 20, 30), testDestination(), nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrRecoveryExhausted)

	assert.Equal(t, []string{"file1.mp4", "file2.mp4"}, sender.sent)
	assert.Len(t, initiator.specs, 2, "file 3 must never be initiated")
	assert.Empty(t, notifier.sent)
}

func TestSendBatch_InitiateFailureAborts(t *testing.T) {
	notifier := &fakeNotifier{}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{err: ErrBackendUnavailable},
		Sender:    &scriptedSender{},
		Notifier:  notifier,
	}, Limits{}, testLogger(t))

	_, err := o.SendBatch(context.Background(), testFiles(10), testDestination(), nil)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Empty(t, notifier.sent)
}

func TestSendBatch_ProgressNeverDecreases(t *testing.T) {
	sender := &scriptedSender{steps: map[string][]int64{
		// A probe moves file2's cursor from 60 back to 20.
		"file1.mp4": {25, 50, 75},
		"file2.mp4": {30, 60, 20, 60, 90},
	}}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{},
		Sender:    sender,
	}, Limits{}, testLogger(t))

	var seen []int64

	_, err := o.SendBatch(context.Background(), testFiles(100, 100), testDestination(), func(p Progress) {
		seen = append(seen, p.Loaded)
		assert.Equal(t, int64(200), p.Total)
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)

	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1], "progress went from %d to %d", seen[i-1], seen[i])
	}

	assert.Equal(t, int64(200), seen[len(seen)-1])
	assert.Equal(t, []int64{25, 50, 75, 100, 130, 160, 190, 200}, seen)
}

func TestSendBatch_NotifiesWithFirstFolderLink(t *testing.T) {
	notifier := &fakeNotifier{}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{},
		Sender:    &scriptedSender{},
		Notifier:  notifier,
	}, Limits{}, testLogger(t))

	dest := testDestination()
	dest.Description = "Campanha de Natal"

	res, err := o.SendBatch(context.Background(), testFiles(1, 2, 3), dest, nil)
	require.NoError(t, err)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, 3, notifier.sent[0].FileCount)
	assert.Equal(t, "https://drive.google.com/drive/folders/folder-1", notifier.sent[0].FolderLink)
	assert.Equal(t, "Campanha de Natal", notifier.sent[0].Description)
	assert.Equal(t, notifier.sent[0].FolderLink, res.FolderLink)
	assert.Len(t, res.Files, 3)
}

func TestSendBatch_NotificationFailureSwallowed(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("gateway timeout")}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{},
		Sender:    &scriptedSender{},
		Notifier:  notifier,
	}, Limits{}, testLogger(t))

	res, err := o.SendBatch(context.Background(), testFiles(5), testDestination(), nil)
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.Len(t, notifier.sent, 1)
}

func TestSendBatch_DirectFailureNoNotification(t *testing.T) {
	notifier := &fakeNotifier{}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{},
		Sender:    &scriptedSender{},
		Direct:    &fakeDirect{err: errors.New("multipart rejected")},
		Notifier:  notifier,
	}, testLimits(), testLogger(t))

	_, err := o.SendBatch(context.Background(), testFiles(10), testDestination(), nil)
	require.Error(t, err)
	assert.Empty(t, notifier.sent)
}

func TestSendBatch_Admission(t *testing.T) {
	limits := Limits{MaxFileSize: 100, MaxBatchSize: 250}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{},
		Sender:    &scriptedSender{},
	}, limits, testLogger(t))

	_, err := o.SendBatch(context.Background(), nil, testDestination(), nil)
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = o.SendBatch(context.Background(), testFiles(50, 101), testDestination(), nil)
	require.ErrorIs(t, err, ErrFileTooLarge)

	_, err = o.SendBatch(context.Background(), testFiles(100, 100, 100), testDestination(), nil)
	require.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = o.SendBatch(context.Background(), testFiles(10), Destination{}, nil)
	require.ErrorIs(t, err, ErrInvalidDestination)

	total, err := o.Admit(testFiles(100, 100, 50))
	require.NoError(t, err)
	assert.Equal(t, int64(250), total)
}

func TestSendBatch_CanceledBetweenFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := &fakeNotifier{}
	sender := &scriptedSender{}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{},
		Sender:    sender,
		Notifier:  notifier,
	}, Limits{}, testLogger(t))

	_, err := o.SendBatch(ctx, testFiles(10, 10), testDestination(), func(p Progress) {
		if p.Loaded >= 10 {
			cancel()
		}
	})
	require.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, []string{"file1.mp4"}, sender.sent)
	assert.Empty(t, notifier.sent)
}

func TestSendBatch_RealSequencerRecovery(t *testing.T) {
	const size = 10_000_000

	relay := &fakeSessionRelay{}
	relay.intercept = func(n int, _ ChunkDescriptor) (RelayResult, error, bool) {
		if n == 1 {
			return RelayResult{Status: 500}, nil, true
		}

		return RelayResult{}, nil, false
	}

	notifier := &fakeNotifier{}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: &fakeInitiator{},
		Sender:    NewSequencer(relay, SequencerConfig{ChunkSize: 5_000_000}, testLogger(t)),
		Notifier:  notifier,
	}, testLimits(), testLogger(t))

	// Nothing was stored by the failed first chunk, so the probe answers
	// without a range and the file fails.
	_, err := o.SendBatch(context.Background(), testFiles(size), testDestination(), nil)
	require.ErrorIs(t, err, ErrRecoveryExhausted)
	assert.Empty(t, notifier.sent)
}

func TestSendBatch_EmptyFileRefusedBeforeUpload(t *testing.T) {
	initiator := &fakeInitiator{}
	relay := &fakeSessionRelay{}
	notifier := &fakeNotifier{}

	o := NewOrchestrator(OrchestratorDeps{
		Initiator: initiator,
		Sender:    NewSequencer(relay, SequencerConfig{ChunkSize: 5_000_000}, testLogger(t)),
		Notifier:  notifier,
	}, testLimits(), testLogger(t))

	_, err := o.SendBatch(context.Background(), testFiles(10_000_000, 0), testDestination(), nil)
	require.ErrorIs(t, err, ErrInvalidFile)
	assert.ErrorContains(t, err, "file2.mp4")

	assert.Empty(t, initiator.specs, "no session is opened for any file")
	assert.Empty(t, relay.calls)
	assert.Empty(t, notifier.sent)

	_, err = Admit(testFiles(0), Limits{})
	require.ErrorIs(t, err, ErrInvalidFile)
}
