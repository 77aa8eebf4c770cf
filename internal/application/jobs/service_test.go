package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramasta/verimedia/internal/domain/analysis"
	domain "github.com/bramasta/verimedia/internal/domain/jobs"
	"github.com/bramasta/verimedia/internal/infra/db/memory"
	"github.com/bramasta/verimedia/internal/telemetry"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeClassifier struct {
	modality  analysis.Modality
	err       error
	rejectErr error
}

func (f *fakeClassifier) Classify(declaredMIME, filename string, sample []byte) (analysis.Modality, error) {
	return f.modality, f.err
}

func (f *fakeClassifier) QuickReject(declaredMIME string) error { return f.rejectErr }

// fakeAnalyzer replays a scripted sequence of responses; the last one
// repeats.
type fakeAnalyzer struct {
	mu       sync.Mutex
	modality analysis.Modality
	outcomes []*analysis.Outcome
	errs     []error
	calls    int
}

func (f *fakeAnalyzer) Modality() analysis.Modality { return f.modality }

func (f *fakeAnalyzer) Analyze(ctx context.Context, data []byte) (*analysis.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.errs) {
		i = len(f.errs) - 1
	}
	f.calls++
	if f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.outcomes[i], nil
}

func scripted(modality analysis.Modality, outcome *analysis.Outcome, errs ...error) *fakeAnalyzer {
	if len(errs) == 0 {
		errs = []error{nil}
	}
	outcomes := make([]*analysis.Outcome, len(errs))
	for i := range errs {
		if errs[i] == nil {
			outcomes[i] = outcome
		}
	}
	return &fakeAnalyzer{modality: modality, outcomes: outcomes, errs: errs}
}

type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{blobs: make(map[string][]byte)} }

func (b *fakeBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = data
	return nil
}

func (b *fakeBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, analysis.ErrNotFound)
	}
	return data, nil
}

func singleUnitOutcome(score float64, modelUsed string, cues ...string) *analysis.Outcome {
	return &analysis.Outcome{
		Units:     []analysis.Unit{{Index: 0, Score: score, Source: analysis.SourceHeuristic, Cues: cues}},
		ModelUsed: modelUsed,
		Cues:      cues,
	}
}

type harness struct {
	svc     *Service
	repo    *memory.JobRepository
	blobs   *fakeBlobs
	metrics *telemetry.Metrics
}

func newHarness(t *testing.T, az *fakeAnalyzer, opts Options) *harness {
	t.Helper()

	repo := memory.NewJobRepository()
	blobs := newFakeBlobs()
	metrics := telemetry.NewNop()

	svc := NewService(
		repo, blobs,
		&fakeClassifier{modality: az.modality},
		map[analysis.Modality]analysis.Analyzer{az.modality: az},
		fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		zerolog.Nop(), metrics, opts,
	)
	return &harness{svc: svc, repo: repo, blobs: blobs, metrics: metrics}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.svc.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.svc.Stop(ctx)
	})
}

func (h *harness) submit(t *testing.T, fileRef string, data []byte) domain.ID {
	t.Helper()
	require.NoError(t, h.blobs.Put(context.Background(), fileRef, bytes.NewReader(data), int64(len(data)), ""))
	id, err := h.svc.Submit(context.Background(), SubmitCommand{
		FileRef:      fileRef,
		FileName:     fileRef,
		DeclaredMIME: "image/png",
	})
	require.NoError(t, err)
	return id
}

func (h *harness) awaitTerminal(t *testing.T, id domain.ID) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		j, err := h.svc.Status(context.Background(), id)
		if err != nil || !j.State.Terminal() {
			return false
		}
		job = j
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestSubmitAndComplete(t *testing.T) {
	az := scripted(analysis.ModalityImage, singleUnitOutcome(0.82, "heuristic-image", "high noise variance"))
	h := newHarness(t, az, Options{Threshold: 0.5, RetryLimit: 1})
	h.start(t)

	id := h.submit(t, "u1.png", []byte("pixels"))
	job := h.awaitTerminal(t, id)

	assert.Equal(t, domain.StateCompleted, job.State)
	assert.Equal(t, analysis.ModalityImage, job.Modality)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.IsFake)
	assert.InDelta(t, 0.82, job.Result.Confidence, 1e-9)
	assert.Equal(t, "heuristic-image", job.Result.ModelUsed)
	assert.Equal(t, []float64{0.82}, job.Result.Metadata.UnitScores)
	assert.Contains(t, job.Result.Metadata.Cues, "high noise variance")

	// the heuristic path counts as a fallback
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Fallbacks.WithLabelValues("image")))
}

func TestSubmitQuickReject(t *testing.T) {
	az := scripted(analysis.ModalityImage, singleUnitOutcome(0.1, "m"))
	h := newHarness(t, az, Options{})
	h.svc.Classifier = &fakeClassifier{rejectErr: analysis.ErrUnsupportedMediaType}

	_, err := h.svc.Submit(context.Background(), SubmitCommand{FileRef: "x", DeclaredMIME: "application/pdf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrUnsupportedMediaType))

	list, err := h.svc.Latest(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected submission leaves no job record")
}

func TestSubmitOverloaded(t *testing.T) {
	az := scripted(analysis.ModalityImage, singleUnitOutcome(0.1, "m"))
	h := newHarness(t, az, Options{MaxQueueDepth: 1})
	// workers not started: the one queue slot stays occupied

	_, err := h.svc.Submit(context.Background(), SubmitCommand{FileRef: "a"})
	require.NoError(t, err)

	_, err = h.svc.Submit(context.Background(), SubmitCommand{FileRef: "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrOverloaded))

	list, err := h.svc.Latest(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1, "the overloaded submission leaves no job record")
}

func TestStatusUnknownID(t *testing.T) {
	az := scripted(analysis.ModalityImage, singleUnitOutcome(0.1, "m"))
	h := newHarness(t, az, Options{})

	_, err := h.svc.Status(context.Background(), "no-such-job")
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrNotFound))
}

func TestJobFailsOnCorruptInput(t *testing.T) {
	az := scripted(analysis.ModalityImage, nil, analysis.ErrCorruptInput)
	h := newHarness(t, az, Options{RetryLimit: 1})
	h.start(t)

	id := h.submit(t, "broken.png", []byte("garbage"))
	job := h.awaitTerminal(t, id)

	assert.Equal(t, domain.StateFailed, job.State)
	assert.Equal(t, "corrupt_input", job.Cause)
	assert.Nil(t, job.Result)
	assert.Equal(t, 1, az.calls, "corrupt input is never retried")
}

func TestJobFailsOnMissingBlob(t *testing.T) {
	az := scripted(analysis.ModalityImage, singleUnitOutcome(0.1, "m"))
	h := newHarness(t, az, Options{})
	h.start(t)

	id, err := h.svc.Submit(context.Background(), SubmitCommand{FileRef: "vanished"})
	require.NoError(t, err)
	job := h.awaitTerminal(t, id)

	assert.Equal(t, domain.StateFailed, job.State)
	assert.Equal(t, "not_found", job.Cause)
}

func TestJobFailsOnUnsupportedModality(t *testing.T) {
	az := scripted(analysis.ModalityImage, singleUnitOutcome(0.1, "m"))
	h := newHarness(t, az, Options{})
	h.svc.Classifier = &fakeClassifier{modality: analysis.ModalityAudio}
	h.start(t)

	id := h.submit(t, "track.wav", []byte("audio"))
	job := h.awaitTerminal(t, id)

	assert.Equal(t, domain.StateFailed, job.State)
	assert.Equal(t, "unsupported_media_type", job.Cause)
}

func TestTransientErrorRetriedOnce(t *testing.T) {
	az := scripted(analysis.ModalityImage,
		singleUnitOutcome(0.3, "tflite-image-authenticity"),
		analysis.ErrTransientInference, nil)
	h := newHarness(t, az, Options{RetryLimit: 1})
	h.start(t)

	id := h.submit(t, "flaky.png", []byte("pixels"))
	job := h.awaitTerminal(t, id)

	assert.Equal(t, domain.StateCompleted, job.State)
	assert.Equal(t, 2, az.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Retries))
}

func TestTransientErrorExhaustsRetries(t *testing.T) {
	az := scripted(analysis.ModalityImage, nil,
		analysis.ErrTransientInference, analysis.ErrTransientInference)
	h := newHarness(t, az, Options{RetryLimit: 1})
	h.start(t)

	id := h.submit(t, "flaky.png", []byte("pixels"))
	job := h.awaitTerminal(t, id)

	assert.Equal(t, domain.StateFailed, job.State)
	assert.Equal(t, "transient_inference_error", job.Cause)
	assert.Equal(t, 2, az.calls, "one attempt plus one retry")
}

func TestMultiUnitAggregation(t *testing.T) {
	outcome := &analysis.Outcome{
		ModelUsed: "tflite-image-authenticity",
		Units: []analysis.Unit{
			{Index: 0, Score: 0.1}, {Index: 1, Score: 0.1}, {Index: 2, Score: 0.1},
			{Index: 3, Score: 0.1}, {Index: 4, Score: 0.1}, {Index: 5, Score: 0.1},
			{Index: 6, Score: 0.1}, {Index: 7, Score: 0.1}, {Index: 8, Score: 0.1},
			{Index: 9, Score: 0.9},
		},
		Meta: analysis.Meta{FramesAnalyzed: 10, TemporalConsistency: 0.4},
	}
	az := scripted(analysis.ModalityVideo, outcome)
	h := newHarness(t, az, Options{Threshold: 0.5})
	h.start(t)

	id := h.submit(t, "clip.mp4", []byte("frames"))
	job := h.awaitTerminal(t, id)

	require.NotNil(t, job.Result)
	assert.InDelta(t, 0.396, job.Result.Confidence, 1e-9)
	assert.False(t, job.Result.IsFake)
	assert.Equal(t, 10, job.Result.Metadata.FramesAnalyzed)
	assert.InDelta(t, 0.4, job.Result.Metadata.TemporalConsistency, 1e-9)
	assert.Len(t, job.Result.Metadata.UnitScores, 10)
}

// ctxRepo refuses work on a canceled context, the way the SQL stores'
// ExecContext does.
type ctxRepo struct {
	inner *memory.JobRepository
}

func (r *ctxRepo) Save(ctx context.Context, j *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.inner.Save(ctx, j)
}

func (r *ctxRepo) Get(ctx context.Context, id domain.ID) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.inner.Get(ctx, id)
}

func (r *ctxRepo) UpdateState(ctx context.Context, id domain.ID, state domain.State, cause string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.inner.UpdateState(ctx, id, state, cause)
}

func (r *ctxRepo) Latest(ctx context.Context, limit int) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.inner.Latest(ctx, limit)
}

// blockingAnalyzer parks until the job is interrupted.
type blockingAnalyzer struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingAnalyzer) Modality() analysis.Modality { return analysis.ModalityImage }

func (b *blockingAnalyzer) Analyze(ctx context.Context, data []byte) (*analysis.Outcome, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, fmt.Errorf("%v: %w", ctx.Err(), analysis.ErrCanceled)
}

func TestShutdownPersistsCanceledState(t *testing.T) {
	repo := &ctxRepo{inner: memory.NewJobRepository()}
	blobs := newFakeBlobs()
	az := &blockingAnalyzer{started: make(chan struct{})}

	svc := NewService(
		repo, blobs,
		&fakeClassifier{modality: analysis.ModalityImage},
		map[analysis.Modality]analysis.Analyzer{analysis.ModalityImage: az},
		fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		zerolog.Nop(), telemetry.NewNop(), Options{Workers: 1},
	)
	svc.Start()

	ctx := context.Background()
	require.NoError(t, blobs.Put(ctx, "stuck.png", bytes.NewReader([]byte("pixels")), 6, ""))
	id, err := svc.Submit(ctx, SubmitCommand{FileRef: "stuck.png", DeclaredMIME: "image/png"})
	require.NoError(t, err)

	<-az.started

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(stopCtx))

	// the terminal write must survive the canceled worker context
	job, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, job.State)
	assert.Equal(t, "canceled", job.Cause)
}

func TestStopDrainsWorkers(t *testing.T) {
	az := scripted(analysis.ModalityImage, singleUnitOutcome(0.2, "m"))
	h := newHarness(t, az, Options{Workers: 2})
	h.svc.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.svc.Stop(ctx))
}
