package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekazari/intelligence/internal/jobs"
	"github.com/nekazari/intelligence/internal/orion"
	"github.com/nekazari/intelligence/internal/plugin"
	"github.com/nekazari/intelligence/internal/plugin/mock"
	"github.com/nekazari/intelligence/internal/plugin/simple"
	"github.com/nekazari/intelligence/pkg/models"
)

// stubOrion records write-through calls and optionally fails them.
type stubOrion struct {
	mu    sync.Mutex
	err   error
	calls []orion.Prediction
}

func (s *stubOrion) CreateOrUpdatePrediction(_ context.Context, p orion.Prediction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	if s.err != nil {
		return "", s.err
	}
	return p.EntityID, nil
}

func (s *stubOrion) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type workerHarness struct {
	svc   *jobs.Service
	orion *stubOrion
	stop  context.CancelFunc
}

// startWorker wires a service and worker over miniredis with fast timings and
// runs the loop until the test ends.
func startWorker(t *testing.T, oc *stubOrion) *workerHarness {
	t.Helper()

	_, client := setupRedis(t)
	store := jobs.NewRedisStore(client)
	queue := jobs.NewRedisQueue(client)
	svc := jobs.NewService(store, queue)

	registry := plugin.NewRegistry()
	require.NoError(t, registry.Register(simple.New()))
	require.NoError(t, registry.Register(mock.New()))

	w := jobs.NewWorker(svc, queue, registry, oc,
		jobs.WithPopTimeout(100*time.Millisecond),
		jobs.WithIdleDelay(10*time.Millisecond),
		jobs.WithErrorBackoff(10*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &workerHarness{svc: svc, orion: oc, stop: cancel}
}

// waitTerminal polls until the job leaves pending/running.
func waitTerminal(t *testing.T, svc *jobs.Service, id uuid.UUID) *models.Job {
	t.Helper()

	var job *models.Job
	require.Eventually(t, func() bool {
		got, err := svc.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return models.TerminalStatus(got.Status)
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func analyzeData() models.JobData {
	return models.JobData{
		EntityID:  "urn:ngsi-ld:AgriSensor:sensor-123",
		Attribute: "temperature",
		HistoricalData: []models.DataPoint{
			{Timestamp: "2026-01-15T10:00:00Z", Value: 10},
			{Timestamp: "2026-01-15T11:00:00Z", Value: 20},
		},
		PredictionHorizon: 2,
		Plugin:            "simple_predictor",
	}
}

func TestWorker_AnalyzeJobCompletes(t *testing.T) {
	h := startWorker(t, &stubOrion{})

	job, err := h.svc.Create(context.Background(), "analyze", analyzeData(), "farm-a")
	require.NoError(t, err)

	done := waitTerminal(t, h.svc, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Nil(t, done.Error)

	var out models.AnalysisOutput
	require.NoError(t, json.Unmarshal(done.Result, &out))
	require.Len(t, out.Predictions, 2)
	assert.Equal(t, 25.0, out.Predictions[0].Value)
	assert.Equal(t, 0.88, out.Confidence)
	assert.Equal(t, "simple_predictor", out.Model)

	// Analyze jobs never touch the entity store.
	assert.Equal(t, 0, h.orion.callCount())
}

func TestWorker_PredictJobWritesThrough(t *testing.T) {
	h := startWorker(t, &stubOrion{})

	job, err := h.svc.Create(context.Background(), "predict", analyzeData(), "farm-a")
	require.NoError(t, err)

	done := waitTerminal(t, h.svc, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)

	var out struct {
		models.AnalysisOutput
		OrionEntityID *string `json:"orion_entity_id"`
	}
	require.NoError(t, json.Unmarshal(done.Result, &out))
	require.NotNil(t, out.OrionEntityID)
	assert.Equal(t, "urn:ngsi-ld:Prediction:farm-a:sensor-123-temperature", *out.OrionEntityID)

	require.Equal(t, 1, h.orion.callCount())
	call := h.orion.calls[0]
	assert.Equal(t, "urn:ngsi-ld:AgriSensor:sensor-123", call.RefEntityID)
	assert.Equal(t, "farm-a", call.TenantID)
	assert.Len(t, call.Predictions, 2)
}

func TestWorker_PredictJobCompletesDespiteOrionFailure(t *testing.T) {
	h := startWorker(t, &stubOrion{err: orion.ErrOrionUnreachable})

	job, err := h.svc.Create(context.Background(), "predict", analyzeData(), "farm-a")
	require.NoError(t, err)

	done := waitTerminal(t, h.svc, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Nil(t, done.Error)

	var out map[string]any
	require.NoError(t, json.Unmarshal(done.Result, &out))
	val, present := out["orion_entity_id"]
	assert.True(t, present, "orion_entity_id must be present")
	assert.Nil(t, val, "orion_entity_id must be null on write-through failure")
}

func TestWorker_UnknownJobTypeFails(t *testing.T) {
	h := startWorker(t, &stubOrion{})

	job, err := h.svc.Create(context.Background(), "train", analyzeData(), "farm-a")
	require.NoError(t, err)

	done := waitTerminal(t, h.svc, job.ID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	require.NotNil(t, done.Error)
	assert.Contains(t, *done.Error, "unknown job type: train")
	assert.Nil(t, done.Result)
	assert.Equal(t, 1, done.RetryCount)
}

func TestWorker_UnknownPluginFails(t *testing.T) {
	h := startWorker(t, &stubOrion{})

	data := analyzeData()
	data.Plugin = "bogus_model"

	job, err := h.svc.Create(context.Background(), "analyze", data, "farm-a")
	require.NoError(t, err)

	done := waitTerminal(t, h.svc, job.ID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	require.NotNil(t, done.Error)
	assert.Contains(t, *done.Error, "plugin not found")
}

func TestWorker_PluginPanicFailsJobAndLoopContinues(t *testing.T) {
	_, client := setupRedis(t)
	store := jobs.NewRedisStore(client)
	queue := jobs.NewRedisQueue(client)
	svc := jobs.NewService(store, queue)
	ctx := context.Background()

	registry := plugin.NewRegistry()
	require.NoError(t, registry.Register(simple.New()))
	require.NoError(t, registry.Register(&mock.Plugin{
		Name_:        "panicky",
		Description_: "always panics",
		AnalyzeFunc: func(context.Context, models.JobData) (*models.AnalysisOutput, error) {
			panic("index out of range in model weights")
		},
	}))

	bad := analyzeData()
	bad.Plugin = "panicky"
	badJob, err := svc.Create(ctx, "analyze", bad, "farm-a")
	require.NoError(t, err)
	goodJob, err := svc.Create(ctx, "analyze", analyzeData(), "farm-a")
	require.NoError(t, err)

	w := jobs.NewWorker(svc, queue, registry, &stubOrion{},
		jobs.WithPopTimeout(100*time.Millisecond),
		jobs.WithIdleDelay(10*time.Millisecond),
	)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.Run(runCtx)

	badDone := waitTerminal(t, svc, badJob.ID)
	assert.Equal(t, models.JobStatusFailed, badDone.Status)
	require.NotNil(t, badDone.Error)
	assert.Contains(t, *badDone.Error, "plugin panic")
	assert.Contains(t, *badDone.Error, "index out of range in model weights")
	assert.Equal(t, 1, badDone.RetryCount)

	// The loop must outlive the panic and drain the next entry.
	goodDone := waitTerminal(t, svc, goodJob.ID)
	assert.Equal(t, models.JobStatusCompleted, goodDone.Status)
}

func TestWorker_ValidationFailureDoesNotStopLoop(t *testing.T) {
	h := startWorker(t, &stubOrion{})
	ctx := context.Background()

	bad := analyzeData()
	bad.HistoricalData = bad.HistoricalData[:1]

	badJob, err := h.svc.Create(ctx, "analyze", bad, "farm-a")
	require.NoError(t, err)
	goodJob, err := h.svc.Create(ctx, "analyze", analyzeData(), "farm-a")
	require.NoError(t, err)

	badDone := waitTerminal(t, h.svc, badJob.ID)
	assert.Equal(t, models.JobStatusFailed, badDone.Status)
	require.NotNil(t, badDone.Error)
	assert.Contains(t, *badDone.Error, "at least 2 historical data points")

	goodDone := waitTerminal(t, h.svc, goodJob.ID)
	assert.Equal(t, models.JobStatusCompleted, goodDone.Status)
}

func TestWorker_SkipsCancelledJob(t *testing.T) {
	// No worker running yet: create, cancel, then start the worker.
	_, client := setupRedis(t)
	store := jobs.NewRedisStore(client)
	queue := jobs.NewRedisQueue(client)
	svc := jobs.NewService(store, queue)

	job, err := svc.Create(context.Background(), "analyze", analyzeData(), "farm-a")
	require.NoError(t, err)
	ok, err := svc.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	registry := plugin.NewRegistry()
	require.NoError(t, registry.Register(simple.New()))
	w := jobs.NewWorker(svc, queue, registry, &stubOrion{},
		jobs.WithPopTimeout(100*time.Millisecond),
		jobs.WithIdleDelay(10*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.Run(ctx)

	// Give the worker time to drain the stale entry, then confirm the
	// cancellation stuck.
	time.Sleep(500 * time.Millisecond)
	got, err := svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
}

func TestWorker_SkipsExpiredRecord(t *testing.T) {
	mr, client := setupRedis(t)
	store := jobs.NewRedisStore(client)
	queue := jobs.NewRedisQueue(client)
	svc := jobs.NewService(store, queue)
	ctx := context.Background()

	expired, err := svc.Create(ctx, "analyze", analyzeData(), "farm-a")
	require.NoError(t, err)
	mr.Del("intelligence:job:" + expired.ID.String())

	live, err := svc.Create(ctx, "analyze", analyzeData(), "farm-a")
	require.NoError(t, err)

	registry := plugin.NewRegistry()
	require.NoError(t, registry.Register(simple.New()))
	w := jobs.NewWorker(svc, queue, registry, &stubOrion{},
		jobs.WithPopTimeout(100*time.Millisecond),
		jobs.WithIdleDelay(10*time.Millisecond),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.Run(runCtx)

	done := waitTerminal(t, svc, live.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)

	_, err = svc.Get(ctx, expired.ID)
	assert.True(t, errors.Is(err, jobs.ErrNotFound))
}

func TestWorker_DrainsInSubmissionOrder(t *testing.T) {
	_, client := setupRedis(t)
	store := jobs.NewRedisStore(client)
	queue := jobs.NewRedisQueue(client)
	svc := jobs.NewService(store, queue)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string

	registry := plugin.NewRegistry()
	tracking := &mock.Plugin{
		Name_:        "tracking",
		Description_: "records dispatch order",
		AnalyzeFunc: func(_ context.Context, data models.JobData) (*models.AnalysisOutput, error) {
			mu.Lock()
			order = append(order, data.EntityID)
			mu.Unlock()
			return &models.AnalysisOutput{Model: "tracking"}, nil
		},
	}
	require.NoError(t, registry.Register(tracking))

	var ids []uuid.UUID
	for _, entity := range []string{"e1", "e2", "e3", "e4", "e5"} {
		data := analyzeData()
		data.EntityID = entity
		data.Plugin = "tracking"
		job, err := svc.Create(ctx, "analyze", data, "farm-a")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	w := jobs.NewWorker(svc, queue, registry, &stubOrion{},
		jobs.WithPopTimeout(100*time.Millisecond),
		jobs.WithIdleDelay(10*time.Millisecond),
	)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.Run(runCtx)

	for _, id := range ids {
		waitTerminal(t, svc, id)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e5"}, order)
}
