// Package jobs runs exports asynchronously on a bounded worker pool.
// Callers submit a job, get an ID back immediately, and poll Status until the
// job leaves StatusRunning. Sink configuration is validated synchronously at
// submission so a typo fails fast instead of surfacing minutes later in a
// failed job.
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dataprep/internal/dataframe"
	"dataprep/internal/engine"
	"dataprep/internal/metrics"
	"dataprep/internal/sink"
	"dataprep/internal/steps"
)

// Status is a job's lifecycle state. Jobs move from StatusRunning to exactly
// one of the terminal states and never change after that.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrJobQueueFull is returned by StartExport when the queue has no room; the
// caller decides whether to retry or surface the backpressure.
var ErrJobQueueFull = errors.New("job queue full")

// Job is a snapshot of one export's state.
type Job struct {
	ID       string
	Dataset  string
	SinkKind string
	Status   Status

	StartedAt time.Time
	Duration  time.Duration

	// Populated on completion.
	Files       []string
	Rows        int64
	SizeSummary string

	// Populated on failure.
	Err string
}

// Request describes one export submission. A nil Recipe uses the dataset's
// stored recipe. PerFile forces one output per source file regardless of how
// the dataset was loaded.
type Request struct {
	Dataset string
	Recipe  []steps.Step
	Sink    sink.Spec
	PerFile bool
}

// Options configures the manager. Zero values get sane defaults.
type Options struct {
	Workers   int
	QueueSize int
	Metrics   metrics.Backend
	Log       zerolog.Logger

	now func() time.Time
}

const (
	defaultWorkers   = 2
	defaultQueueSize = 8
)

type task struct {
	jobID  string
	req    Request
	def    sink.Definition
	params any
}

// Manager owns the job table and the worker pool. All job table access goes
// through mu; workers share nothing else.
type Manager struct {
	engine  *engine.Engine
	sinks   *sink.Registry
	metrics metrics.Backend
	log     zerolog.Logger
	now     func() time.Time

	queue     chan task
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu   sync.Mutex
	jobs map[string]*Job
}

func NewManager(eng *engine.Engine, sinks *sink.Registry, opts Options) *Manager {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	backend := opts.Metrics
	if backend == nil {
		backend = metrics.Nop()
	}
	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}

	m := &Manager{
		engine:  eng,
		sinks:   sinks,
		metrics: backend,
		log:     opts.Log,
		now:     nowFn,
		queue:   make(chan task, queueSize),
		jobs:    make(map[string]*Job),
	}
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.worker()
	}
	return m
}

// StartExport validates the sink spec, registers a running job and enqueues
// it. Validation errors (sink.ErrUnknownKind, *sink.InvalidConfigError) come
// back synchronously with no job registered; everything after enqueue is
// reported through the job's terminal state.
func (m *Manager) StartExport(req Request) (string, error) {
	def, params, err := m.sinks.Resolve(req.Sink)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	job := &Job{
		ID:        id,
		Dataset:   req.Dataset,
		SinkKind:  req.Sink.Kind,
		Status:    StatusRunning,
		StartedAt: m.now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	select {
	case m.queue <- task{jobID: id, req: req, def: def, params: params}:
	default:
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
		return "", ErrJobQueueFull
	}

	m.log.Info().Str("job", id).Str("dataset", req.Dataset).Str("sink", req.Sink.Kind).Msg("export queued")
	return id, nil
}

// Status returns a copy of the job, so callers can't mutate shared state.
func (m *Manager) Status(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns a snapshot of all jobs, oldest first.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Close stops accepting work and waits for in-flight jobs to finish.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.queue) })
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for t := range m.queue {
		m.run(t)
	}
}

func (m *Manager) run(t task) {
	ctx := context.Background()

	res, err := m.runExport(ctx, t)

	m.mu.Lock()
	job, ok := m.jobs[t.jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.Duration = m.now().Sub(job.StartedAt)
	if err != nil {
		job.Status = StatusFailed
		job.Err = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Files = res.Files
		job.Rows = res.Rows
		job.SizeSummary = humanize.Bytes(uint64(res.BytesWritten))
	}
	snapshot := *job
	m.mu.Unlock()

	labels := metrics.Labels{"sink": snapshot.SinkKind, "status": string(snapshot.Status)}
	m.metrics.IncCounter(metrics.MetricJobsTotal, 1, labels)
	m.metrics.ObserveHistogram(metrics.MetricJobDurationSeconds, snapshot.Duration.Seconds(), labels)

	if err != nil {
		m.log.Error().Str("job", snapshot.ID).Str("dataset", snapshot.Dataset).Err(err).Msg("export failed")
		return
	}

	m.metrics.IncCounter(metrics.MetricRowsTotal, float64(res.Rows), metrics.Labels{"sink": snapshot.SinkKind})
	m.metrics.ObserveHistogram(metrics.MetricExportBytes, float64(res.BytesWritten), metrics.Labels{"sink": snapshot.SinkKind})
	m.log.Info().
		Str("job", snapshot.ID).
		Str("dataset", snapshot.Dataset).
		Int64("rows", res.Rows).
		Str("size", snapshot.SizeSummary).
		Dur("took", snapshot.Duration).
		Msg("export completed")
}

func (m *Manager) runExport(ctx context.Context, t task) (sink.WriteResult, error) {
	var (
		plans []dataframe.Plan
		err   error
	)
	if t.req.PerFile {
		plans, err = m.engine.ExportPlans(ctx, t.req.Dataset, t.req.Recipe)
	} else {
		var plan dataframe.Plan
		plan, err = m.engine.ExportPlan(ctx, t.req.Dataset, t.req.Recipe)
		plans = []dataframe.Plan{plan}
	}
	if err != nil {
		return sink.WriteResult{}, err
	}
	return t.def.Write(ctx, plans, t.params)
}
