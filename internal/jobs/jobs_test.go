package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dataprep/internal/dataframe"
	"dataprep/internal/engine"
	"dataprep/internal/sink"
	"dataprep/internal/steps"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg := steps.NewRegistry()
	steps.RegisterBuiltins(reg)
	eng := engine.New(reg, zerolog.Nop())

	f := dataframe.NewFrame([]string{"id", "name"})
	f.AppendRow([]any{"1", "widget"})
	f.AppendRow([]any{"2", "gadget"})
	if err := eng.AddDataset("items", []dataframe.Plan{dataframe.FromFrame(f)}, engine.LoadMetadata{}); err != nil {
		t.Fatal(err)
	}
	return eng
}

func newSinks() *sink.Registry {
	r := sink.NewRegistry()
	sink.RegisterBuiltins(r)
	return r
}

// waitTerminal polls until the job leaves StatusRunning.
func waitTerminal(t *testing.T, m *Manager, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.Status(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if job.Status != StatusRunning {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestExportCompletes(t *testing.T) {
	t.Parallel()
	m := NewManager(newEngine(t), newSinks(), Options{Log: zerolog.Nop()})
	defer m.Close()

	out := filepath.Join(t.TempDir(), "out.csv")
	id, err := m.StartExport(Request{
		Dataset: "items",
		Sink:    sink.Spec{Kind: "csv", Params: map[string]any{"path": out}},
	})
	if err != nil {
		t.Fatal(err)
	}

	job := waitTerminal(t, m, id)
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s, err = %q", job.Status, job.Err)
	}
	if job.Rows != 2 {
		t.Fatalf("rows = %d", job.Rows)
	}
	if len(job.Files) != 1 || job.Files[0] != out {
		t.Fatalf("files = %v", job.Files)
	}
	if job.SizeSummary == "" || job.SizeSummary == "0 B" {
		t.Fatalf("size summary = %q", job.SizeSummary)
	}
	if job.Duration < 0 {
		t.Fatalf("duration = %s", job.Duration)
	}
}

func TestExportMissingDatasetFails(t *testing.T) {
	t.Parallel()
	m := NewManager(newEngine(t), newSinks(), Options{Log: zerolog.Nop()})
	defer m.Close()

	id, err := m.StartExport(Request{
		Dataset: "ghost",
		Sink:    sink.Spec{Kind: "csv", Params: map[string]any{"path": filepath.Join(t.TempDir(), "out.csv")}},
	})
	if err != nil {
		t.Fatal(err)
	}

	job := waitTerminal(t, m, id)
	if job.Status != StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if !strings.Contains(job.Err, "dataset not found") {
		t.Fatalf("err = %q", job.Err)
	}
}

func TestInvalidSinkRejectedSynchronously(t *testing.T) {
	t.Parallel()
	m := NewManager(newEngine(t), newSinks(), Options{Log: zerolog.Nop()})
	defer m.Close()

	_, err := m.StartExport(Request{
		Dataset: "items",
		Sink:    sink.Spec{Kind: "punchcard"},
	})
	if !errors.Is(err, sink.ErrUnknownKind) {
		t.Fatalf("err = %v", err)
	}

	// missing required path
	_, err = m.StartExport(Request{
		Dataset: "items",
		Sink:    sink.Spec{Kind: "csv"},
	})
	var cfgErr *sink.InvalidConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v", err)
	}

	if jobs := m.Jobs(); len(jobs) != 0 {
		t.Fatalf("rejected submissions must not register jobs, got %d", len(jobs))
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()

	// A sink that blocks until released, so one job occupies the single
	// worker while a second fills the single queue slot.
	release := make(chan struct{})
	var once sync.Once
	sinks := sink.NewRegistry()
	sinks.Register(sink.Definition{
		Kind:      "block",
		NewParams: func() any { return &struct{}{} },
		Write: func(ctx context.Context, plans []dataframe.Plan, params any) (sink.WriteResult, error) {
			<-release
			return sink.WriteResult{}, nil
		},
	})

	m := NewManager(newEngine(t), sinks, Options{Workers: 1, QueueSize: 1, Log: zerolog.Nop()})
	defer func() {
		once.Do(func() { close(release) })
		m.Close()
	}()

	submit := func() (string, error) {
		return m.StartExport(Request{Dataset: "items", Sink: sink.Spec{Kind: "block"}})
	}

	first, err := submit()
	if err != nil {
		t.Fatal(err)
	}

	// Wait for the worker to pick up the first job, then fill the queue.
	deadline := time.Now().Add(2 * time.Second)
	var second string
	for time.Now().Before(deadline) {
		second, err = submit()
		if err == nil {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("could not enqueue second job: %v", err)
	}

	// Worker busy + queue occupied: the next submission must be rejected.
	var full bool
	for time.Now().Before(deadline) {
		if _, err := submit(); errors.Is(err, ErrJobQueueFull) {
			full = true
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !full {
		t.Fatal("expected ErrJobQueueFull")
	}

	once.Do(func() { close(release) })
	if job := waitTerminal(t, m, first); job.Status != StatusCompleted {
		t.Fatalf("first job status = %s, err = %q", job.Status, job.Err)
	}
	if job := waitTerminal(t, m, second); job.Status != StatusCompleted {
		t.Fatalf("second job status = %s, err = %q", job.Status, job.Err)
	}
}

func TestJobsSnapshotOrdered(t *testing.T) {
	t.Parallel()
	m := NewManager(newEngine(t), newSinks(), Options{Log: zerolog.Nop()})
	defer m.Close()

	dir := t.TempDir()
	var ids []string
	for _, name := range []string{"a.csv", "b.csv"} {
		id, err := m.StartExport(Request{
			Dataset: "items",
			Sink:    sink.Spec{Kind: "csv", Params: map[string]any{"path": filepath.Join(dir, name)}},
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitTerminal(t, m, id)
	}

	jobs := m.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	for _, job := range jobs {
		if job.Status != StatusCompleted {
			t.Fatalf("job %s status = %s, err = %q", job.ID, job.Status, job.Err)
		}
	}
}

func TestExportWithRecipe(t *testing.T) {
	t.Parallel()
	m := NewManager(newEngine(t), newSinks(), Options{Log: zerolog.Nop()})
	defer m.Close()

	out := filepath.Join(t.TempDir(), "out.csv")
	id, err := m.StartExport(Request{
		Dataset: "items",
		Recipe: []steps.Step{
			{ID: "s1", Type: "filter_rows", Params: map[string]any{"col": "name", "op": "eq", "value": "widget"}},
		},
		Sink: sink.Spec{Kind: "csv", Params: map[string]any{"path": out}},
	})
	if err != nil {
		t.Fatal(err)
	}
	job := waitTerminal(t, m, id)
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s, err = %q", job.Status, job.Err)
	}
	if job.Rows != 1 {
		t.Fatalf("rows = %d", job.Rows)
	}
}
