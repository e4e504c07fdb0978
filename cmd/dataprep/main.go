package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"dataprep/internal/engine"
	"dataprep/internal/jobs"
	"dataprep/internal/metrics"
	"dataprep/internal/metrics/datadog"
	"dataprep/internal/project"
	"dataprep/internal/sink"
	"dataprep/internal/source"
	"dataprep/internal/staging"
	"dataprep/internal/steps"
)

// main wires the real dependencies: project import, one export job, poll to
// a terminal state.
//
// Exit codes:
//   - 0: success.
//   - 1: the export job failed.
//   - 2: configuration/initialization error.
func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dataprep", flag.ContinueOnError)

	var (
		projectPath string
		exportName  string
		sinkKind    string
		outPath     string
		perFile     bool
		stagingDir  string
		metricsFlg  string
		ddTagsCSV   string
		verbose     bool
	)
	fs.StringVar(&projectPath, "project", "", "project JSON file to load")
	fs.StringVar(&exportName, "export", "", "dataset to export")
	fs.StringVar(&sinkKind, "sink", "csv", "sink kind (csv, ndjson, sqlite)")
	fs.StringVar(&outPath, "out", "", "output path for the sink")
	fs.BoolVar(&perFile, "per-file", false, "apply the recipe per source file, one output each")
	fs.StringVar(&stagingDir, "staging", "", "staging directory (default: under the system temp dir)")
	fs.StringVar(&metricsFlg, "metrics", "none", "metrics backend (datadog, none)")
	fs.StringVar(&ddTagsCSV, "dd-tags", "", "extra Datadog tags, comma-separated")
	fs.BoolVar(&verbose, "v", false, "enable debug logs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Env before anything reads it; a missing .env is not an error.
	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	if projectPath == "" {
		fmt.Fprintln(os.Stderr, "usage: dataprep -project file.json [-export dataset -sink csv -out path]")
		return 2
	}
	if exportName != "" && outPath == "" {
		fmt.Fprintln(os.Stderr, "-export requires -out")
		return 2
	}

	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "dataprep-staging")
	}
	st, err := staging.NewManager(stagingDir)
	if err != nil {
		log.Error().Err(err).Msg("init staging")
		return 2
	}

	stepReg := steps.NewRegistry()
	steps.RegisterBuiltins(stepReg)
	eng := engine.New(stepReg, log)

	loaders := source.NewRegistry()
	loader := source.NewLoader(st, log)
	loader.RegisterAll(loaders)

	sinks := sink.NewRegistry()
	sink.RegisterBuiltins(sinks)

	backend, closeBackend, err := buildMetrics(metricsFlg, ddTagsCSV)
	if err != nil {
		log.Error().Err(err).Msg("init metrics")
		return 2
	}
	defer closeBackend()

	ctx := context.Background()

	importer := &project.Importer{Engine: eng, Run: loaders.Run, Log: log}
	res, err := importer.ImportFile(ctx, projectPath, project.ModeReplace)
	if err != nil {
		log.Error().Err(err).Msg("load project")
		return 2
	}
	for _, w := range res.Warnings {
		log.Warn().Msg(w)
	}
	for _, e := range res.Errors {
		log.Error().Msg(e)
	}
	if !res.Success() {
		return 2
	}
	log.Info().Strs("datasets", res.Loaded).Msg("project loaded")

	if exportName == "" {
		return 0
	}

	manager := jobs.NewManager(eng, sinks, jobs.Options{Metrics: backend, Log: log})
	defer manager.Close()

	params := map[string]any{}
	if outPath != "" {
		params["path"] = outPath
	}
	id, err := manager.StartExport(jobs.Request{
		Dataset: exportName,
		Sink:    sink.Spec{Kind: sinkKind, Params: params},
		PerFile: perFile,
	})
	if err != nil {
		log.Error().Err(err).Msg("start export")
		return 2
	}

	job := pollJob(manager, id)
	if job.Status != jobs.StatusCompleted {
		log.Error().Str("job", id).Str("error", job.Err).Msg("export failed")
		return 1
	}
	log.Info().
		Str("job", id).
		Strs("files", job.Files).
		Int64("rows", job.Rows).
		Str("size", job.SizeSummary).
		Dur("took", job.Duration).
		Msg("export done")
	return 0
}

func pollJob(m *jobs.Manager, id string) jobs.Job {
	for {
		job, ok := m.Status(id)
		if !ok {
			return jobs.Job{Status: jobs.StatusFailed, Err: "job not found"}
		}
		if job.Status != jobs.StatusRunning {
			return job
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildMetrics(name, tagsCSV string) (metrics.Backend, func(), error) {
	switch strings.ToLower(name) {
	case "", "none":
		return metrics.Nop(), func() {}, nil
	case "datadog":
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "dataprep",
			Tags:    datadog.ParseTagsCSV(tagsCSV),
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics backend %q", name)
	}
}
