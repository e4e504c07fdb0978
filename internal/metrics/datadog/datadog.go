// Package datadog implements a Datadog backend for the internal/metrics
// contract.
//
// Flushing model:
//   - job workers call IncCounter/ObserveHistogram at any time; writes land in
//     in-memory buffers under a mutex
//   - a background loop calls Flush() on a ticker (default: once per minute)
//   - Close() stops the loop and performs one final Flush()
//
// Long-running sessions therefore get a time series while exports run, and
// short-lived command invocations still get a tail flush at shutdown.
package datadog

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"dataprep/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "dataprep".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets these; tests use them
	// to avoid real submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of the Datadog SDK the backend actually
// needs. The SDK exposes a concrete *datadogV2.MetricsApi; depending on this
// interface instead lets tests substitute a fake.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	// jobCounts and durationSamples are keyed by sink\x00status.
	jobCounts       map[string]float64
	rowCounts       map[string]float64 // sink -> rows
	durationSamples map[string][]float64
	bytesSamples    map[string][]float64 // sink -> bytes written per job
}

// NewBackend constructs a Datadog backend using the official client.
// Credentials come from the standard DD_API_KEY environment handled by the
// SDK's default context. Network errors surface from Flush, not here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "dataprep"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 1+len(opts.Tags))
	baseTags = append(baseTags, "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		jobCounts:       make(map[string]float64),
		rowCounts:       make(map[string]float64),
		durationSamples: make(map[string][]float64),
		bytesSamples:    make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Close once only;
// a second call panics on the closed channel, standard Close semantics for a
// process-lifetime backend.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricJobsTotal:
		b.jobCounts[sinkStatusKey(labels["sink"], labels["status"])] += delta

	case metrics.MetricRowsTotal:
		sink := labels["sink"]
		if sink == "" {
			return
		}
		b.rowCounts[sink] += delta

	default:
		// Unknown counters are dropped.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricJobDurationSeconds:
		k := sinkStatusKey(labels["sink"], labels["status"])
		b.durationSamples[k] = append(b.durationSamples[k], value)

	case metrics.MetricExportBytes:
		sink := labels["sink"]
		if sink == "" {
			sink = "unknown"
		}
		b.bytesSamples[sink] = append(b.bytesSamples[sink], value)

	default:
		// Unknown histograms are dropped.
	}
}

// snapshot is the detached buffered state used to build a flush payload.
// Flush resets buffers under the lock and submits from the snapshot
// out-of-lock.
type snapshot struct {
	jobCounts       map[string]float64
	rowCounts       map[string]float64
	durationSamples map[string][]float64
	bytesSamples    map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		jobCounts:       b.jobCounts,
		rowCounts:       b.rowCounts,
		durationSamples: b.durationSamples,
		bytesSamples:    b.bytesSamples,
	}

	b.jobCounts = make(map[string]float64)
	b.rowCounts = make(map[string]float64)
	b.durationSamples = make(map[string][]float64)
	b.bytesSamples = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.jobCounts) == 0 &&
		len(s.rowCounts) == 0 &&
		len(s.durationSamples) == 0 &&
		len(s.bytesSamples) == 0
}

// Flush submits buffered metrics and resets local buffers. Buffers reset even
// when submission fails, so a broken network never backs up job workers.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	nowUnix := b.now().Unix()
	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, nowUnix)}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
// It is pure (no locks, no network, no clocks) so it can be unit tested
// directly; it also centralizes the naming/tagging contract.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.jobCounts)+len(s.rowCounts)+16)

	for k, v := range s.jobCounts {
		if v == 0 {
			continue
		}
		sink, status := splitSinkStatusKey(k)
		tags := withTags(b.baseTags, "sink:"+sink, "status:"+status)
		series = append(series, countSeries("dataprep.jobs.total", v, tags, nowUnix))
	}

	for sink, v := range s.rowCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "sink:"+sink)
		series = append(series, countSeries("dataprep.rows.total", v, tags, nowUnix))
	}

	for k, samples := range s.durationSamples {
		sink, status := splitSinkStatusKey(k)
		tags := withTags(b.baseTags, "sink:"+sink, "status:"+status)
		addPercentiles(&series, "dataprep.job.duration_seconds", samples, tags, nowUnix)
	}

	for sink, samples := range s.bytesSamples {
		tags := withTags(b.baseTags, "sink:"+sink)
		addPercentiles(&series, "dataprep.export.bytes", samples, tags, nowUnix)
	}

	return series
}

// addPercentiles appends a fixed set of percentile gauges for a sample set.
// Sorts a copy; empty sample sets append nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func sinkStatusKey(sink, status string) string {
	if sink == "" {
		sink = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	return sink + "\x00" + status
}

func splitSinkStatusKey(k string) (sink, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:dataprep".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
