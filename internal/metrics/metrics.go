// Package metrics defines the minimal metrics contract the rest of the code
// depends on. Concrete backends (Datadog, or a no-op) live in subpackages or
// are provided by callers; nothing outside those backends should import a
// vendor SDK.
package metrics

// Labels carries metric dimensions, e.g. {"sink": "csv", "status": "completed"}.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use; calls happen on job worker goroutines.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the job manager. Backends may ignore names they do
// not recognize.
const (
	MetricJobsTotal          = "dataprep_jobs_total"
	MetricRowsTotal          = "dataprep_rows_total"
	MetricJobDurationSeconds = "dataprep_job_duration_seconds"
	MetricExportBytes        = "dataprep_export_bytes"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}

// Nop returns a backend that discards everything.
func Nop() Backend { return nop{} }
