package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP API
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Deadline tracking
	DeadlinesByStatus     GaugeVec
	TrackedCompanies      GaugeVec
	DeadlineComputeErrors CounterVec
	TrackingPassDuration  HistogramVec

	// Archive monitor
	ArchiveScansTotal     CounterVec
	ArchiveRecordsTouched CounterVec
	ArchiveScanDuration   HistogramVec

	// Notifications
	DigestsTotal         CounterVec
	AlertsMatchedTotal   CounterVec
	EventsPublishedTotal CounterVec

	// Backup & export
	BackupsTotal    CounterVec
	BackupSizeBytes GaugeVec
	BackupDuration  HistogramVec
	ExportsTotal    CounterVec

	// Infrastructure
	CacheHitsTotal    CounterVec
	CacheMissesTotal  CounterVec
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultJobDurationBuckets  = []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 300}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	// Tracking
	m.DeadlinesByStatus = collector.RegisterGauge("deadlines", "Companies per deadline status in the last tracking pass", "status")
	m.TrackedCompanies = collector.RegisterGauge("companies", "Companies by tracking state", "state")
	m.DeadlineComputeErrors = collector.RegisterCounter("deadline_compute_errors_total", "Companies skipped because the deadline could not be computed", "reason")
	m.TrackingPassDuration = collector.RegisterHistogram("tracking_pass_duration_seconds", "Duration of one pass over all companies", DefaultJobDurationBuckets)

	// Archive monitor
	m.ArchiveScansTotal = collector.RegisterCounter("archive_scans_total", "Archive folder scans", "trigger", "status")
	m.ArchiveRecordsTouched = collector.RegisterCounter("archive_records_touched_total", "Upload records created or changed by scans", "trigger")
	m.ArchiveScanDuration = collector.RegisterHistogram("archive_scan_duration_seconds", "Archive scan duration", DefaultJobDurationBuckets, "trigger")

	// Notifications
	m.DigestsTotal = collector.RegisterCounter("digests_total", "Reminder digest runs by outcome", "status")
	m.AlertsMatchedTotal = collector.RegisterCounter("alerts_matched_total", "Companies included in a sent digest", "threshold")
	m.EventsPublishedTotal = collector.RegisterCounter("events_published_total", "Deadline alert events published", "status")

	// Backup & export
	m.BackupsTotal = collector.RegisterCounter("backups_total", "Backups by outcome", "status")
	m.BackupSizeBytes = collector.RegisterGauge("backup_size_bytes", "Size of the latest backup archive", "target")
	m.BackupDuration = collector.RegisterHistogram("backup_duration_seconds", "Backup duration", DefaultJobDurationBuckets)
	m.ExportsTotal = collector.RegisterCounter("exports_total", "Deadline report exports", "format", "status")

	// Infrastructure
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	return m
}

// Helpers.  Every helper accepts a nil *AppMetrics so callers built without
// metrics need no guards.

func statusLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTrackingPass publishes the status distribution of one pass.  Statuses
// absent from counts are reset to zero.
func RecordTrackingPass(metrics *AppMetrics, counts map[string]int, statuses []string, duration time.Duration) {
	if metrics == nil {
		return
	}
	for _, s := range statuses {
		metrics.DeadlinesByStatus.WithLabelValues(s).Set(float64(counts[s]))
	}
	metrics.TrackingPassDuration.WithLabelValues().Observe(duration.Seconds())
}

func RecordCompanies(metrics *AppMetrics, active, inactive, withoutHistory int) {
	if metrics == nil {
		return
	}
	metrics.TrackedCompanies.WithLabelValues("active").Set(float64(active))
	metrics.TrackedCompanies.WithLabelValues("inactive").Set(float64(inactive))
	metrics.TrackedCompanies.WithLabelValues("without_history").Set(float64(withoutHistory))
}

func RecordDeadlineError(metrics *AppMetrics, reason string) {
	if metrics == nil {
		return
	}
	metrics.DeadlineComputeErrors.WithLabelValues(reason).Inc()
}

func RecordScan(metrics *AppMetrics, trigger string, touched int, duration time.Duration, err error) {
	if metrics == nil {
		return
	}
	metrics.ArchiveScansTotal.WithLabelValues(trigger, statusLabel(err)).Inc()
	metrics.ArchiveRecordsTouched.WithLabelValues(trigger).Add(float64(touched))
	metrics.ArchiveScanDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordDigest counts one digest run.  status is "sent", "empty", "skipped"
// or "failure"; matched maps threshold to the number of companies listed.
func RecordDigest(metrics *AppMetrics, status string, matched map[int]int) {
	if metrics == nil {
		return
	}
	metrics.DigestsTotal.WithLabelValues(status).Inc()
	for th, n := range matched {
		metrics.AlertsMatchedTotal.WithLabelValues(strconv.Itoa(th)).Add(float64(n))
	}
}

func RecordEventPublish(metrics *AppMetrics, count int, err error) {
	if metrics == nil {
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(statusLabel(err)).Add(float64(count))
}

func RecordBackup(metrics *AppMetrics, target string, size int64, duration time.Duration, err error) {
	if metrics == nil {
		return
	}
	metrics.BackupsTotal.WithLabelValues(statusLabel(err)).Inc()
	metrics.BackupDuration.WithLabelValues().Observe(duration.Seconds())
	if err == nil {
		metrics.BackupSizeBytes.WithLabelValues(target).Set(float64(size))
	}
}

func RecordExport(metrics *AppMetrics, format string, err error) {
	if metrics == nil {
		return
	}
	metrics.ExportsTotal.WithLabelValues(format, statusLabel(err)).Inc()
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if metrics == nil {
		return
	}
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordHealth(metrics *AppMetrics, component string, up bool) {
	if metrics == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(component).Set(v)
}

func RecordError(metrics *AppMetrics, component, errorType string) {
	if metrics == nil {
		return
	}
	metrics.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
