package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime       time.Time
	requests        atomic.Int64
	serverErrors    atomic.Int64
	clientErrors    atomic.Int64
	submissions     atomic.Int64
	syncsSucceeded  atomic.Int64
	syncsFailed     atomic.Int64
	webhookFailures atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds       float64 `json:"uptime_seconds"`
	Requests            int64   `json:"requests"`
	ServerErrors        int64   `json:"server_errors"`
	ClientErrors        int64   `json:"client_errors"`
	SubmissionsAccepted int64   `json:"submissions_accepted"`
	SyncsSucceeded      int64   `json:"syncs_succeeded"`
	SyncsFailed         int64   `json:"syncs_failed"`
	WebhookFailures     int64   `json:"webhook_failures"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordSubmission increments the accepted submissions counter.
func (m *Metrics) RecordSubmission() {
	m.submissions.Add(1)
}

// RecordSync counts one Airtable sync attempt by outcome.
func (m *Metrics) RecordSync(ok bool) {
	if ok {
		m.syncsSucceeded.Add(1)
		return
	}
	m.syncsFailed.Add(1)
}

// RecordWebhookFailure increments the failed webhook delivery counter.
func (m *Metrics) RecordWebhookFailure() {
	m.webhookFailures.Add(1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:       time.Since(m.startTime).Seconds(),
		Requests:            m.requests.Load(),
		ServerErrors:        m.serverErrors.Load(),
		ClientErrors:        m.clientErrors.Load(),
		SubmissionsAccepted: m.submissions.Load(),
		SyncsSucceeded:      m.syncsSucceeded.Load(),
		SyncsFailed:         m.syncsFailed.Load(),
		WebhookFailures:     m.webhookFailures.Load(),
	}
}
