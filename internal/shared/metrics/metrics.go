package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	documentsIngestedTotal     atomic.Uint64
	documentsIngestFailedTotal atomic.Uint64
	documentsRollbacksTotal    atomic.Uint64
	documentsDeletedTotal      atomic.Uint64

	enrichmentStartedTotal   atomic.Uint64
	enrichmentCompletedTotal atomic.Uint64
	enrichmentFailedTotal    atomic.Uint64

	enrichmentJobsCompletedTotal     atomic.Uint64
	enrichmentJobsFailedTotal        atomic.Uint64
	enrichmentJobsUnrecoverableTotal atomic.Uint64

	enrichmentDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncDocumentsIngested increments the successful ingestion counter.
func IncDocumentsIngested() {
	documentsIngestedTotal.Add(1)
}

// IncDocumentsIngestFailed increments the failed ingestion counter.
func IncDocumentsIngestFailed() {
	documentsIngestFailedTotal.Add(1)
}

// IncDocumentsRollbacks counts compensating blob deletes.
func IncDocumentsRollbacks() {
	documentsRollbacksTotal.Add(1)
}

// IncDocumentsDeleted increments the deleted documents counter.
func IncDocumentsDeleted() {
	documentsDeletedTotal.Add(1)
}

// IncEnrichmentStarted increments the started counter.
func IncEnrichmentStarted() {
	enrichmentStartedTotal.Add(1)
}

// IncEnrichmentCompleted increments the completed counter.
func IncEnrichmentCompleted() {
	enrichmentCompletedTotal.Add(1)
}

// IncEnrichmentFailed increments the failed counter.
func IncEnrichmentFailed() {
	enrichmentFailedTotal.Add(1)
}

// IncEnrichmentJobsCompleted counts queue messages handled and deleted.
func IncEnrichmentJobsCompleted() {
	enrichmentJobsCompletedTotal.Add(1)
}

// IncEnrichmentJobsFailed counts queue messages left for redelivery.
func IncEnrichmentJobsFailed() {
	enrichmentJobsFailedTotal.Add(1)
}

// IncEnrichmentJobsUnrecoverable counts malformed queue messages that were dropped.
func IncEnrichmentJobsUnrecoverable() {
	enrichmentJobsUnrecoverableTotal.Add(1)
}

// ObserveEnrichmentDurationMs records an enrichment duration in milliseconds.
func ObserveEnrichmentDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	enrichmentDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "documents_ingested_total", "Total documents ingested", documentsIngestedTotal.Load())
	writeCounter(&buf, "documents_ingest_failed_total", "Total ingestions that failed on the critical path", documentsIngestFailedTotal.Load())
	writeCounter(&buf, "documents_rollbacks_total", "Total compensating blob deletes", documentsRollbacksTotal.Load())
	writeCounter(&buf, "documents_deleted_total", "Total documents deleted", documentsDeletedTotal.Load())
	writeCounter(&buf, "enrichment_started_total", "Total enrichments started", enrichmentStartedTotal.Load())
	writeCounter(&buf, "enrichment_completed_total", "Total enrichments completed", enrichmentCompletedTotal.Load())
	writeCounter(&buf, "enrichment_failed_total", "Total enrichments failed", enrichmentFailedTotal.Load())
	writeCounter(&buf, "enrichment_jobs_completed_total", "Total enrichment jobs acknowledged", enrichmentJobsCompletedTotal.Load())
	writeCounter(&buf, "enrichment_jobs_failed_total", "Total enrichment jobs left for redelivery", enrichmentJobsFailedTotal.Load())
	writeCounter(&buf, "enrichment_jobs_unrecoverable_total", "Total malformed enrichment jobs dropped", enrichmentJobsUnrecoverableTotal.Load())
	writeHistogram(&buf, "enrichment_duration_ms", "Enrichment duration in milliseconds", enrichmentDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records one sample in the first bucket whose bound covers it.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMillis returns the elapsed time since start in milliseconds.
func SinceMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
