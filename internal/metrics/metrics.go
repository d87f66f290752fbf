// Package metrics provides Prometheus metrics for the capture pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture outcomes
const (
	OutcomeStored     = "stored"
	OutcomeDuplicate  = "duplicate"
	OutcomeRejected   = "rejected"
	OutcomeFailed     = "failed"
	OutcomeSuppressed = "suppressed"
)

var (
	clipboardChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipboard_history_changes_total",
			Help: "Clipboard change notifications by outcome",
		},
		[]string{"outcome"},
	)

	itemsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipboard_history_items_stored_total",
			Help: "Items persisted by content type",
		},
		[]string{"content_type"},
	)

	itemsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipboard_history_items_evicted_total",
			Help: "Items removed by the retention policy",
		},
	)

	storageItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipboard_history_storage_items",
			Help: "Number of items in the store at the last stats read",
		},
	)

	storageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipboard_history_storage_db_bytes",
			Help: "On-disk size of the store at the last stats read",
		},
	)
)

// RecordChange counts one clipboard notification.
func RecordChange(outcome string) {
	clipboardChanges.WithLabelValues(outcome).Inc()
}

// RecordStored counts one persisted item.
func RecordStored(contentType string) {
	itemsStored.WithLabelValues(contentType).Inc()
}

// RecordEvicted counts items dropped by retention.
func RecordEvicted(n int64) {
	if n > 0 {
		itemsEvicted.Add(float64(n))
	}
}

// SetStorageStats publishes the latest storage statistics.
func SetStorageStats(items, dbBytes int64) {
	storageItems.Set(float64(items))
	storageBytes.Set(float64(dbBytes))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
