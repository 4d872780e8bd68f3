// ABOUTME: Prometheus metrics computed from current scan state at scrape time.
// ABOUTME: A fresh registry per scrape keeps gauges for finished scans from going stale.

package metrics

import (
	"net/http"

	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ScanLister provides the scans the metrics are derived from
type ScanLister interface {
	ListScans() ([]*types.ScanStatus, error)
}

// Handler serves /metrics. Every scrape rebuilds the registry from the
// lister's current view.
func Handler(lister ScanLister, logger *logrus.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		registry := prometheus.NewRegistry()

		scansGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scanrelay_scans",
			Help: "Number of scans by completion state",
		}, []string{"state"})

		agentGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scanrelay_agent_status",
			Help: "Number of agent executions by agent and status",
		}, []string{"agent", "status"})

		findingsGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scanrelay_findings",
			Help: "Number of findings by severity across all scans",
		}, []string{"severity"})

		lastScanGauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanrelay_last_scan_created_timestamp_seconds",
			Help: "Creation time of the most recent scan",
		})

		registry.MustRegister(scansGauge, agentGauge, findingsGauge, lastScanGauge)

		scans, err := lister.ListScans()
		if err != nil {
			logger.WithError(err).WithField("component", "metrics").Error("Failed to list scans for metrics")
			http.Error(w, "failed to collect metrics", http.StatusInternalServerError)
			return
		}

		var latest int64
		for _, scan := range scans {
			state := "running"
			if scan.Done() {
				state = "done"
			}
			scansGauge.WithLabelValues(state).Inc()

			for _, p := range scan.Progress {
				agentGauge.WithLabelValues(string(p.Agent), string(p.Status)).Inc()
			}
			for _, f := range scan.Findings {
				findingsGauge.WithLabelValues(string(f.Severity)).Inc()
			}
			if ts := scan.CreatedAt.Unix(); ts > latest {
				latest = ts
			}
		}
		if latest > 0 {
			lastScanGauge.Set(float64(latest))
		}

		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
