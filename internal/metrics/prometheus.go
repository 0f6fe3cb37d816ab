package metrics

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Gauge reports a point-in-time value at scrape time.
type Gauge struct {
	Name  string
	Help  string
	Value func() int
}

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
// Counters share one metric with an `event` label; gauges are exported as-is.
func PrometheusHandler(m *Metrics, gauges ...Gauge) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		keys := slices.Sorted(maps.Keys(snap))

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintln(w, "# HELP voicehub_events_total Signaling relay event counters.")
		_, _ = fmt.Fprintln(w, "# TYPE voicehub_events_total counter")
		esc := strings.NewReplacer("\\", "\\\\", "\"", "\\\"")
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "voicehub_events_total{event=\"%s\"} %d\n", esc.Replace(k), snap[k])
		}
		for _, g := range gauges {
			_, _ = fmt.Fprintf(w, "# HELP voicehub_%s %s\n", g.Name, g.Help)
			_, _ = fmt.Fprintf(w, "# TYPE voicehub_%s gauge\n", g.Name)
			_, _ = fmt.Fprintf(w, "voicehub_%s %d\n", g.Name, g.Value())
		}
	})
}
