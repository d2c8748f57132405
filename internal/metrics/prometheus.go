package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "diagnosys_poller"

var (
	eventsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "events_total"),
		"Poller events by kind.",
		[]string{"event"}, nil,
	)
	gaugeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "state"),
		"Poller state gauges by name.",
		[]string{"name"}, nil,
	)
)

// snapshotCollector exports the atomic counters at scrape time.
type snapshotCollector struct {
	reg *Registry
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- eventsDesc
	ch <- gaugeDesc
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	for key, val := range c.reg.Snapshot() {
		if gauges[MetricKey(key)] {
			ch <- prometheus.MustNewConstMetric(gaugeDesc, prometheus.GaugeValue, float64(val), key)
			continue
		}
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(val), key)
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}
