package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusCollector exposes a Collector's snapshot as Prometheus metrics.
// Values are read at scrape time; the Collector stays the source of truth.
type PrometheusCollector struct {
	source *Collector

	calls           *prometheus.Desc
	transportErrors *prometheus.Desc
	remoteErrors    *prometheus.Desc
	connections     *prometheus.Desc
	statements      *prometheus.Desc
	openHandles     *prometheus.Desc
	rowsStepped     *prometheus.Desc
	executes        *prometheus.Desc
}

// NewPrometheusCollector wraps source for registration with a
// prometheus.Registerer.
func NewPrometheusCollector(source *Collector) *PrometheusCollector {
	constLabels := prometheus.Labels{}
	snap := source.Snapshot()
	if snap.Endpoint != "" {
		constLabels["endpoint"] = snap.Endpoint
	}

	return &PrometheusCollector{
		source: source,
		calls: prometheus.NewDesc("erldb_client_calls_total",
			"Remote procedure calls issued, by method.", []string{"method"}, constLabels),
		transportErrors: prometheus.NewDesc("erldb_client_transport_errors_total",
			"Calls that failed before a response was received.", nil, constLabels),
		remoteErrors: prometheus.NewDesc("erldb_client_remote_errors_total",
			"Responses whose envelope signalled failure.", nil, constLabels),
		connections: prometheus.NewDesc("erldb_client_connections_total",
			"Connection handle transitions.", []string{"event"}, constLabels),
		statements: prometheus.NewDesc("erldb_client_statements_total",
			"Statement handle transitions.", []string{"event"}, constLabels),
		openHandles: prometheus.NewDesc("erldb_client_open_handles",
			"Handles currently open, by kind.", []string{"kind"}, constLabels),
		rowsStepped: prometheus.NewDesc("erldb_client_rows_stepped_total",
			"Rows received from step calls.", nil, constLabels),
		executes: prometheus.NewDesc("erldb_client_executes_total",
			"Execute calls issued.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.calls
	ch <- p.transportErrors
	ch <- p.remoteErrors
	ch <- p.connections
	ch <- p.statements
	ch <- p.openHandles
	ch <- p.rowsStepped
	ch <- p.executes
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.source.Snapshot()

	for method, n := range s.CallsByMethod {
		ch <- prometheus.MustNewConstMetric(p.calls, prometheus.CounterValue, float64(n), method)
	}
	ch <- prometheus.MustNewConstMetric(p.transportErrors, prometheus.CounterValue, float64(s.TransportErrors))
	ch <- prometheus.MustNewConstMetric(p.remoteErrors, prometheus.CounterValue, float64(s.RemoteErrors))
	ch <- prometheus.MustNewConstMetric(p.connections, prometheus.CounterValue, float64(s.ConnectionsOpened), "opened")
	ch <- prometheus.MustNewConstMetric(p.connections, prometheus.CounterValue, float64(s.ConnectionsClosed), "closed")
	ch <- prometheus.MustNewConstMetric(p.statements, prometheus.CounterValue, float64(s.StatementsPrepared), "prepared")
	ch <- prometheus.MustNewConstMetric(p.statements, prometheus.CounterValue, float64(s.StatementsFinalized), "finalized")
	ch <- prometheus.MustNewConstMetric(p.openHandles, prometheus.GaugeValue, float64(s.OpenConnections()), "connection")
	ch <- prometheus.MustNewConstMetric(p.openHandles, prometheus.GaugeValue, float64(s.OpenStatements()), "statement")
	ch <- prometheus.MustNewConstMetric(p.rowsStepped, prometheus.CounterValue, float64(s.RowsStepped))
	ch <- prometheus.MustNewConstMetric(p.executes, prometheus.CounterValue, float64(s.Executes))
}

// Verify PrometheusCollector implements prometheus.Collector.
var _ prometheus.Collector = (*PrometheusCollector)(nil)
