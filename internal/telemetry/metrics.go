package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what a single trexctl run did. trexctl is not a server, so
// the registry is written out as a node-exporter textfile at the end of the
// run instead of being scraped.
type Metrics struct {
	registry     *prometheus.Registry
	Steps        *prometheus.CounterVec
	Transactions *prometheus.CounterVec
	Retries      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trex_bootstrap_steps_total",
			Help: "Bootstrap steps by outcome (ok, skipped, error)",
		}, []string{"step", "status"}),
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trex_transactions_total",
			Help: "State-changing transactions confirmed on chain",
		}, []string{"op"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trex_bootstrap_retries_total",
			Help: "Step attempts repeated after a transient failure or unconfirmed state",
		}, []string{"step"}),
	}
}

func (m *Metrics) StepFinished(step, status string) {
	m.Steps.WithLabelValues(step, status).Inc()
}

func (m *Metrics) TxConfirmed(op string) {
	m.Transactions.WithLabelValues(op).Inc()
}

func (m *Metrics) Retried(step string) {
	m.Retries.WithLabelValues(step).Inc()
}

// WriteTextfile dumps the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
