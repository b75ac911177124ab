// Package metrics counts redemption outcomes per flow.
package metrics

import (
	"net/http"

	"github.com/ellemouton/lnurlw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flashpos"

const (
	FlowWithdraw = "withdraw"
	FlowPayout   = "payout"
)

type Metrics struct {
	redemptions *prometheus.CounterVec
	readErrors  prometheus.Counter
}

// New creates the collectors and registers them with reg if it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Terminal redemption outcomes by flow.",
		}, []string{"flow", "outcome"}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_read_errors_total",
			Help:      "Failed NFC tag reads.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.redemptions, m.readErrors)
	}

	return m
}

// ObserveWithdraw records the outcome of an invoice redemption. It is safe to
// call on a nil *Metrics.
func (m *Metrics) ObserveWithdraw(o lnurlw.Outcome) {
	if m == nil {
		return
	}

	m.redemptions.WithLabelValues(FlowWithdraw, o.Kind.String()).Inc()
}

// ObservePayout records whether a payout POST went through.
func (m *Metrics) ObservePayout(err error) {
	if m == nil {
		return
	}

	outcome := lnurlw.OutcomeSuccess.String()
	if err != nil {
		outcome = lnurlw.OutcomeFailure.String()
	}
	m.redemptions.WithLabelValues(FlowPayout, outcome).Inc()
}

func (m *Metrics) ObserveReadError() {
	if m == nil {
		return
	}

	m.readErrors.Inc()
}

func (m *Metrics) ReadErrors() prometheus.Counter {
	return m.readErrors
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
