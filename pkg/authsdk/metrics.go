package authsdk

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts gateway and renewal outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	retries  prometheus.Counter
	renewals *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabmail_gateway_requests_total",
			Help: "Logical backend calls by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabmail_gateway_retries_total",
			Help: "Calls replayed after an access token renewal.",
		}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabmail_session_renewals_total",
			Help: "Renewal requests by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.retries, m.renewals)
	}
	return m
}

func (m *Metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) renewal(result string) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(result).Inc()
}
