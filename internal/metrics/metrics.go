// Package metrics holds the Prometheus collectors for authentication flows
// and token relay calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Flow stages
const (
	StageBegin    = "begin"
	StageCallback = "callback"
	StageLogout   = "logout"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Metrics struct {
	AuthFlows     *prometheus.CounterVec
	GuardDecision *prometheus.CounterVec
	RelayRequests *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthFlows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oidc",
			Name:      "auth_flows_total",
			Help:      "Authentication flow steps by stage and outcome.",
		}, []string{"stage", "outcome"}),
		GuardDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oidc",
			Name:      "guard_decisions_total",
			Help:      "Auth guard decisions by result.",
		}, []string{"decision"}),
		RelayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oidc",
			Name:      "relay_requests_total",
			Help:      "Outbound relay calls by API and outcome.",
		}, []string{"api", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.AuthFlows, m.GuardDecision, m.RelayRequests)
	}
	return m
}

func (m *Metrics) ObserveFlow(stage string, err error) {
	if m == nil {
		return
	}
	m.AuthFlows.WithLabelValues(stage, outcome(err)).Inc()
}

func (m *Metrics) ObserveGuard(allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.GuardDecision.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveRelay(api string, err error) {
	if m == nil {
		return
	}
	m.RelayRequests.WithLabelValues(api, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
