package orgauth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	LoginTotal          *prometheus.CounterVec
	RefreshTotal        *prometheus.CounterVec
	LogoutTotal         prometheus.Counter
	SessionsEvicted     prometheus.Counter
	AuthenticateTotal   *prometheus.CounterVec
	AuthenticateLatency prometheus.Histogram
	ScopeDeniedTotal    *prometheus.CounterVec
	PasswordChangeTotal *prometheus.CounterVec
	PasswordResetTotal  *prometheus.CounterVec
	AuditDroppedTotal   prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "orgauth"
	}
	m := &Metrics{
		LoginTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_total",
				Help:      "Login attempts by result.",
			},
			[]string{"result"},
		),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Refresh-token exchanges by result.",
			},
			[]string{"result"},
		),
		LogoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logout_total",
			Help:      "Completed logouts.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed by the per-user concurrency cap.",
		}),
		AuthenticateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authenticate_total",
				Help:      "Access-token authentications by result.",
			},
			[]string{"result"},
		),
		AuthenticateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "authenticate_duration_seconds",
			Help:      "Access-token authentication latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ScopeDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scope_denied_total",
				Help:      "Authorization denials by scope kind.",
			},
			[]string{"kind"},
		),
		PasswordChangeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "password_change_total",
				Help:      "Password changes by result.",
			},
			[]string{"result"},
		),
		PasswordResetTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "password_reset_total",
				Help:      "Password reset requests and confirmations by result.",
			},
			[]string{"stage", "result"},
		),
		AuditDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit events dropped because the buffer was full.",
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LoginTotal,
		m.RefreshTotal,
		m.LogoutTotal,
		m.SessionsEvicted,
		m.AuthenticateTotal,
		m.AuthenticateLatency,
		m.ScopeDeniedTotal,
		m.PasswordChangeTotal,
		m.PasswordResetTotal,
		m.AuditDroppedTotal,
	}
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.LoginTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.RefreshTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) logout() {
	if m != nil {
		m.LogoutTotal.Inc()
	}
}

func (m *Metrics) evicted() {
	if m != nil {
		m.SessionsEvicted.Inc()
	}
}

func (m *Metrics) authenticate(result string, started time.Time) {
	if m != nil {
		m.AuthenticateTotal.WithLabelValues(result).Inc()
		m.AuthenticateLatency.Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) scopeDenied(kind string) {
	if m != nil {
		m.ScopeDeniedTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) passwordChange(result string) {
	if m != nil {
		m.PasswordChangeTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) passwordReset(stage, result string) {
	if m != nil {
		m.PasswordResetTotal.WithLabelValues(stage, result).Inc()
	}
}

func (m *Metrics) auditDropped() {
	if m != nil {
		m.AuditDroppedTotal.Inc()
	}
}
