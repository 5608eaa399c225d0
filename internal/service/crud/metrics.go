package crud

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/heartmarshall/classroom-backend/internal/domain"
)

// Operation outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeInvalid   = "invalid"
	OutcomeForbidden = "forbidden"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

// Metrics counts service operations. A nil *Metrics records nothing.
type Metrics struct {
	Operations *prometheus.CounterVec
}

// NewMetrics creates and registers the service counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classroom_crud_operations_total",
				Help: "Total number of service operations by entity, operation and outcome",
			},
			[]string{"entity", "operation", "outcome"},
		),
	}

	reg.MustRegister(m.Operations)

	return m
}

func (m *Metrics) observe(entity, op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(entity, op, Outcome(err)).Inc()
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrUnauthorized):
		return OutcomeForbidden
	case errors.Is(err, domain.ErrValidation):
		return OutcomeInvalid
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	}
	return OutcomeError
}
