// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "floodgate_circuit_breaker_state",
		Help: "Circuit breaker state by component (the active state is 1, others 0)",
	}, []string{"component", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floodgate_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips (transitions to open state)",
	}, []string{"component", "reason"})
)

var breakerStates = []string{"closed", "half-open", "open"}

func setBreakerState(component, state string) {
	for _, s := range breakerStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		breakerState.WithLabelValues(component, s).Set(value)
	}
}

func recordBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}
