// ABOUTME: Prometheus collectors for the controller services.

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// registrationsTotal counts registrations by the returned disabled flag.
	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debuglet_controller_registrations_total",
		Help: "Debuggee registrations by disabled flag",
	}, []string{"disabled"})

	waitingPolls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "debuglet_controller_waiting_polls",
		Help: "ListActiveBreakpoints calls currently held open",
	})

	waitExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debuglet_controller_wait_expired_total",
		Help: "Long polls that ended without a change",
	})

	// updatesTotal counts agent updates by kind: final, log or duplicate.
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debuglet_controller_updates_total",
		Help: "Breakpoint updates received from agents",
	}, []string{"kind"})
)
