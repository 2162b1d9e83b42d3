// ABOUTME: Prometheus collectors for the agent control loop.

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tickTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debuglet_agent_ticks_total",
		Help: "Agent control loop iterations by outcome",
	}, []string{"outcome"})

	activeBreakpoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "debuglet_agent_active_breakpoints",
		Help: "Breakpoints currently active in the agent",
	})

	reportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debuglet_agent_reported_total",
		Help: "Breakpoint evaluations reported by action",
	}, []string{"action"})
)
