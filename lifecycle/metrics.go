package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupbuy_campaign_transitions_total",
		Help: "Committed campaign status transitions.",
	}, []string{"from", "to"})
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupbuy_deadline_sweeps_total",
		Help: "Deadline sweeps by outcome.",
	}, []string{"outcome"})
)
