package run

import "github.com/prometheus/client_golang/prometheus"

var actionCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "fixsim_actions_total",
	Help: "Actions by session, type and outcome",
}, []string{"session", "action", "outcome"})

var orderStateCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "fixsim_order_transitions_total",
	Help: "Order state transitions by session and resulting status",
}, []string{"session", "status"})

func init() {
	prometheus.MustRegister(actionCounters, orderStateCounters)
}
