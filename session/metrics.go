package session

import "github.com/prometheus/client_golang/prometheus"

var messageCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "fixsim_session_messages_total",
	Help: "FIX messages by session and direction",
}, []string{"session", "direction"})

var discardCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "fixsim_session_discards_total",
	Help: "Discarded inbound frames by session and cause",
}, []string{"session", "cause"})

var gapCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "fixsim_session_gaps_total",
	Help: "Inbound sequence gaps triggering a resend request",
}, []string{"session"})

var readyState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "fixsim_session_ready",
	Help: "1 while the session is authenticated",
}, []string{"session"})

func init() {
	prometheus.MustRegister(messageCounters, discardCounters, gapCounters, readyState)
}
