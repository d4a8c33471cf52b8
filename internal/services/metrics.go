package services

import "github.com/prometheus/client_golang/prometheus"

// replayProvider labels turns answered from a stored reply; no provider
// is called for them.
const replayProvider = "replay"

// Chat turn outcomes used as the outcome label.
const (
	outcomeOK          = "ok"
	outcomeReplay      = "replay"
	outcomeProviderErr = "provider_error"
	outcomePartial     = "partial"
	outcomeClientGone  = "client_gone"
	outcomeStoreErr    = "store_error"
)

var (
	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_chat_turns_total",
			Help: "Chat turns by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// Measured from just before the provider call to the last fragment.
	chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "widget_chat_response_seconds",
			Help:    "Provider response time of completed chat turns.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 120},
		},
		[]string{"provider"},
	)

	chatFragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_chat_fragments_total",
			Help: "Text fragments forwarded to visitors.",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(chatTurns, chatLatency, chatFragments)
}
