package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Message store
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_messages_posted_total",
			Help: "Total messages appended",
		},
		[]string{"kind"}, // "channel" or "conversation"
	)

	MessageMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_message_mutations_total",
			Help: "Stored message mutations",
		},
		[]string{"kind", "op"}, // op: edit, delete, reaction
	)

	MutationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_message_mutation_retries_total",
			Help: "Version conflicts retried by message mutations",
		},
		[]string{"kind"},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_conversations_created_total",
			Help: "Conversations created by the resolver",
		},
	)

	// Socket gateway
	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_ws_connections",
			Help: "Open socket connections on this instance",
		},
	)

	SocketEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_ws_events_total",
			Help: "Inbound socket events",
		},
		[]string{"type"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_ws_rate_limit_hits_total",
			Help: "Inbound socket events rejected by the rate limiter",
		},
	)

	DroppedDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_ws_dropped_deliveries_total",
			Help: "Broadcasts dropped because a connection's send buffer was full",
		},
	)

	// Presence
	TypingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_typing_active",
			Help: "Typing entries currently held",
		},
	)

	// Relay
	RelayPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_relay_published_total",
			Help: "Room broadcasts published to other instances",
		},
	)

	RelayReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_relay_received_total",
			Help: "Room broadcasts received from other instances",
		},
	)

	RelayDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_relay_dropped_total",
			Help: "Room broadcasts not published because the relay queue was full",
		},
	)
)
