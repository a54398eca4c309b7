// Package metrics holds the Prometheus collectors for the server. Collectors
// register themselves on the default registry at init; /metrics exposure is
// wired in the router when enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suljari_rooms_created_total",
		Help: "Rooms created since process start.",
	})

	PlayersJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suljari_players_joined_total",
		Help: "Players admitted to rooms.",
	})

	GamesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suljari_games_started_total",
		Help: "Games started, by game code.",
	}, []string{"game"})

	EventsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suljari_events_broadcast_total",
		Help: "Events fanned out to streams.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suljari_events_dropped_total",
		Help: "Events dropped because a stream buffer was full.",
	})

	OpenStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "suljari_open_streams",
		Help: "Currently attached SSE streams (host and player).",
	})

	TimersStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suljari_timers_started_total",
		Help: "Countdowns armed by the scheduler.",
	})

	TimersCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suljari_timers_canceled_total",
		Help: "Countdowns canceled before completion.",
	})

	StoreOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "suljari_store_op_duration_seconds",
		Help:    "State store round-trip latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)
