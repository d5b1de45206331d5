package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "ramzinex"
	subsystem = "alert_bot"
)

var (
	FeedState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feed_state",
		Help:      "Current feed state: 0 disconnected, 1 connecting, 2 subscribing, 3 streaming",
	})
	FeedReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feed_reconnects_total",
		Help:      "The total number of feed reconnect attempts",
	})
	FeedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feed_frames_total",
			Help:      "Inbound feed frames by kind",
		},
		[]string{"kind"},
	)
	PriceLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "price_lookups_total",
			Help:      "Price resolutions by answering source",
		},
		[]string{"source"},
	)
	Ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ticks_total",
		Help:      "The total number of completed alert evaluation ticks",
	})
	TicksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ticks_skipped_total",
		Help:      "Ticks skipped because the previous tick was still running",
	})
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "tick_duration_seconds",
		Help:      "Duration of alert evaluation ticks",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_total",
			Help:      "Alert notifications by delivery result",
		},
		[]string{"result"},
	)
	RulesPrimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rules_primed_total",
		Help:      "Rules whose baseline was initialised by the evaluator",
	})
	MirrorDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "mirror_dropped_total",
		Help:      "Price points dropped because the mirror buffer was full",
	})
	CommandsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "commands_processed",
		Help:      "The total number of processed commands",
	})
	MessagesHandled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "messages_handled",
		Help:      "The total number of handled messages",
	})
)

func init() {
	prometheus.MustRegister(FeedState)
	prometheus.MustRegister(FeedReconnects)
	prometheus.MustRegister(FeedFrames)
	prometheus.MustRegister(PriceLookups)
	prometheus.MustRegister(Ticks)
	prometheus.MustRegister(TicksSkipped)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(Notifications)
	prometheus.MustRegister(RulesPrimed)
	prometheus.MustRegister(MirrorDropped)
	prometheus.MustRegister(CommandsProcessed)
	prometheus.MustRegister(MessagesHandled)
}
