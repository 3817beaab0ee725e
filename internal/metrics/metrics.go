package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirage_stream_frames_applied_total",
			Help: "Total number of stream frames applied to the avatar",
		},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirage_stream_frames_dropped_total",
			Help: "Total number of stream messages dropped as malformed",
		},
		[]string{"reason"},
	)

	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirage_stream_sessions_opened_total",
			Help: "Total number of streamed generation sessions opened",
		},
	)

	SessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirage_stream_sessions_finished_total",
			Help: "Total number of sessions finished by outcome",
		},
		[]string{"outcome"},
	)

	SegmentsPlayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirage_audio_segments_played_total",
			Help: "Total number of audio segments played to completion",
		},
	)

	SegmentsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirage_audio_segments_failed_total",
			Help: "Total number of audio segments skipped after a playback failure",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirage_audio_queue_depth",
			Help: "Number of audio segments waiting to play",
		},
	)

	ClipBuildFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirage_clip_build_failures_total",
			Help: "Total number of animation clips that failed to build",
		},
	)

	ChatLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "mirage_chat_latency_seconds",
			Help: "Batched chat request latency in seconds",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirage_engine_tick_duration_seconds",
			Help:    "Time spent advancing the avatar per render tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.016},
		},
	)
)
