package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the guide. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Live session metrics
	ActiveSessions prometheus.Gauge
	SessionsOpened prometheus.Counter
	SessionErrors  prometheus.Counter

	// Audio pipeline metrics
	FramesSent     prometheus.Counter
	FramesQueued   prometheus.Counter
	FramesDropped  prometheus.Counter
	ChunksReceived prometheus.Counter
	DecodeErrors   prometheus.Counter
	Interruptions  prometheus.Counter
	TurnsCompleted prometheus.Counter

	// One-shot synthesis metrics
	SynthesisRequests prometheus.Counter
	SynthesisFailures prometheus.Counter
	SynthesisDuration prometheus.Histogram
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "guide_live_sessions_active",
			Help: "Current number of live conversation sessions",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_live_sessions_opened_total",
			Help: "Total number of live conversation sessions opened",
		}),
		SessionErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_live_session_errors_total",
			Help: "Total number of live sessions that ended in the error state",
		}),

		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_audio_frames_sent_total",
			Help: "Total number of microphone frames sent to the live model",
		}),
		FramesQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_audio_frames_queued_total",
			Help: "Total number of frames queued before the live stream was open",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_audio_frames_dropped_total",
			Help: "Total number of frames dropped because the pending queue was full",
		}),
		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_audio_chunks_received_total",
			Help: "Total number of audio chunks received from the live model",
		}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_audio_decode_errors_total",
			Help: "Total number of inbound audio payloads that failed to decode",
		}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_playback_interruptions_total",
			Help: "Total number of playback interruptions signalled by the live model",
		}),
		TurnsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_turns_completed_total",
			Help: "Total number of conversational turns completed",
		}),

		SynthesisRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_synthesis_requests_total",
			Help: "Total number of one-shot speech synthesis requests",
		}),
		SynthesisFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "guide_synthesis_failures_total",
			Help: "Total number of one-shot synthesis requests that produced no playable audio",
		}),
		SynthesisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "guide_synthesis_duration_seconds",
			Help:    "Time spent waiting for one-shot synthesis responses",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
	}
}

func (m *Metrics) FrameSent() {
	if m != nil {
		m.FramesSent.Inc()
	}
}

func (m *Metrics) FrameQueued() {
	if m != nil {
		m.FramesQueued.Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) ChunkReceived() {
	if m != nil {
		m.ChunksReceived.Inc()
	}
}

func (m *Metrics) DecodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) Interruption() {
	if m != nil {
		m.Interruptions.Inc()
	}
}

func (m *Metrics) TurnCompleted() {
	if m != nil {
		m.TurnsCompleted.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.SessionsOpened.Inc()
	}
}

func (m *Metrics) SessionError() {
	if m != nil {
		m.SessionErrors.Inc()
	}
}

// SetActiveSessions records the number of live sessions.
func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.ActiveSessions.Set(float64(n))
	}
}

// ObserveSynthesis records one synthesis round trip; failed marks requests
// that produced no playable audio.
func (m *Metrics) ObserveSynthesis(seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.SynthesisRequests.Inc()
	m.SynthesisDuration.Observe(seconds)
	if failed {
		m.SynthesisFailures.Inc()
	}
}
