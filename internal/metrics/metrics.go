// Package metrics holds the Prometheus instruments for the webhook server and worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// Ingest
	WebhookMessagesTotal *prometheus.CounterVec

	// Queue
	QueueOutcomesTotal *prometheus.CounterVec

	// Commands
	CommandsTotal   *prometheus.CounterVec
	CommandSeconds  *prometheus.HistogramVec
	MeetingEvents   *prometheus.CounterVec
	ArchiveFailures prometheus.Counter

	// Generation
	GenerationsTotal  *prometheus.CounterVec
	GenerationSeconds *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec
	PartialsTotal     *prometheus.CounterVec
	PollParseTotal    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every instrument on reg. Use a fresh prometheus.NewRegistry()
// per test to keep counts isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WebhookMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notulis_webhook_messages_total",
				Help: "Inbound chat messages by ingest result",
			},
			[]string{"result"},
		),
		QueueOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notulis_queue_outcomes_total",
				Help: "Queued command outcomes (acked, requeued, dead_lettered)",
			},
			[]string{"outcome"},
		),
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notulis_commands_total",
				Help: "Commands handled by name and outcome",
			},
			[]string{"command", "outcome"},
		),
		CommandSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notulis_command_seconds",
				Help:    "End-to-end command latency",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"command"},
		),
		MeetingEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notulis_meeting_events_total",
				Help: "Meeting marker transitions",
			},
			[]string{"event"},
		),
		ArchiveFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "notulis_archive_failures_total",
				Help: "Results that could not be archived",
			},
		),
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notulis_generations_total",
				Help: "Text generation calls by stage and status",
			},
			[]string{"task", "stage", "status"},
		),
		GenerationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notulis_generation_seconds",
				Help:    "Text generation latency",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15, 30, 60, 120},
			},
			[]string{"task", "stage"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notulis_generation_tokens_total",
				Help: "Tokens consumed by direction",
			},
			[]string{"task", "direction"},
		),
		PartialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notulis_partials_total",
				Help: "Chunk-level partial results by disposition (kept, dropped, failed, skipped)",
			},
			[]string{"task", "disposition"},
		),
		PollParseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notulis_poll_parse_total",
				Help: "Poll extraction results",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordWebhookMessage(result string) {
	m.WebhookMessagesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordQueueOutcome(outcome string) {
	m.QueueOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCommand(command, outcome string, seconds float64) {
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandSeconds.WithLabelValues(command).Observe(seconds)
}

func (m *Metrics) RecordMeetingEvent(event string) {
	m.MeetingEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordArchiveFailure() {
	m.ArchiveFailures.Inc()
}

func (m *Metrics) RecordGeneration(task, stage, status string, seconds float64, promptTokens, completionTokens int) {
	m.GenerationsTotal.WithLabelValues(task, stage, status).Inc()
	m.GenerationSeconds.WithLabelValues(task, stage).Observe(seconds)
	if promptTokens > 0 {
		m.TokensTotal.WithLabelValues(task, "input").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.TokensTotal.WithLabelValues(task, "output").Add(float64(completionTokens))
	}
}

func (m *Metrics) RecordPartial(task, disposition string) {
	m.PartialsTotal.WithLabelValues(task, disposition).Inc()
}

func (m *Metrics) RecordPollParse(result string) {
	m.PollParseTotal.WithLabelValues(result).Inc()
}
