package observability

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"liquidstake/core/events"
)

var (
	eventMetricsOnce sync.Once
	eventCounter     *prometheus.CounterVec
)

func eventsTotal() *prometheus.CounterVec {
	eventMetricsOnce.Do(func() {
		eventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liquidstake",
			Subsystem: "pool",
			Name:      "events_total",
			Help:      "Pool lifecycle events segmented by event type.",
		}, []string{"type"})
		prometheus.MustRegister(eventCounter)
	})
	return eventCounter
}

// EventSink forwards pool events to structured logs and the event counter.
// It satisfies the pool engine's emitter contract.
type EventSink struct {
	logger *slog.Logger
}

// NewEventSink wires a sink onto the given logger. A nil logger falls back
// to the process default.
func NewEventSink(logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{logger: logger}
}

// Emit logs the event with its attributes and counts it by type.
func (s *EventSink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	attrs := evt.Attributes()
	args := make([]any, 0, len(attrs)*2)
	for key, value := range attrs {
		args = append(args, slog.String(key, value))
	}
	s.logger.Info(evt.EventType(), args...)
	eventsTotal().WithLabelValues(evt.EventType()).Inc()
}
