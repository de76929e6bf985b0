package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

var _ contract.Worker = (*TelemetryWorker)(nil)

// TelemetryWorker drains the telemetry channel and dispatches each probe to
// its handlers. Telemetry is best-effort by construction: producers drop
// probes rather than block, so this worker never applies backpressure to
// the delivery path.
type TelemetryWorker struct {
	log           *slog.Logger
	telemetryChan chan event.Event
	handlers      []event.Handler
}

func NewTelemetryWorker(log *slog.Logger, telemetryChan chan event.Event, handlers []event.Handler) *TelemetryWorker {
	return &TelemetryWorker{log: log, telemetryChan: telemetryChan, handlers: handlers}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case evt, ok := <-w.telemetryChan:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			for _, h := range w.handlers {
				h.Handle(evt)
			}
		}
	}
}
