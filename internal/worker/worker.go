package worker

import (
	"context"

	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/observability"
)

// Worker runs the event consume loop for the worker role.
type Worker struct {
	consumer events.Consumer
	logger   observability.Logger
}

// NewWorker wires the registered handler set into a consumer.
func NewWorker(
	consumer events.Consumer,
	dispatcher *events.Dispatcher,
	handlers *Handlers,
	logger observability.Logger,
) *Worker {
	handlers.Register(dispatcher)
	return &Worker{
		consumer: consumer,
		logger:   logger.WithFields(observability.Component("worker")),
	}
}

// Run consumes events until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info(ctx, "worker started")
	return w.consumer.Run(ctx)
}

// Close releases the underlying consumer.
func (w *Worker) Close() error {
	return w.consumer.Close()
}
