package events

import (
	"context"
	"fmt"

	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/observability"
)

// Dispatcher routes event bodies to the handler registered for their type.
// The handler table is fixed at startup; Dispatch never mutates it.
type Dispatcher struct {
	handlers map[Type]Handler
	logger   observability.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger observability.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Type]Handler),
		logger:   logger.WithFields(observability.Component("dispatcher")),
	}
}

// Register binds a handler to an event type, replacing any previous one.
func (d *Dispatcher) Register(t Type, h Handler) {
	d.handlers[t] = h
}

// Types returns the registered event types, for startup logging.
func (d *Dispatcher) Types() []Type {
	out := make([]Type, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	return out
}

// Dispatch invokes the handler for the event type. Unknown types are skipped
// with a warning rather than failed: the topic may carry events from newer
// deployments.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType Type, payload []byte) error {
	handler, ok := d.handlers[eventType]
	if !ok {
		d.logger.Warn(ctx, "no handler registered for event type, skipping",
			observability.EventType(string(eventType)))
		return nil
	}

	if err := d.invoke(ctx, handler, payload); err != nil {
		return vaulterrors.NewEventError(
			vaulterrors.ErrCodeEventConsumeFailed,
			string(eventType),
			fmt.Errorf("handler failed: %w", err),
		)
	}
	return nil
}

// invoke runs a handler, converting a panic into an error so one bad
// message cannot take down the consume loop.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}
