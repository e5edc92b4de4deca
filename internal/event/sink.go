package event

import (
	"context"
	"errors"
)

// Sink accepts events for delivery.
type Sink interface {
	Post(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Post(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Multi posts every event to each sink in order and joins their errors.
type Multi []Sink

func (m Multi) Post(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Post(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
