package procnet

import (
	"context"
	"fmt"
)

type HandlerFunc[T any] func(ctx context.Context, from string, msg T) error

// On registers a type-safe handler for a specific operation on a Process.
func On[T any](p *Process, operation string, handler HandlerFunc[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers[operation] = func(ctx context.Context, env Envelope) error {
		var msg T
		if err := decodeStruct(env.Payload, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", operation, err)
		}
		return handler(ctx, env.From, msg)
	}
}
