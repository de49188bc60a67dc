package database

import (
	"context"
	"fmt"
	"time"
)

// Pinger is a backend that can report readiness.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// PingAll pings every backend with a shared deadline and returns the first failure.
func PingAll(ctx context.Context, timeout time.Duration, backends ...Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, b := range backends {
		if b == nil {
			continue
		}
		if err := b.Ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", b.Name(), err)
		}
	}
	return nil
}
