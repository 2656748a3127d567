package utils

import (
	"context"
	"log"
	"time"
)

// SpawnBackground runs task on its own goroutine with a bounded context.
// Failures are logged, never propagated; use it for work the request path
// must not wait on (persona evolution, event forwarding).
func SpawnBackground(name string, timeout time.Duration, task func(ctx context.Context) error) {
	go func() {
		ctx := context.Background()
		cancel := func() {}
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[background] %s panicked: %v", name, r)
			}
		}()

		if err := task(ctx); err != nil {
			log.Printf("[background] %s failed: %v", name, err)
		}
	}()
}
