package ports

import "context"

// HealthChecker reports connectivity of a backing store.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
