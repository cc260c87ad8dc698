package port

import "context"

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// DeleteIdempotency releases a previously set key so the same request
	// may be retried
	DeleteIdempotency(ctx context.Context, key string) error
}
