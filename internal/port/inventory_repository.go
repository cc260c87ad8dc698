package port

import (
	"context"
	"errors"

	"github.com/misprint/carddrop/internal/core/domain"
)

var (
	// ErrItemNotFound is returned when the referenced item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrLockUnavailable is returned when the row lock cannot be granted
	// because of abnormal contention (not ordinary queued waiting).
	ErrLockUnavailable = errors.New("row lock unavailable")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached, e.g. opening a transaction fails on a dead connection.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// InventoryRepository is the durable record of item quantity and the
// append-only order log. It decides no business outcomes; correctness of
// concurrent purchases relies entirely on the backend's row-level locks.
type InventoryRepository interface {
	// Begin starts a transaction for one purchase attempt
	Begin(ctx context.Context) (InventoryTx, error)

	// GetItem reads the current persisted snapshot without locking,
	// returns (nil, nil) when the item does not exist
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)

	// Reset sets the quantity to a fixed value and clears the order log
	// for the item, atomically
	Reset(ctx context.Context, itemID string, quantity int) error

	// CountOrders reports the size of the order log for the item
	CountOrders(ctx context.Context, itemID string) (int, error)
}

// InventoryTx is one purchase attempt's transaction. All calls must use
// the same itemID; the row stays locked until Commit or Rollback.
type InventoryTx interface {
	// LockQuantity acquires an exclusive row lock on the item and returns
	// its quantity; ErrItemNotFound or ErrLockUnavailable on failure
	LockQuantity(ctx context.Context, itemID string) (int, error)

	// DecrementAndRecordOrder decreases quantity by 1 and appends one
	// order row. Call only after LockQuantity observed quantity > 0.
	DecrementAndRecordOrder(ctx context.Context, itemID string) error

	Commit() error
	Rollback() error
}
