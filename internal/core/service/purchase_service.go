package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/misprint/carddrop/internal/core/domain"
	"github.com/misprint/carddrop/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrSoldOut          = errors.New("item is sold out")
	ErrServerBusy       = errors.New("server busy")
)

// PurchaseService serializes concurrent purchase attempts against the
// shared quantity counter. The backing row lock totally orders all
// evaluate steps; exactly as many attempts decrement as there is stock,
// the rest are rejected with ErrSoldOut.
type PurchaseService struct {
	store        port.InventoryRepository
	cache        port.CacheRepository // nil disables idempotency checks
	hub          port.Broadcaster
	initialStock int
}

func NewPurchaseService(store port.InventoryRepository, cache port.CacheRepository, hub port.Broadcaster, initialStock int) *PurchaseService {
	return &PurchaseService{
		store:        store,
		cache:        cache,
		hub:          hub,
		initialStock: initialStock,
	}
}

// Purchase runs one attempt: lock the item row, evaluate availability,
// decrement and record the order, commit, then notify. requestID may be
// empty; when set, a requestID whose earlier attempt committed is
// rejected without touching stock, while a failed attempt leaves it
// free to retry.
func (s *PurchaseService) Purchase(ctx context.Context, itemID, requestID string) error {
	var release func()
	if requestID != "" && s.cache != nil {
		key := fmt.Sprintf("purchase:%s:%s", itemID, requestID)
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return ErrDuplicateRequest
		}
		release = func() {
			if err := s.cache.DeleteIdempotency(context.WithoutCancel(ctx), key); err != nil {
				log.Printf("failed to release idempotency key %s: %v", key, err)
			}
		}
	}

	// Only a committed purchase consumes the request ID. Every other
	// exit releases the key so the caller can safely retry with it.
	committed := false
	defer func() {
		if release != nil && !committed {
			release()
		}
	}()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin purchase: %w", err)
	}
	defer tx.Rollback()

	quantity, err := tx.LockQuantity(ctx, itemID)
	if err != nil {
		if errors.Is(err, port.ErrLockUnavailable) {
			return ErrServerBusy
		}
		return err
	}

	if quantity == 0 {
		return ErrSoldOut
	}

	if err := tx.DecrementAndRecordOrder(ctx, itemID); err != nil {
		return fmt.Errorf("record purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purchase: %w", err)
	}
	committed = true

	// The purchase is final once committed. A failed broadcast must not
	// surface as a purchase failure.
	if err := s.hub.Publish(ctx, itemID); err != nil {
		log.Printf("purchase committed but broadcast failed for %s: %v", itemID, err)
	}

	return nil
}

// Status returns the current snapshot of the item.
func (s *PurchaseService) Status(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if item == nil {
		return nil, port.ErrItemNotFound
	}
	return item, nil
}

// Reset restores the item to its configured initial quantity, clears
// the order log and publishes the restored state once.
func (s *PurchaseService) Reset(ctx context.Context, itemID string) error {
	if err := s.store.Reset(ctx, itemID, s.initialStock); err != nil {
		return err
	}

	if err := s.hub.Publish(ctx, itemID); err != nil {
		log.Printf("reset committed but broadcast failed for %s: %v", itemID, err)
	}

	return nil
}
