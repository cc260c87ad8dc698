package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/misprint/carddrop/internal/port"
)

// BroadcastHub owns the set of active listeners and fans published item
// snapshots out to all of them. Delivery to a listener is complete once
// the message is in its inbox; a slow consumer never blocks the
// publisher or the other listeners.
type BroadcastHub struct {
	store port.InventoryRepository

	mu        sync.Mutex
	listeners map[string]*Listener
}

func NewBroadcastHub(store port.InventoryRepository) *BroadcastHub {
	return &BroadcastHub{
		store:     store,
		listeners: make(map[string]*Listener),
	}
}

// Subscribe registers a new listener with an empty inbox.
func (h *BroadcastHub) Subscribe() *Listener {
	l := &Listener{
		id:    uuid.NewString(),
		ready: make(chan struct{}, 1),
	}

	h.mu.Lock()
	h.listeners[l.id] = l
	h.mu.Unlock()

	return l
}

// Unsubscribe removes the listener from the active set. Safe to call
// more than once.
func (h *BroadcastHub) Unsubscribe(l *Listener) {
	if l == nil {
		return
	}
	h.mu.Lock()
	delete(h.listeners, l.id)
	h.mu.Unlock()
}

// Len reports the number of active listeners.
func (h *BroadcastHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Publish reads the current snapshot of the item and enqueues it into
// every active inbox. A no-op without listeners; the snapshot is not
// even read then.
func (h *BroadcastHub) Publish(ctx context.Context, itemID string) error {
	h.mu.Lock()
	targets := make([]*Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		targets = append(targets, l)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	item, err := h.store.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if item == nil {
		return port.ErrItemNotFound
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	for _, l := range targets {
		l.enqueue(payload)
	}
	return nil
}

// Listener is one subscriber's private inbox: an ordered queue of
// pending snapshots with no upper bound on growth.
type Listener struct {
	id string

	mu    sync.Mutex
	inbox [][]byte
	ready chan struct{} // capacity 1, wakes a blocked Next
}

func (l *Listener) ID() string {
	return l.id
}

func (l *Listener) enqueue(msg []byte) {
	l.mu.Lock()
	l.inbox = append(l.inbox, msg)
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Next blocks until a message is available or ctx is cancelled, then
// dequeues in FIFO order.
func (l *Listener) Next(ctx context.Context) ([]byte, error) {
	for {
		l.mu.Lock()
		if len(l.inbox) > 0 {
			msg := l.inbox[0]
			l.inbox = l.inbox[1:]
			l.mu.Unlock()
			return msg, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.ready:
		}
	}
}
