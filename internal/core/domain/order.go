package domain

import "time"

// Order records one completed purchase. Exactly one order row is written
// per quantity decrement, inside the same transaction.
type Order struct {
	ID        int64     `json:"id"`
	ItemID    string    `json:"item_id"`
	CreatedAt time.Time `json:"created_at"`
}
