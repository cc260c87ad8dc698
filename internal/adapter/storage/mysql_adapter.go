package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/misprint/carddrop/internal/core/domain"
	"github.com/misprint/carddrop/internal/port"
)

// MySQL error numbers for lock acquisition failures.
const (
	errLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
	errLockNowait      = 3572 // ER_LOCK_NOWAIT
)

// MySQLAdapter holds the authoritative item quantity and order log.
// It takes no in-process locks; concurrent purchases serialize on the
// InnoDB row lock acquired by LockQuantity.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the items and orders tables if they do not exist.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			image_url VARCHAR(1024),
			quantity INT NOT NULL CHECK (quantity >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			item_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_orders_item_id (item_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SeedItem inserts the item if it is not already present. An existing
// row is left untouched so restarts do not clobber live stock.
func (m *MySQLAdapter) SeedItem(ctx context.Context, item domain.Item) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO items (id, name, description, image_url, quantity)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id`,
		item.ID, item.Name, item.Description, item.ImageURL, item.Quantity,
	)
	if err != nil {
		return fmt.Errorf("seed item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Begin(ctx context.Context) (port.InventoryTx, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrStoreUnavailable, err)
	}
	return &mysqlTx{tx: tx}, nil
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	var item domain.Item
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, description, image_url, quantity
		FROM items WHERE id = ?`, itemID,
	).Scan(&item.ID, &item.Name, &item.Description, &item.ImageURL, &item.Quantity)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &item, nil
}

func (m *MySQLAdapter) Reset(ctx context.Context, itemID string, quantity int) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", port.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	// Lock the row first so a reset serializes with in-flight purchases.
	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM items WHERE id = ? FOR UPDATE`, itemID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("lock item: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET quantity = ? WHERE id = ?`, quantity, itemID); err != nil {
		return fmt.Errorf("reset quantity: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM orders WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear orders: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) CountOrders(ctx context.Context, itemID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE item_id = ?`, itemID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) LockQuantity(ctx context.Context, itemID string) (int, error) {
	var quantity int
	err := t.tx.QueryRowContext(ctx,
		`SELECT quantity FROM items WHERE id = ? FOR UPDATE`, itemID,
	).Scan(&quantity)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, port.ErrItemNotFound
	}
	if isLockUnavailable(err) {
		return 0, port.ErrLockUnavailable
	}
	if err != nil {
		return 0, fmt.Errorf("lock item: %w", err)
	}
	return quantity, nil
}

func (t *mysqlTx) DecrementAndRecordOrder(ctx context.Context, itemID string) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE items SET quantity = quantity - 1 WHERE id = ? AND quantity > 0`, itemID)
	if err != nil {
		return fmt.Errorf("decrement quantity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected: %w", err)
	}
	// The caller holds the row lock and observed quantity > 0, so a
	// zero-row update means the protocol was violated.
	if rows == 0 {
		return fmt.Errorf("decrement guard failed for item %s", itemID)
	}

	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO orders (item_id) VALUES (?)`, itemID); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *mysqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *mysqlTx) Rollback() error {
	return t.tx.Rollback()
}

func isLockUnavailable(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == errLockWaitTimeout || mysqlErr.Number == errLockNowait
	}
	return false
}
