package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNoStock signals an empty or unknown duration queue.
var ErrNoStock = errors.New("no keys in stock")

// InventoryStore persists the per-duration FIFO queues of unused access keys.
type InventoryStore struct {
	db *sqlx.DB
}

// NewInventoryStore wraps the shared connection pool.
func NewInventoryStore(db *sqlx.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

// IssueKey dequeues the oldest unused key for the duration. The delete targets
// a single locked row, so two concurrent issuances never return the same key.
// Returns ErrNoStock when the queue is empty or the duration is unknown.
func (s *InventoryStore) IssueKey(ctx context.Context, duration string) (string, error) {
	var key string
	err := s.db.GetContext(ctx, &key, `
		DELETE FROM access_keys
		WHERE id = (
			SELECT id FROM access_keys
			WHERE duration = $1
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING key`, duration)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoStock
	}
	if err != nil {
		return "", fmt.Errorf("inventory issue %q: %w", duration, err)
	}
	return key, nil
}

// Restock appends a key to the tail of the duration queue. Appending the same
// key twice creates two issuable keys; deduplication is the caller's concern.
func (s *InventoryStore) Restock(ctx context.Context, duration, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_keys (duration, key) VALUES ($1, $2)`, duration, key)
	if err != nil {
		return fmt.Errorf("inventory restock %q: %w", duration, err)
	}
	return nil
}

// Unissue puts a key back at the front of its queue. Only the purchase
// compensation path uses it, when the debit after a successful issue fails.
func (s *InventoryStore) Unissue(ctx context.Context, duration, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_keys (id, duration, key)
		VALUES ((SELECT COALESCE(MIN(id), 1) - 1 FROM access_keys), $1, $2)`,
		duration, key)
	if err != nil {
		return fmt.Errorf("inventory unissue %q: %w", duration, err)
	}
	return nil
}

// StockCounts reports the number of unused keys per duration.
func (s *InventoryStore) StockCounts(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		Duration string `db:"duration"`
		Count    int    `db:"count"`
	}{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT duration, COUNT(*) AS count FROM access_keys GROUP BY duration`)
	if err != nil {
		return nil, fmt.Errorf("inventory stock counts: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Duration] = r.Count
	}
	return counts, nil
}
