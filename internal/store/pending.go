package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/keyshop/internal/models"
)

// PendingStore persists in-flight funding requests keyed by transaction id.
type PendingStore struct {
	db *sqlx.DB
}

// NewPendingStore wraps the shared connection pool.
func NewPendingStore(db *sqlx.DB) *PendingStore {
	return &PendingStore{db: db}
}

// Create inserts a new open entry. An existing id is overwritten silently;
// ids are generated to avoid collision, not to be idempotent.
func (s *PendingStore) Create(ctx context.Context, txn models.PendingTransaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_transactions (txn_id, account_id, amount, status, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (txn_id) DO UPDATE
		SET account_id = EXCLUDED.account_id,
		    amount     = EXCLUDED.amount,
		    status     = EXCLUDED.status,
		    expires_at = EXCLUDED.expires_at`,
		txn.TxnID, txn.AccountID, txn.Amount, models.PendingOpen, txn.ExpiresAt)
	if err != nil {
		return fmt.Errorf("pending create %s: %w", txn.TxnID, err)
	}
	return nil
}

// Get returns the open, unexpired entry for the id. Superseded or expired
// entries read as absent.
func (s *PendingStore) Get(ctx context.Context, txnID string) (models.PendingTransaction, bool, error) {
	var txn models.PendingTransaction
	err := s.db.GetContext(ctx, &txn, `
		SELECT txn_id, account_id, amount, status, created_at, expires_at
		FROM pending_transactions
		WHERE txn_id = $1 AND status = $2 AND expires_at > now()`,
		txnID, models.PendingOpen)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PendingTransaction{}, false, nil
	}
	if err != nil {
		return models.PendingTransaction{}, false, fmt.Errorf("pending get %s: %w", txnID, err)
	}
	return txn, true, nil
}

// Consume deletes the open, unexpired entry for the id and returns it. The
// delete is the single source of truth for "already processed": a second
// consume of the same id finds no row and reports absent, and so does a
// consume of an entry past its expiry.
func (s *PendingStore) Consume(ctx context.Context, txnID string) (models.PendingTransaction, bool, error) {
	var txn models.PendingTransaction
	err := s.db.GetContext(ctx, &txn, `
		DELETE FROM pending_transactions
		WHERE txn_id = $1 AND status = $2 AND expires_at > now()
		RETURNING txn_id, account_id, amount, status, created_at, expires_at`,
		txnID, models.PendingOpen)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PendingTransaction{}, false, nil
	}
	if err != nil {
		return models.PendingTransaction{}, false, fmt.Errorf("pending consume %s: %w", txnID, err)
	}
	return txn, true, nil
}

// Supersede marks every open entry of the account as superseded. The rows stay
// in the store but become unreachable through Get and Consume.
func (s *PendingStore) Supersede(ctx context.Context, accountID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_transactions SET status = $1
		WHERE account_id = $2 AND status = $3`,
		models.PendingSuperseded, accountID, models.PendingOpen)
	if err != nil {
		return fmt.Errorf("pending supersede account %d: %w", accountID, err)
	}
	return nil
}

// ReapExpired deletes entries whose expiry passed before the cutoff,
// superseded ones included. Returns the number of removed rows.
func (s *PendingStore) ReapExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_transactions WHERE expires_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("pending reap: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pending reap count: %w", err)
	}
	return n, nil
}
