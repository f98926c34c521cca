package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// LedgerStore persists wallet accounts in Postgres.
type LedgerStore struct {
	db *sqlx.DB
}

// NewLedgerStore wraps the shared connection pool.
func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Balance returns the account balance, creating the account at zero when absent.
func (s *LedgerStore) Balance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		INSERT INTO accounts (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET updated_at = accounts.updated_at
		RETURNING balance`, accountID)
	if err != nil {
		return 0, fmt.Errorf("ledger balance %d: %w", accountID, err)
	}
	return balance, nil
}

// AdjustBalance atomically adds delta to the account balance, creating the
// account first when needed. Non-negativity is the caller's responsibility.
func (s *LedgerStore) AdjustBalance(ctx context.Context, accountID int64, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()`,
		accountID, delta)
	if err != nil {
		return fmt.Errorf("ledger adjust %d by %d: %w", accountID, delta, err)
	}
	return nil
}

// ActiveTxn returns the account's active funding transaction id, if any.
func (s *LedgerStore) ActiveTxn(ctx context.Context, accountID int64) (string, bool, error) {
	var txnID sql.NullString
	err := s.db.GetContext(ctx, &txnID,
		`SELECT active_txn_id FROM accounts WHERE id = $1`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ledger active txn %d: %w", accountID, err)
	}
	if !txnID.Valid || txnID.String == "" {
		return "", false, nil
	}
	return txnID.String, true, nil
}

// SetActiveTxn records txnID as the account's active funding request,
// overwriting any previous pointer.
func (s *LedgerStore) SetActiveTxn(ctx context.Context, accountID int64, txnID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, active_txn_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET active_txn_id = EXCLUDED.active_txn_id, updated_at = now()`,
		accountID, txnID)
	if err != nil {
		return fmt.Errorf("ledger set active txn %d: %w", accountID, err)
	}
	return nil
}

// ClearActiveTxn drops the account's active funding pointer. No-op when unset.
func (s *LedgerStore) ClearActiveTxn(ctx context.Context, accountID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET active_txn_id = NULL, updated_at = now() WHERE id = $1`,
		accountID)
	if err != nil {
		return fmt.Errorf("ledger clear active txn %d: %w", accountID, err)
	}
	return nil
}

// AccountIDs returns every known account id, for broadcast fan-out.
func (s *LedgerStore) AccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM accounts ORDER BY id`); err != nil {
		return nil, fmt.Errorf("ledger account ids: %w", err)
	}
	return ids, nil
}
