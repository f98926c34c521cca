package models

import (
	"database/sql"
	"time"
)

// Account is a user wallet keyed by the Telegram user id.
// Balance is stored in the smallest currency unit.
type Account struct {
	ID          int64          `db:"id"`
	Balance     int64          `db:"balance"`
	ActiveTxnID sql.NullString `db:"active_txn_id"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// AccessKey is a single unused key waiting in a duration queue.
// Issue order follows the serial id, oldest first.
type AccessKey struct {
	ID       int64     `db:"id"`
	Duration string    `db:"duration"`
	Key      string    `db:"key"`
	AddedAt  time.Time `db:"added_at"`
}

// Pending transaction statuses.
const (
	PendingOpen       = "open"
	PendingSuperseded = "superseded"
)

// PendingTransaction is an in-flight funding request awaiting admin review.
type PendingTransaction struct {
	TxnID     string    `db:"txn_id"`
	AccountID int64     `db:"account_id"`
	Amount    int64     `db:"amount"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (p PendingTransaction) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
