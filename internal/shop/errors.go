package shop

// Error is a terminal, user-facing failure of a single shop operation.
// The code feeds the err_code field of handler summary logs.
type Error struct {
	code string
	msg  string
}

// Error returns the human-readable message.
func (e *Error) Error() string { return e.msg }

// Code returns the stable machine-readable error code.
func (e *Error) Code() string { return e.code }

var (
	// ErrInsufficientFunds rejects a purchase the wallet cannot cover.
	ErrInsufficientFunds = &Error{"INSUFFICIENT_FUNDS", "insufficient wallet balance"}
	// ErrOutOfStock rejects a purchase when the duration queue is empty.
	ErrOutOfStock = &Error{"OUT_OF_STOCK", "no keys in stock for this plan"}
	// ErrUnknownPlan rejects an operation naming a duration outside the configured set.
	ErrUnknownPlan = &Error{"UNKNOWN_PLAN", "unknown plan duration"}
	// ErrNoActiveRequest rejects a proof submission with no funding request to match.
	ErrNoActiveRequest = &Error{"NO_ACTIVE_REQUEST", "no active payment request"}
	// ErrRequestExpired rejects a proof submission whose funding request is gone.
	ErrRequestExpired = &Error{"REQUEST_EXPIRED", "payment request expired"}
	// ErrAlreadyProcessed rejects a decision on a consumed or superseded transaction.
	ErrAlreadyProcessed = &Error{"ALREADY_PROCESSED", "transaction already processed"}
	// ErrUnauthorized marks an admin-only call from a non-admin identity.
	// Handlers drop it silently; the affordance is never surfaced.
	ErrUnauthorized = &Error{"UNAUTHORIZED", "not allowed"}
	// ErrBadAmount rejects a non-positive funding amount.
	ErrBadAmount = &Error{"BAD_AMOUNT", "amount must be positive"}
)
