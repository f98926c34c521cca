package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/keyshop/core/logger"
	"github.com/m3rciful/keyshop/internal/models"
	"github.com/m3rciful/keyshop/internal/store"
)

// Ledger is the wallet store owned by the coordinator.
type Ledger interface {
	Balance(ctx context.Context, accountID int64) (int64, error)
	AdjustBalance(ctx context.Context, accountID int64, delta int64) error
	ActiveTxn(ctx context.Context, accountID int64) (string, bool, error)
	SetActiveTxn(ctx context.Context, accountID int64, txnID string) error
	ClearActiveTxn(ctx context.Context, accountID int64) error
	AccountIDs(ctx context.Context) ([]int64, error)
}

// Inventory is the access-key store owned by the coordinator.
// IssueKey reports an empty or unknown queue with store.ErrNoStock; the
// coordinator maps it to ErrOutOfStock.
type Inventory interface {
	IssueKey(ctx context.Context, duration string) (string, error)
	Restock(ctx context.Context, duration, key string) error
	Unissue(ctx context.Context, duration, key string) error
	StockCounts(ctx context.Context) (map[string]int, error)
}

// Pending is the funding-request store owned by the coordinator.
type Pending interface {
	Create(ctx context.Context, txn models.PendingTransaction) error
	Get(ctx context.Context, txnID string) (models.PendingTransaction, bool, error)
	Consume(ctx context.Context, txnID string) (models.PendingTransaction, bool, error)
	Supersede(ctx context.Context, accountID int64) error
	ReapExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// PaymentInstruction describes one payment the user is asked to make.
type PaymentInstruction struct {
	Payee     string
	Merchant  string
	Currency  string
	Reference string
	Amount    int64
}

// CodeGenerator renders a payment instruction into a scannable image.
type CodeGenerator interface {
	Generate(instr PaymentInstruction) ([]byte, error)
}

// PurchaseReceipt is the result of a successful purchase.
type PurchaseReceipt struct {
	Plan       Plan
	Key        string
	NewBalance int64
}

// FundingRequest is the payment-instruction artifact shown to the requester.
type FundingRequest struct {
	TxnID     string
	Amount    int64
	Payee     string
	Currency  string
	Reference string
	Code      []byte
	ExpiresAt time.Time
}

// ProofReview is the ticket forwarded to the administrator review queue.
type ProofReview struct {
	TxnID     string
	AccountID int64
	Amount    int64
}

// Decision is the terminal outcome of an admin review.
type Decision struct {
	TxnID      string
	AccountID  int64
	Amount     int64
	Approved   bool
	NewBalance int64
}

// BroadcastReport collects per-recipient delivery outcomes.
type BroadcastReport struct {
	Sent   []int64
	Failed []int64
}

// Service is the transaction coordinator. It owns the three persistent stores
// and is the only component allowed to mutate them.
type Service struct {
	cfg     Config
	adminID int64

	ledger    Ledger
	inventory Inventory
	pending   Pending
	codes     CodeGenerator

	now func() time.Time

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// Options assembles a Service.
type Options struct {
	Config    Config
	AdminID   int64
	Ledger    Ledger
	Inventory Inventory
	Pending   Pending
	Codes     CodeGenerator
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewService validates options and builds the coordinator.
func NewService(opts Options) (*Service, error) {
	if opts.Ledger == nil || opts.Inventory == nil || opts.Pending == nil {
		return nil, fmt.Errorf("shop: ledger, inventory and pending stores are required")
	}
	if opts.Codes == nil {
		return nil, fmt.Errorf("shop: payment code generator is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:       opts.Config,
		adminID:   opts.AdminID,
		ledger:    opts.Ledger,
		inventory: opts.Inventory,
		pending:   opts.Pending,
		codes:     opts.Codes,
		now:       now,
		locks:     make(map[int64]*sync.Mutex),
	}, nil
}

// Config returns the storefront settings the coordinator runs with.
func (s *Service) Config() Config { return s.cfg }

// lockAccount serializes check-then-act sequences per account.
func (s *Service) lockAccount(accountID int64) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[accountID] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// Register ensures the account exists, creating it with a zero balance.
func (s *Service) Register(ctx context.Context, accountID int64) error {
	_, err := s.ledger.Balance(ctx, accountID)
	return err
}

// Balance reports the account's wallet balance, creating the account lazily.
func (s *Service) Balance(ctx context.Context, accountID int64) (int64, error) {
	return s.ledger.Balance(ctx, accountID)
}

// Purchase checks funds, reserves a key, and applies the debit. The funds
// check runs before the stock check, so a user short on both sees the
// insufficient-funds error. Inventory is reserved before the balance commits;
// a failed debit puts the key back, keeping debit and key a paired outcome.
func (s *Service) Purchase(ctx context.Context, accountID int64, duration string) (PurchaseReceipt, error) {
	plan, ok := s.cfg.Plan(duration)
	if !ok {
		return PurchaseReceipt{}, ErrUnknownPlan
	}

	unlock := s.lockAccount(accountID)
	defer unlock()

	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	if balance < plan.Price {
		logger.Info(ctx, "service.shop", "purchase.rejected",
			slog.String("status", "skip"),
			slog.Int64("account_id", accountID),
			slog.String("duration", duration),
			slog.Int64("price", plan.Price),
			slog.Int64("balance", balance),
		)
		return PurchaseReceipt{}, ErrInsufficientFunds
	}

	key, err := s.inventory.IssueKey(ctx, duration)
	if err != nil {
		if errors.Is(err, store.ErrNoStock) {
			logger.Info(ctx, "service.shop", "purchase.rejected",
				slog.String("status", "skip"),
				slog.Int64("account_id", accountID),
				slog.String("duration", duration),
				slog.String("cause", "out_of_stock"),
			)
			return PurchaseReceipt{}, ErrOutOfStock
		}
		return PurchaseReceipt{}, err
	}

	if err := s.ledger.AdjustBalance(ctx, accountID, -plan.Price); err != nil {
		// Put the reserved key back so no key leaves without its debit.
		if unissueErr := s.inventory.Unissue(ctx, duration, key); unissueErr != nil {
			logger.Error(ctx, "service.shop", "purchase.compensation_failed",
				slog.String("status", "fail"),
				slog.Int64("account_id", accountID),
				slog.String("duration", duration),
				slog.String("err", unissueErr.Error()),
			)
			return PurchaseReceipt{}, errors.Join(err, unissueErr)
		}
		return PurchaseReceipt{}, err
	}

	logger.Info(ctx, "service.shop", "purchase.completed",
		slog.String("status", "ok"),
		slog.Int64("account_id", accountID),
		slog.String("duration", duration),
		slog.Int64("price", plan.Price),
		slog.Int64("balance", balance-plan.Price),
	)
	return PurchaseReceipt{Plan: plan, Key: key, NewBalance: balance - plan.Price}, nil
}

// newTxnID produces a short opaque transaction token.
func newTxnID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// RequestFunding opens a funding request: the account's prior open request is
// superseded, the new transaction id becomes the active pointer, and the
// payment-code artifact is rendered for display.
func (s *Service) RequestFunding(ctx context.Context, accountID int64, amount int64) (FundingRequest, error) {
	if amount <= 0 {
		return FundingRequest{}, ErrBadAmount
	}

	unlock := s.lockAccount(accountID)
	defer unlock()

	now := s.now()
	if reaped, err := s.pending.ReapExpired(ctx, now); err != nil {
		logger.Warn(ctx, "service.pending", "reap.failed",
			slog.String("err", err.Error()),
		)
	} else if reaped > 0 {
		logger.Debug(ctx, "service.pending", "reap.completed",
			slog.Int64("count", reaped),
		)
	}

	if err := s.pending.Supersede(ctx, accountID); err != nil {
		return FundingRequest{}, err
	}

	txnID := newTxnID()
	if err := s.ledger.SetActiveTxn(ctx, accountID, txnID); err != nil {
		return FundingRequest{}, err
	}

	expiresAt := now.Add(s.cfg.PendingTTL())
	err := s.pending.Create(ctx, models.PendingTransaction{
		TxnID:     txnID,
		AccountID: accountID,
		Amount:    amount,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return FundingRequest{}, err
	}

	reference := s.cfg.Merchant + "-" + txnID
	instr := PaymentInstruction{
		Payee:     s.cfg.Payee,
		Merchant:  s.cfg.Merchant,
		Currency:  s.cfg.Currency,
		Reference: reference,
		Amount:    amount,
	}
	code, err := s.codes.Generate(instr)
	if err != nil {
		return FundingRequest{}, fmt.Errorf("payment code for %s: %w", txnID, err)
	}

	logger.Info(ctx, "service.shop", "funding.requested",
		slog.String("status", "ok"),
		slog.Int64("account_id", accountID),
		slog.String("txn_id", txnID),
		slog.Int64("amount", amount),
	)
	return FundingRequest{
		TxnID:     txnID,
		Amount:    amount,
		Payee:     s.cfg.Payee,
		Currency:  s.cfg.Currency,
		Reference: reference,
		Code:      code,
		ExpiresAt: expiresAt,
	}, nil
}

// SubmitProof matches an incoming payment proof to the account's active
// funding request, hands the review ticket to forward, and only then consumes
// the active pointer. A failed forward leaves the pointer in place so the user
// can resend the proof. The pending entry itself stays untouched until the
// admin decides.
func (s *Service) SubmitProof(ctx context.Context, accountID int64, forward func(ProofReview) error) (ProofReview, error) {
	unlock := s.lockAccount(accountID)
	defer unlock()

	txnID, ok, err := s.ledger.ActiveTxn(ctx, accountID)
	if err != nil {
		return ProofReview{}, err
	}
	if !ok {
		return ProofReview{}, ErrNoActiveRequest
	}

	txn, ok, err := s.pending.Get(ctx, txnID)
	if err != nil {
		return ProofReview{}, err
	}
	if !ok {
		return ProofReview{}, ErrRequestExpired
	}

	review := ProofReview{TxnID: txnID, AccountID: txn.AccountID, Amount: txn.Amount}
	if forward != nil {
		if err := forward(review); err != nil {
			return ProofReview{}, fmt.Errorf("forward proof %s: %w", txnID, err)
		}
	}

	if err := s.ledger.ClearActiveTxn(ctx, accountID); err != nil {
		return ProofReview{}, err
	}

	logger.Info(ctx, "service.shop", "proof.submitted",
		slog.String("status", "ok"),
		slog.Int64("account_id", accountID),
		slog.String("txn_id", txnID),
		slog.Int64("amount", txn.Amount),
	)
	return review, nil
}

// Decide consumes the pending entry and settles it. Only the configured admin
// may decide; everyone else gets ErrUnauthorized, which handlers drop without
// a reply. A second decision on the same id reports ErrAlreadyProcessed and
// mutates nothing.
func (s *Service) Decide(ctx context.Context, callerID int64, txnID string, approve bool) (Decision, error) {
	if callerID != s.adminID {
		return Decision{}, ErrUnauthorized
	}

	txn, ok, err := s.pending.Consume(ctx, txnID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{}, ErrAlreadyProcessed
	}

	decision := Decision{
		TxnID:     txnID,
		AccountID: txn.AccountID,
		Amount:    txn.Amount,
		Approved:  approve,
	}
	if approve {
		if err := s.ledger.AdjustBalance(ctx, txn.AccountID, txn.Amount); err != nil {
			return Decision{}, err
		}
	}
	balance, err := s.ledger.Balance(ctx, txn.AccountID)
	if err != nil {
		return Decision{}, err
	}
	decision.NewBalance = balance

	event := "funding.rejected"
	if approve {
		event = "funding.approved"
	}
	logger.Info(ctx, "service.shop", event,
		slog.String("status", "ok"),
		slog.Int64("account_id", txn.AccountID),
		slog.String("txn_id", txnID),
		slog.Int64("amount", txn.Amount),
		slog.Int64("balance", balance),
	)
	return decision, nil
}

// Restock appends a key to a configured duration queue.
func (s *Service) Restock(ctx context.Context, duration, key string) error {
	if _, ok := s.cfg.Plan(duration); !ok {
		return ErrUnknownPlan
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("shop: empty key")
	}
	if err := s.inventory.Restock(ctx, duration, key); err != nil {
		return err
	}
	logger.Info(ctx, "service.inventory", "restock",
		slog.String("status", "ok"),
		slog.String("duration", duration),
	)
	return nil
}

// StockCounts reports remaining keys for every configured plan, zeroes included.
func (s *Service) StockCounts(ctx context.Context) (map[string]int, error) {
	counts, err := s.inventory.StockCounts(ctx)
	if err != nil {
		return nil, err
	}
	full := make(map[string]int, len(s.cfg.Plans))
	for _, plan := range s.cfg.Plans {
		full[plan.Duration] = counts[plan.Duration]
	}
	return full, nil
}

// AdjustBalance applies an admin-directed balance change, bypassing the
// purchase flow, and returns the resulting balance.
func (s *Service) AdjustBalance(ctx context.Context, accountID int64, delta int64) (int64, error) {
	unlock := s.lockAccount(accountID)
	defer unlock()

	if err := s.ledger.AdjustBalance(ctx, accountID, delta); err != nil {
		return 0, err
	}
	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, "service.ledger", "balance.adjusted",
		slog.String("status", "ok"),
		slog.Int64("account_id", accountID),
		slog.Int64("amount", delta),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

// Broadcast delivers a message to every known account through send, collecting
// explicit success and failure lists. Delivery errors never abort the fan-out.
func (s *Service) Broadcast(ctx context.Context, send func(accountID int64) error) (BroadcastReport, error) {
	ids, err := s.ledger.AccountIDs(ctx)
	if err != nil {
		return BroadcastReport{}, err
	}
	var report BroadcastReport
	for _, id := range ids {
		if err := send(id); err != nil {
			report.Failed = append(report.Failed, id)
			continue
		}
		report.Sent = append(report.Sent, id)
	}
	logger.Info(ctx, "service.shop", "broadcast.completed",
		slog.String("status", "ok"),
		slog.Int("sent", len(report.Sent)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}
