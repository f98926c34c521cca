package shop

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/m3rciful/keyshop/internal/models"
	"github.com/m3rciful/keyshop/internal/store"
)

type fakeLedger struct {
	balances  map[int64]int64
	activeTxn map[int64]string
	failDebit bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:  make(map[int64]int64),
		activeTxn: make(map[int64]string),
	}
}

func (l *fakeLedger) Balance(_ context.Context, accountID int64) (int64, error) {
	if _, ok := l.balances[accountID]; !ok {
		l.balances[accountID] = 0
	}
	return l.balances[accountID], nil
}

func (l *fakeLedger) AdjustBalance(_ context.Context, accountID int64, delta int64) error {
	if l.failDebit && delta < 0 {
		return fmt.Errorf("ledger unavailable")
	}
	l.balances[accountID] += delta
	return nil
}

func (l *fakeLedger) ActiveTxn(_ context.Context, accountID int64) (string, bool, error) {
	txn, ok := l.activeTxn[accountID]
	return txn, ok, nil
}

func (l *fakeLedger) SetActiveTxn(_ context.Context, accountID int64, txnID string) error {
	l.activeTxn[accountID] = txnID
	return nil
}

func (l *fakeLedger) ClearActiveTxn(_ context.Context, accountID int64) error {
	delete(l.activeTxn, accountID)
	return nil
}

func (l *fakeLedger) AccountIDs(_ context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeInventory struct {
	queues map[string][]string
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{queues: make(map[string][]string)}
}

func (i *fakeInventory) IssueKey(_ context.Context, duration string) (string, error) {
	queue := i.queues[duration]
	if len(queue) == 0 {
		return "", store.ErrNoStock
	}
	key := queue[0]
	i.queues[duration] = queue[1:]
	return key, nil
}

func (i *fakeInventory) Restock(_ context.Context, duration, key string) error {
	i.queues[duration] = append(i.queues[duration], key)
	return nil
}

func (i *fakeInventory) Unissue(_ context.Context, duration, key string) error {
	i.queues[duration] = append([]string{key}, i.queues[duration]...)
	return nil
}

func (i *fakeInventory) StockCounts(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(i.queues))
	for d, q := range i.queues {
		counts[d] = len(q)
	}
	return counts, nil
}

type fakePending struct {
	entries map[string]models.PendingTransaction
	now     func() time.Time
}

func newFakePending(now func() time.Time) *fakePending {
	return &fakePending{
		entries: make(map[string]models.PendingTransaction),
		now:     now,
	}
}

func (p *fakePending) Create(_ context.Context, txn models.PendingTransaction) error {
	txn.Status = models.PendingOpen
	p.entries[txn.TxnID] = txn
	return nil
}

func (p *fakePending) Get(_ context.Context, txnID string) (models.PendingTransaction, bool, error) {
	txn, ok := p.entries[txnID]
	if !ok || txn.Status != models.PendingOpen || txn.Expired(p.now()) {
		return models.PendingTransaction{}, false, nil
	}
	return txn, true, nil
}

func (p *fakePending) Consume(_ context.Context, txnID string) (models.PendingTransaction, bool, error) {
	txn, ok := p.entries[txnID]
	if !ok || txn.Status != models.PendingOpen || txn.Expired(p.now()) {
		return models.PendingTransaction{}, false, nil
	}
	delete(p.entries, txnID)
	return txn, true, nil
}

func (p *fakePending) Supersede(_ context.Context, accountID int64) error {
	for id, txn := range p.entries {
		if txn.AccountID == accountID && txn.Status == models.PendingOpen {
			txn.Status = models.PendingSuperseded
			p.entries[id] = txn
		}
	}
	return nil
}

func (p *fakePending) ReapExpired(_ context.Context, cutoff time.Time) (int64, error) {
	var reaped int64
	for id, txn := range p.entries {
		if txn.ExpiresAt.Before(cutoff) {
			delete(p.entries, id)
			reaped++
		}
	}
	return reaped, nil
}

type fakeCodes struct {
	lastInstr PaymentInstruction
}

func (c *fakeCodes) Generate(instr PaymentInstruction) ([]byte, error) {
	c.lastInstr = instr
	return []byte("qr:" + instr.Reference), nil
}

type fixture struct {
	svc       *Service
	ledger    *fakeLedger
	inventory *fakeInventory
	pending   *fakePending
	codes     *fakeCodes
	nowTime   time.Time
}

func (f *fixture) advance(d time.Duration) {
	f.nowTime = f.nowTime.Add(d)
}

const testAdminID int64 = 99

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := Config{Payee: "shop@upi"}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	f := &fixture{
		ledger:    newFakeLedger(),
		inventory: newFakeInventory(),
		codes:     &fakeCodes{},
		nowTime:   time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.nowTime }
	f.pending = newFakePending(clock)
	svc, err := NewService(Options{
		Config:    cfg,
		AdminID:   testAdminID,
		Ledger:    f.ledger,
		Inventory: f.inventory,
		Pending:   f.pending,
		Codes:     f.codes,
		Now:       clock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func TestPurchaseDebitsAndIssues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances[1] = 200
	_ = f.inventory.Restock(ctx, "1", "KEY-A")

	receipt, err := f.svc.Purchase(ctx, 1, "1")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if receipt.Key != "KEY-A" {
		t.Fatalf("key = %q, expected KEY-A", receipt.Key)
	}
	if receipt.NewBalance != 0 {
		t.Fatalf("new balance = %d, expected 0", receipt.NewBalance)
	}
	if f.ledger.balances[1] != 0 {
		t.Fatalf("ledger balance = %d, expected 0", f.ledger.balances[1])
	}
	if len(f.inventory.queues["1"]) != 0 {
		t.Fatalf("stock = %d, expected 0", len(f.inventory.queues["1"]))
	}
}

func TestPurchaseInsufficientFundsMutatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances[1] = 199
	_ = f.inventory.Restock(ctx, "1", "KEY-A")

	_, err := f.svc.Purchase(ctx, 1, "1")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, expected ErrInsufficientFunds", err)
	}
	if f.ledger.balances[1] != 199 {
		t.Fatalf("balance = %d, expected 199", f.ledger.balances[1])
	}
	if len(f.inventory.queues["1"]) != 1 {
		t.Fatalf("stock = %d, expected 1", len(f.inventory.queues["1"]))
	}
}

func TestPurchaseFundsCheckedBeforeStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances[1] = 0

	// Broke and out of stock: the funds error wins.
	_, err := f.svc.Purchase(ctx, 1, "1")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, expected ErrInsufficientFunds", err)
	}
}

func TestPurchaseOutOfStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances[1] = 5000

	_, err := f.svc.Purchase(ctx, 1, "1")
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("err = %v, expected ErrOutOfStock", err)
	}
	if f.ledger.balances[1] != 5000 {
		t.Fatalf("balance = %d, expected 5000", f.ledger.balances[1])
	}
}

func TestPurchaseUnknownPlan(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Purchase(context.Background(), 1, "90")
	if !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("err = %v, expected ErrUnknownPlan", err)
	}
}

func TestPurchaseFailedDebitReturnsKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances[1] = 1000
	_ = f.inventory.Restock(ctx, "1", "KEY-A")
	f.ledger.failDebit = true

	_, err := f.svc.Purchase(ctx, 1, "1")
	if err == nil {
		t.Fatal("expected error")
	}
	if f.ledger.balances[1] != 1000 {
		t.Fatalf("balance = %d, expected 1000", f.ledger.balances[1])
	}
	if len(f.inventory.queues["1"]) != 1 || f.inventory.queues["1"][0] != "KEY-A" {
		t.Fatalf("queue = %v, expected the key back at the front", f.inventory.queues["1"])
	}
}

func TestIssueOrderIsFIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances[1] = 1000
	for _, key := range []string{"FIRST", "SECOND", "THIRD"} {
		if err := f.svc.Restock(ctx, "1", key); err != nil {
			t.Fatalf("restock: %v", err)
		}
	}

	seen := make(map[string]bool)
	for _, expected := range []string{"FIRST", "SECOND", "THIRD"} {
		receipt, err := f.svc.Purchase(ctx, 1, "1")
		if err != nil {
			t.Fatalf("purchase: %v", err)
		}
		if receipt.Key != expected {
			t.Fatalf("key = %q, expected %q", receipt.Key, expected)
		}
		if seen[receipt.Key] {
			t.Fatalf("key %q issued twice", receipt.Key)
		}
		seen[receipt.Key] = true
	}
	if _, err := f.svc.Purchase(ctx, 1, "1"); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("err = %v, expected ErrOutOfStock after queue drained", err)
	}
}

func TestRestockUnknownPlan(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Restock(context.Background(), "365", "KEY-X")
	if !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("err = %v, expected ErrUnknownPlan", err)
	}
}

func TestStockCountsIncludeEmptyPlans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.svc.Restock(ctx, "7", "KEY-A")

	counts, err := f.svc.StockCounts(ctx)
	if err != nil {
		t.Fatalf("stock counts: %v", err)
	}
	if len(counts) != 3 {
		t.Fatalf("counts = %v, expected all three plans", counts)
	}
	if counts["1"] != 0 || counts["7"] != 1 || counts["30"] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestRequestFundingCreatesPendingAndCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("request funding: %v", err)
	}
	if len(req.TxnID) != 10 {
		t.Fatalf("txn id %q, expected 10 chars", req.TxnID)
	}
	if req.Amount != 500 || req.Payee != "shop@upi" || req.Currency != "INR" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if f.ledger.activeTxn[1] != req.TxnID {
		t.Fatalf("active txn = %q, expected %q", f.ledger.activeTxn[1], req.TxnID)
	}
	if f.codes.lastInstr.Amount != 500 {
		t.Fatalf("code amount = %d, expected 500", f.codes.lastInstr.Amount)
	}
	txn, ok := f.pending.entries[req.TxnID]
	if !ok || txn.Status != models.PendingOpen || txn.Amount != 500 {
		t.Fatalf("pending entry = %+v, ok=%v", txn, ok)
	}
}

func TestRequestFundingRejectsBadAmount(t *testing.T) {
	f := newFixture(t)
	for _, amount := range []int64{0, -100} {
		if _, err := f.svc.RequestFunding(context.Background(), 1, amount); !errors.Is(err, ErrBadAmount) {
			t.Fatalf("amount %d: err = %v, expected ErrBadAmount", amount, err)
		}
	}
}

func TestSecondFundingSupersedesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := f.svc.RequestFunding(ctx, 1, 700)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if first.TxnID == second.TxnID {
		t.Fatal("expected distinct transaction ids")
	}
	if f.ledger.activeTxn[1] != second.TxnID {
		t.Fatalf("active txn = %q, expected the second id", f.ledger.activeTxn[1])
	}

	// The first entry stays stored but is unreachable.
	orphan, ok := f.pending.entries[first.TxnID]
	if !ok {
		t.Fatal("superseded entry should remain stored")
	}
	if orphan.Status != models.PendingSuperseded {
		t.Fatalf("status = %q, expected superseded", orphan.Status)
	}
	if _, err := f.svc.Decide(ctx, testAdminID, first.TxnID, true); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("decide on superseded: err = %v, expected ErrAlreadyProcessed", err)
	}
	if f.ledger.balances[1] != 0 {
		t.Fatalf("balance = %d, expected 0 after superseded decision", f.ledger.balances[1])
	}
}

func TestSubmitProofWithoutRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SubmitProof(context.Background(), 1, nil)
	if !errors.Is(err, ErrNoActiveRequest) {
		t.Fatalf("err = %v, expected ErrNoActiveRequest", err)
	}
}

func TestSubmitProofExpiredRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("request funding: %v", err)
	}
	// Simulate the entry being reaped out from under the active pointer.
	delete(f.pending.entries, req.TxnID)

	if _, err := f.svc.SubmitProof(ctx, 1, nil); !errors.Is(err, ErrRequestExpired) {
		t.Fatalf("err = %v, expected ErrRequestExpired", err)
	}
}

func TestSubmitProofClearsActivePointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("request funding: %v", err)
	}
	var forwarded ProofReview
	review, err := f.svc.SubmitProof(ctx, 1, func(r ProofReview) error {
		forwarded = r
		return nil
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if review.TxnID != req.TxnID || review.AccountID != 1 || review.Amount != 500 {
		t.Fatalf("review = %+v", review)
	}
	if forwarded != review {
		t.Fatalf("forwarded = %+v, expected %+v", forwarded, review)
	}
	if _, ok := f.ledger.activeTxn[1]; ok {
		t.Fatal("active pointer should be cleared")
	}
	if _, err := f.svc.SubmitProof(ctx, 1, nil); !errors.Is(err, ErrNoActiveRequest) {
		t.Fatalf("second proof: err = %v, expected ErrNoActiveRequest", err)
	}
}

func TestSubmitProofForwardFailureKeepsPointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("request funding: %v", err)
	}
	_, err = f.svc.SubmitProof(ctx, 1, func(ProofReview) error {
		return fmt.Errorf("admin unreachable")
	})
	if err == nil {
		t.Fatal("expected forward error")
	}
	if f.ledger.activeTxn[1] != req.TxnID {
		t.Fatalf("active txn = %q, expected the pointer kept for a retry", f.ledger.activeTxn[1])
	}

	// The resend goes through without a fresh funding request.
	review, err := f.svc.SubmitProof(ctx, 1, func(ProofReview) error { return nil })
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if review.TxnID != req.TxnID {
		t.Fatalf("review txn = %q, expected %q", review.TxnID, req.TxnID)
	}
	if _, ok := f.ledger.activeTxn[1]; ok {
		t.Fatal("active pointer should be cleared after the successful forward")
	}
}

func TestFundingRequestExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("request funding: %v", err)
	}
	f.advance(f.svc.Config().PendingTTL() + time.Minute)

	// Past its TTL the entry reads as absent everywhere.
	if _, err := f.svc.SubmitProof(ctx, 1, nil); !errors.Is(err, ErrRequestExpired) {
		t.Fatalf("submit proof: err = %v, expected ErrRequestExpired", err)
	}
	if _, err := f.svc.Decide(ctx, testAdminID, req.TxnID, true); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("decide: err = %v, expected ErrAlreadyProcessed", err)
	}
	if f.ledger.balances[1] != 0 {
		t.Fatalf("balance = %d, expected 0 for an expired request", f.ledger.balances[1])
	}

	// The next funding request reaps the expired row.
	if _, ok := f.pending.entries[req.TxnID]; !ok {
		t.Fatal("expired entry should still be stored before the reap")
	}
	second, err := f.svc.RequestFunding(ctx, 1, 700)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if _, ok := f.pending.entries[req.TxnID]; ok {
		t.Fatal("expired entry should be reaped by the next funding request")
	}
	if _, ok := f.pending.entries[second.TxnID]; !ok {
		t.Fatal("fresh entry should be stored")
	}
}

func TestDecideApproveCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("request funding: %v", err)
	}
	decision, err := f.svc.Decide(ctx, testAdminID, req.TxnID, true)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.Approved || decision.NewBalance != 500 {
		t.Fatalf("decision = %+v", decision)
	}
	if f.ledger.balances[1] != 500 {
		t.Fatalf("balance = %d, expected 500", f.ledger.balances[1])
	}

	// Double press credits nothing.
	if _, err := f.svc.Decide(ctx, testAdminID, req.TxnID, true); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("second decide: err = %v, expected ErrAlreadyProcessed", err)
	}
	if f.ledger.balances[1] != 500 {
		t.Fatalf("balance = %d, expected 500 after replay", f.ledger.balances[1])
	}
}

func TestDecideRejectLeavesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("request funding: %v", err)
	}
	decision, err := f.svc.Decide(ctx, testAdminID, req.TxnID, false)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.Approved {
		t.Fatal("decision should not be approved")
	}
	if f.ledger.balances[1] != 0 {
		t.Fatalf("balance = %d, expected 0", f.ledger.balances[1])
	}
	if _, ok := f.pending.entries[req.TxnID]; ok {
		t.Fatal("rejected entry should be consumed")
	}
}

func TestDecideRejectsNonAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestFunding(ctx, 1, 500)
	if err != nil {
		t.Fatalf("request funding: %v", err)
	}
	if _, err := f.svc.Decide(ctx, 1, req.TxnID, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, expected ErrUnauthorized", err)
	}
	if f.ledger.balances[1] != 0 {
		t.Fatalf("balance = %d, expected 0", f.ledger.balances[1])
	}
	if _, ok := f.pending.entries[req.TxnID]; !ok {
		t.Fatal("pending entry must survive an unauthorized decision")
	}
	// The admin can still settle it.
	if _, err := f.svc.Decide(ctx, testAdminID, req.TxnID, true); err != nil {
		t.Fatalf("admin decide after unauthorized attempt: %v", err)
	}
}

func TestAdjustBalanceReturnsNewTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances[1] = 100

	balance, err := f.svc.AdjustBalance(ctx, 1, 400)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if balance != 500 {
		t.Fatalf("balance = %d, expected 500", balance)
	}
}

func TestBroadcastSplitsOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		if err := f.svc.Register(ctx, id); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	report, err := f.svc.Broadcast(ctx, func(accountID int64) error {
		if accountID == 2 {
			return fmt.Errorf("blocked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(report.Sent) != 2 {
		t.Fatalf("sent = %v, expected 2 recipients", report.Sent)
	}
	if len(report.Failed) != 1 || report.Failed[0] != 2 {
		t.Fatalf("failed = %v, expected [2]", report.Failed)
	}
}

func TestTxnIDsAreShortAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newTxnID()
		if len(id) != 10 {
			t.Fatalf("txn id %q, expected 10 chars", id)
		}
		if seen[id] {
			t.Fatalf("duplicate txn id %q", id)
		}
		seen[id] = true
	}
}
