package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/database/dbtest"
	"github.com/souqline/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for AccountRepo and CreditRepo.
// ---------------------------------------------------------------------------

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
	afterGet func()
}

func newMockAccounts(accs ...*models.Account) *mockAccounts {
	m := &mockAccounts{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accs {
		cp := *a
		m.accounts[a.ID] = &cp
	}
	return m
}

func (m *mockAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	a, ok := m.accounts[id]
	var cp models.Account
	if ok {
		cp = *a
	}
	hook := m.afterGet
	m.mu.Unlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if hook != nil {
		hook()
	}
	return &cp, nil
}

func (m *mockAccounts) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return m.GetByID(ctx, id)
}

func (m *mockAccounts) DeductCredits(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.CreditBalance < amount {
		return 0, pgx.ErrNoRows
	}
	a.CreditBalance -= amount
	return a.CreditBalance, nil
}

func (m *mockAccounts) AddCredits(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	a.CreditBalance += amount
	return a.CreditBalance, nil
}

func (m *mockAccounts) balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].CreditBalance
}

func (m *mockAccounts) set(id uuid.UUID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id].CreditBalance = balance
}

type mockCredits struct {
	mu       sync.Mutex
	entries  []*models.CreditTransaction
	accounts *mockAccounts
}

func (m *mockCredits) CreateTx(_ context.Context, _ pgx.Tx, c *models.CreditTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockCredits) InsertPurchaseTx(_ context.Context, _ pgx.Tx, c *models.CreditTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ExternalPaymentID != nil && *e.ExternalPaymentID == *c.ExternalPaymentID {
			return false, nil
		}
	}
	cp := *c
	m.entries = append(m.entries, &cp)
	return true, nil
}

func (m *mockCredits) GetByExternalPaymentIDTx(_ context.Context, _ pgx.Tx, id string) (*models.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ExternalPaymentID != nil && *e.ExternalPaymentID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockCredits) ListByAccountID(_ context.Context, accountID uuid.UUID, limit int) ([]*models.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CreditTransaction
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].AccountID == accountID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *mockCredits) sum(accountID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.AccountID == accountID {
			sum += e.Amount
		}
	}
	return sum
}

// Snapshot holds both locks so a concurrent writer cannot land between the reads.
func (m *mockCredits) Snapshot(_ context.Context, accountID uuid.UUID) (int64, int64, error) {
	m.accounts.mu.Lock()
	defer m.accounts.mu.Unlock()
	a, ok := m.accounts.accounts[accountID]
	if !ok {
		return 0, 0, pgx.ErrNoRows
	}
	return a.CreditBalance, m.sum(accountID), nil
}

func (m *mockCredits) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestService(accs ...*models.Account) (Service, *mockAccounts, *mockCredits) {
	accounts := newMockAccounts(accs...)
	credits := &mockCredits{accounts: accounts}
	return NewService(dbtest.Pool{}, accounts, credits, nil), accounts, credits
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestApplyPurchase_ReplayIsNoop(t *testing.T) {
	id := uuid.New()
	svc, accounts, credits := newTestService(&models.Account{ID: id})
	ctx := context.Background()

	first, err := svc.ApplyPurchase(ctx, nil, id, 500, "pi_123", "500 credits")
	if err != nil {
		t.Fatalf("ApplyPurchase: %v", err)
	}
	second, err := svc.ApplyPurchase(ctx, nil, id, 500, "pi_123", "500 credits")
	if err != nil {
		t.Fatalf("ApplyPurchase replay: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replay returned a different row: %s vs %s", first.ID, second.ID)
	}
	if got := accounts.balance(id); got != 500 {
		t.Errorf("balance: got %d, want 500", got)
	}
	if got := credits.count(); got != 1 {
		t.Errorf("ledger rows: got %d, want 1", got)
	}
}

func TestApplyPurchase_RejectsBadInput(t *testing.T) {
	id := uuid.New()
	svc, _, _ := newTestService(&models.Account{ID: id})
	ctx := context.Background()

	if _, err := svc.ApplyPurchase(ctx, nil, id, 0, "pi_1", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.ApplyPurchase(ctx, nil, id, 10, "", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("missing payment id: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.ApplyPurchase(ctx, nil, uuid.New(), 10, "pi_2", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown account: got %v, want ErrNotFound", err)
	}
}

func TestSpend_InsufficientBalance(t *testing.T) {
	id := uuid.New()
	svc, accounts, credits := newTestService(&models.Account{ID: id, CreditBalance: 50})

	_, err := svc.Spend(context.Background(), id, 80, "boost listing")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if got := accounts.balance(id); got != 50 {
		t.Errorf("balance changed: got %d, want 50", got)
	}
	if got := credits.count(); got != 0 {
		t.Errorf("ledger rows: got %d, want 0", got)
	}
}

func TestSpend_WritesNegativeRow(t *testing.T) {
	id := uuid.New()
	svc, accounts, _ := newTestService(&models.Account{ID: id, CreditBalance: 100})

	entry, err := svc.Spend(context.Background(), id, 30, "boost listing")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if entry.Type != models.CreditTxSpend || entry.Amount != -30 {
		t.Errorf("entry: got %s %d, want SPEND -30", entry.Type, entry.Amount)
	}
	if got := accounts.balance(id); got != 70 {
		t.Errorf("balance: got %d, want 70", got)
	}
}

func TestAdjust(t *testing.T) {
	id := uuid.New()
	svc, accounts, _ := newTestService(&models.Account{ID: id, CreditBalance: 20})
	ctx := context.Background()

	if _, err := svc.Adjust(ctx, id, 0, "noop"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero adjustment: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Adjust(ctx, id, -25, "chargeback"); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraw: got %v, want ErrInsufficientBalance", err)
	}
	if _, err := svc.Adjust(ctx, id, -5, "correction"); err != nil {
		t.Fatalf("negative adjustment: %v", err)
	}
	if _, err := svc.Adjust(ctx, id, 15, "goodwill"); err != nil {
		t.Fatalf("positive adjustment: %v", err)
	}
	if got := accounts.balance(id); got != 30 {
		t.Errorf("balance: got %d, want 30", got)
	}
}

func TestRefund_RejectsNonPositive(t *testing.T) {
	id := uuid.New()
	svc, _, _ := newTestService(&models.Account{ID: id})
	if _, err := svc.Refund(context.Background(), id, -1, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

// TestLedgerIntegrity runs a mixed sequence and checks balance == sum(amount).
func TestLedgerIntegrity(t *testing.T) {
	id := uuid.New()
	svc, accounts, credits := newTestService(&models.Account{ID: id})
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := svc.ApplyPurchase(ctx, nil, id, 1000, "pi_a", ""); return err },
		func() error { _, err := svc.Spend(ctx, id, 300, ""); return err },
		func() error { _, err := svc.ApplyPurchase(ctx, nil, id, 1000, "pi_a", ""); return err },
		func() error { _, err := svc.Refund(ctx, id, 100, ""); return err },
		func() error { _, err := svc.Adjust(ctx, id, -50, ""); return err },
		func() error { _, err := svc.ApplyPurchase(ctx, nil, id, 200, "pi_b", ""); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	sum := credits.sum(id)
	if got := accounts.balance(id); got != sum || got != 950 {
		t.Errorf("balance %d, ledger sum %d, want both 950", got, sum)
	}
	rec, err := svc.Reconcile(ctx, id)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.CachedBalance != rec.LedgerSum {
		t.Errorf("reconciliation mismatch: %+v", rec)
	}
}

func TestReconcile_DetectsDrift(t *testing.T) {
	id := uuid.New()
	svc, accounts, _ := newTestService(&models.Account{ID: id})
	ctx := context.Background()

	if _, err := svc.ApplyPurchase(ctx, nil, id, 100, "pi_x", ""); err != nil {
		t.Fatal(err)
	}
	accounts.set(id, 90)

	rec, err := svc.Reconcile(ctx, id)
	if !errors.Is(err, ErrBalanceMismatch) {
		t.Fatalf("got %v, want ErrBalanceMismatch", err)
	}
	if rec.CachedBalance != 90 || rec.LedgerSum != 100 {
		t.Errorf("report: got %+v", rec)
	}
}

func TestReconcile_UnaffectedByConcurrentPurchase(t *testing.T) {
	id := uuid.New()
	svc, accounts, _ := newTestService(&models.Account{ID: id})
	ctx := context.Background()

	if _, err := svc.ApplyPurchase(ctx, nil, id, 100, "pi_1", ""); err != nil {
		t.Fatal(err)
	}
	fired := false
	accounts.afterGet = func() {
		if fired {
			return
		}
		fired = true
		if _, err := svc.ApplyPurchase(ctx, nil, id, 250, "pi_2", ""); err != nil {
			t.Errorf("concurrent purchase: %v", err)
		}
	}

	rec, err := svc.Reconcile(ctx, id)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.CachedBalance != rec.LedgerSum {
		t.Errorf("report: got %+v", rec)
	}
}

func TestReconcile_UnknownAccount(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Reconcile(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSpend_ConcurrentNeverOverdraws(t *testing.T) {
	id := uuid.New()
	svc, accounts, credits := newTestService(&models.Account{ID: id, CreditBalance: 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Spend(ctx, id, 10, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("successful spends: got %d, want 10", succeeded)
	}
	if got := accounts.balance(id); got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
	if got := credits.count(); got != 10 {
		t.Errorf("ledger rows: got %d, want 10", got)
	}
}
