package payments_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/database"
	"github.com/souqline/backend/internal/database/dbtest"
	"github.com/souqline/backend/internal/ledger"
	"github.com/souqline/backend/internal/models"
	"github.com/souqline/backend/internal/payments"
	"github.com/souqline/backend/internal/payout"
	"github.com/souqline/backend/internal/repository"
	"github.com/souqline/backend/internal/subscription"
)

const pgSecret = "whsec_postgres"

type pgFixture struct {
	pool     *pgxpool.Pool
	accounts *repository.AccountRepo
	ledger   ledger.Service
	payouts  *payout.Engine
	gw       *payments.Gateway
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	pool := dbtest.Postgres(t)
	accounts := repository.NewAccountRepo(pool)
	ledgerSvc := ledger.NewService(pool, accounts, repository.NewCreditRepo(pool), nil)
	subs := subscription.NewManager(repository.NewSubscriptionRepo(pool), accounts, nil)
	payouts := payout.NewEngine(pool, repository.NewPayoutRepo(pool), repository.NewFeeRepo(pool), accounts, nil)

	gw, err := payments.NewGateway(pool, repository.NewEventRepo(), payments.NewVerifier(pgSecret, 5*time.Minute), nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	(&payments.Handlers{
		Credits:       ledgerSvc,
		Subscriptions: subs,
		Payouts:       payouts,
		Customers:     accounts,
	}).Register(gw)

	return &pgFixture{pool: pool, accounts: accounts, ledger: ledgerSvc, payouts: payouts, gw: gw}
}

func (f *pgFixture) account(t *testing.T) uuid.UUID {
	t.Helper()
	a := &models.Account{Email: fmt.Sprintf("buyer-%s@example.com", uuid.NewString()[:8])}
	if err := f.accounts.Create(context.Background(), a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a.ID
}

func (f *pgFixture) deliver(payload string) (payments.Result, error) {
	body := []byte(payload)
	return f.gw.VerifyAndDispatch(context.Background(), body, payments.SignPayload(pgSecret, body, time.Now()))
}

func TestPostgres_CreditPurchaseReplayedAppliesOnce(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	user := f.account(t)

	payload := fmt.Sprintf(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{
		"id":"cs_1","payment_intent":"pi_1",
		"metadata":{"userId":%q,"purchaseType":"credits","credits":"250"}}}}`, user)

	const deliveries = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.deliver(payload)
			if err != nil {
				t.Errorf("deliver: %v", err)
				return
			}
			if !res.Duplicate {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	res, err := f.deliver(payload)
	if err != nil {
		t.Fatalf("late replay: %v", err)
	}
	if !res.Duplicate {
		t.Error("late replay not reported as duplicate")
	}
	if applied != 1 {
		t.Errorf("applied %d times, want 1", applied)
	}

	var rows int
	if err := f.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credit_transactions WHERE account_id = $1`, user).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("credit rows: got %d, want 1", rows)
	}
	balance, err := f.ledger.Balance(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 250 {
		t.Errorf("balance: got %d, want 250", balance)
	}
	if _, err := f.ledger.Reconcile(ctx, user); err != nil {
		t.Errorf("Reconcile: %v", err)
	}
}

func TestPostgres_SamePaymentUnderNewEventIDCreditsOnce(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	user := f.account(t)

	for _, eventID := range []string{"evt_a", "evt_b"} {
		payload := fmt.Sprintf(`{"id":%q,"type":"checkout.session.completed","data":{"object":{
			"id":"cs_2","payment_intent":"pi_2",
			"metadata":{"userId":%q,"purchaseType":"credits","credits":"100"}}}}`, eventID, user)
		if _, err := f.deliver(payload); err != nil {
			t.Fatalf("deliver %s: %v", eventID, err)
		}
	}

	balance, err := f.ledger.Balance(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 100 {
		t.Errorf("balance: got %d, want 100", balance)
	}
}

func TestPostgres_SubscriptionActivationReplayed(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	user := f.account(t)

	start := time.Now().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	for _, eventID := range []string{"evt_s1", "evt_s2"} {
		payload := fmt.Sprintf(`{"id":%q,"type":"checkout.session.completed","data":{"object":{
			"id":"cs_s","subscription":"sub_pg","current_period_start":%d,"current_period_end":%d,
			"metadata":{"userId":%q,"purchaseType":"pro_subscription"}}}}`, eventID, start.Unix(), end.Unix(), user)
		if _, err := f.deliver(payload); err != nil {
			t.Fatalf("deliver %s: %v", eventID, err)
		}
	}

	var rows int
	if err := f.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE account_id = $1`, user).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("subscription rows: got %d, want 1", rows)
	}
	acc, err := f.accounts.GetByID(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.IsPro || acc.ProExpiresAt == nil || !acc.ProExpiresAt.Equal(end) {
		t.Errorf("pro: %v until %v, want until %v", acc.IsPro, acc.ProExpiresAt, end)
	}
}

func TestPostgres_RejectedPayoutRestoresAvailable(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	provider := f.account(t)
	payer := f.account(t)
	reviewer := f.account(t)

	err := database.InTx(ctx, f.pool, func(tx pgx.Tx) error {
		return f.payouts.RecordFee(ctx, tx, &models.FeeTransaction{
			ProviderID:  provider,
			PayerID:     &payer,
			Source:      "contest_entry",
			SourceID:    uuid.New(),
			Amount:      1000,
			PlatformFee: 100,
		})
	})
	if err != nil {
		t.Fatalf("RecordFee: %v", err)
	}

	before, err := f.payouts.Available(ctx, provider)
	if err != nil {
		t.Fatal(err)
	}
	if before != 900 {
		t.Fatalf("available: got %d, want 900", before)
	}

	p, err := f.payouts.RequestPayout(ctx, provider, 100, models.PayoutMethodBankTransfer)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	if got, _ := f.payouts.Available(ctx, provider); got != 800 {
		t.Errorf("available while requested: got %d, want 800", got)
	}

	rejected, err := f.payouts.Reject(ctx, p.ID, reviewer, "insufficient docs")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != models.PayoutRejected {
		t.Errorf("status: got %s", rejected.Status)
	}
	if got, _ := f.payouts.Available(ctx, provider); got != before {
		t.Errorf("available after reject: got %d, want %d", got, before)
	}
}
