package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/souqline/backend/internal/ledger"
	"github.com/souqline/backend/internal/models"
)

type fakeLedger struct {
	balance   int64
	history   []*models.CreditTransaction
	spendErr  error
	rec       *ledger.Reconciliation
	recErr    error
	gotLimit  int
	gotAmount int64
	gotKind   string
}

func (f *fakeLedger) Spend(_ context.Context, id uuid.UUID, amount int64, desc string) (*models.CreditTransaction, error) {
	if f.spendErr != nil {
		return nil, f.spendErr
	}
	f.gotAmount, f.gotKind = amount, "spend"
	return &models.CreditTransaction{AccountID: id, Type: models.CreditTxSpend, Amount: -amount, Description: desc}, nil
}

func (f *fakeLedger) Refund(_ context.Context, id uuid.UUID, amount int64, desc string) (*models.CreditTransaction, error) {
	f.gotAmount, f.gotKind = amount, "refund"
	return &models.CreditTransaction{AccountID: id, Type: models.CreditTxRefund, Amount: amount, Description: desc}, nil
}

func (f *fakeLedger) Adjust(_ context.Context, id uuid.UUID, amount int64, desc string) (*models.CreditTransaction, error) {
	f.gotAmount, f.gotKind = amount, "adjustment"
	return &models.CreditTransaction{AccountID: id, Type: models.CreditTxAdjustment, Amount: amount, Description: desc}, nil
}

func (f *fakeLedger) Balance(context.Context, uuid.UUID) (int64, error) { return f.balance, nil }

func (f *fakeLedger) History(_ context.Context, _ uuid.UUID, limit int) ([]*models.CreditTransaction, error) {
	f.gotLimit = limit
	return f.history, nil
}

func (f *fakeLedger) Reconcile(context.Context, uuid.UUID) (*ledger.Reconciliation, error) {
	return f.rec, f.recErr
}

func TestCredits_Get(t *testing.T) {
	f := &fakeLedger{balance: 120, history: []*models.CreditTransaction{{Amount: 120, Type: models.CreditTxPurchase}}}
	h := &CreditsHandler{Ledger: f, Logger: quietLogger()}

	rec := serve(h.Get, as(newRequest(http.MethodGet, "/api/v1/credits?limit=20", ""), user()))
	expectStatus(t, rec, http.StatusOK)

	var body creditsResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Balance != 120 || len(body.Transactions) != 1 {
		t.Errorf("body = %+v", body)
	}
	if f.gotLimit != 20 {
		t.Errorf("limit = %d", f.gotLimit)
	}
}

func TestCredits_GetRequiresPrincipal(t *testing.T) {
	h := &CreditsHandler{Ledger: &fakeLedger{}, Logger: quietLogger()}
	rec := serve(h.Get, newRequest(http.MethodGet, "/api/v1/credits", ""))
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestCredits_SpendErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"insufficient", fmt.Errorf("spend: %w", ledger.ErrInsufficientBalance), http.StatusConflict, "insufficient_balance"},
		{"bad amount", ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{"unexpected", errors.New("pq: relation missing"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &CreditsHandler{Ledger: &fakeLedger{spendErr: tc.err}, Logger: quietLogger()}
			rec := serve(h.Spend, as(newRequest(http.MethodPost, "/api/v1/credits/spend", `{"amount":50,"description":"boost"}`), user()))
			expectStatus(t, rec, tc.want)
			body := decodeError(t, rec)
			if body.Error != tc.code {
				t.Errorf("code = %q, want %q", body.Error, tc.code)
			}
			if tc.want == http.StatusInternalServerError && body.Message != "internal server error" {
				t.Errorf("internal detail leaked: %q", body.Message)
			}
		})
	}
}

func TestCredits_Spend(t *testing.T) {
	f := &fakeLedger{}
	h := &CreditsHandler{Ledger: f, Logger: quietLogger()}
	rec := serve(h.Spend, as(newRequest(http.MethodPost, "/api/v1/credits/spend", `{"amount":50,"description":"boost"}`), user()))
	expectStatus(t, rec, http.StatusCreated)
	if f.gotAmount != 50 {
		t.Errorf("amount = %d", f.gotAmount)
	}
}

func TestCredits_AdminCredit(t *testing.T) {
	f := &fakeLedger{}
	h := &CreditsHandler{Ledger: f, Logger: quietLogger()}
	target := uuid.New()

	rec := serve(h.AdminCredit, withID(newRequest(http.MethodPost, "/", `{"type":"adjustment","amount":-30,"description":"chargeback"}`), target))
	expectStatus(t, rec, http.StatusCreated)
	if f.gotKind != "adjustment" || f.gotAmount != -30 {
		t.Errorf("called %s with %d", f.gotKind, f.gotAmount)
	}

	rec = serve(h.AdminCredit, withID(newRequest(http.MethodPost, "/", `{"type":"gift","amount":5,"description":"x"}`), target))
	expectStatus(t, rec, http.StatusBadRequest)

	rec = serve(h.AdminCredit, withID(newRequest(http.MethodPost, "/", `{"type":"refund","amount":5}`), target))
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestCredits_ReconcileReportsDrift(t *testing.T) {
	id := uuid.New()
	f := &fakeLedger{
		rec:    &ledger.Reconciliation{AccountID: id, CachedBalance: 100, LedgerSum: 90},
		recErr: ledger.ErrBalanceMismatch,
	}
	h := &CreditsHandler{Ledger: f, Logger: quietLogger()}

	rec := serve(h.Reconcile, withID(newRequest(http.MethodGet, "/", ""), id))
	expectStatus(t, rec, http.StatusOK)
	var body struct {
		CachedBalance int64 `json:"cached_balance"`
		LedgerSum     int64 `json:"ledger_sum"`
		Consistent    bool  `json:"consistent"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Consistent || body.CachedBalance != 100 || body.LedgerSum != 90 {
		t.Errorf("body = %+v", body)
	}
}

func TestCredits_ReconcileBadID(t *testing.T) {
	h := &CreditsHandler{Ledger: &fakeLedger{}, Logger: quietLogger()}
	rec := serve(h.Reconcile, newRequest(http.MethodGet, "/", ""))
	expectStatus(t, rec, http.StatusBadRequest)
}
