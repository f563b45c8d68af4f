package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditTxType tags every credit ledger row. The set is closed; the database
// enforces the same values with a CHECK constraint.
type CreditTxType string

const (
	CreditTxPurchase   CreditTxType = "PURCHASE"
	CreditTxSpend      CreditTxType = "SPEND"
	CreditTxRefund     CreditTxType = "REFUND"
	CreditTxAdjustment CreditTxType = "ADJUSTMENT"
)

// Valid reports whether t is one of the known transaction types.
func (t CreditTxType) Valid() bool {
	switch t {
	case CreditTxPurchase, CreditTxSpend, CreditTxRefund, CreditTxAdjustment:
		return true
	}
	return false
}

// CreditTransaction is an immutable, signed balance delta.
type CreditTransaction struct {
	ID                uuid.UUID    `json:"id"`
	AccountID         uuid.UUID    `json:"account_id"`
	Type              CreditTxType `json:"type"`
	Amount            int64        `json:"amount"`
	Description       string       `json:"description"`
	ExternalPaymentID *string      `json:"external_payment_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}
