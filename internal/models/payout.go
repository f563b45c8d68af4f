package models

import (
	"time"

	"github.com/google/uuid"
)

type PayoutStatus string

const (
	PayoutRequested  PayoutStatus = "REQUESTED"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutCompleted  PayoutStatus = "COMPLETED"
	PayoutRejected   PayoutStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutCompleted || s == PayoutRejected
}

// Payout methods accepted by RequestPayout.
const (
	PayoutMethodBankTransfer = "bank_transfer"
	PayoutMethodPayPal       = "paypal"
	PayoutMethodCard         = "card"
)

type PayoutRequest struct {
	ID                 uuid.UUID    `json:"id"`
	ProviderID         uuid.UUID    `json:"provider_id"`
	Amount             int64        `json:"amount"`
	Method             string       `json:"method"`
	Status             PayoutStatus `json:"status"`
	RequestedAt        time.Time    `json:"requested_at"`
	ProcessedAt        *time.Time   `json:"processed_at,omitempty"`
	ProcessedBy        *uuid.UUID   `json:"processed_by,omitempty"`
	RejectionReason    *string      `json:"rejection_reason,omitempty"`
	ExternalTransferID *string      `json:"external_transfer_id,omitempty"`
}

// Fee sources.
const FeeSourceContestEntry = "contest_entry"

// FeeTransaction records money a provider earned through the platform and the
// fee retained from it. Earnings available for payout are Amount - PlatformFee.
type FeeTransaction struct {
	ID          uuid.UUID  `json:"id"`
	ProviderID  uuid.UUID  `json:"provider_id"`
	PayerID     *uuid.UUID `json:"payer_id,omitempty"`
	Source      string     `json:"source"`
	SourceID    uuid.UUID  `json:"source_id"`
	Amount      int64      `json:"amount"`
	PlatformFee int64      `json:"platform_fee"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PayoutSummary is the admin rollup across all payout requests.
type PayoutSummary struct {
	ByStatus         map[PayoutStatus]int64 `json:"by_status"`
	CountByStatus    map[PayoutStatus]int64 `json:"count_by_status"`
	TotalPlatformFee int64                  `json:"total_platform_fee"`
}
