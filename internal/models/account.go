package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID                     uuid.UUID  `json:"id"`
	Email                  string     `json:"email"`
	DisplayName            string     `json:"display_name"`
	Country                string     `json:"country"`
	IsAdmin                bool       `json:"is_admin"`
	CreditBalance          int64      `json:"credit_balance"`
	IsPro                  bool       `json:"is_pro"`
	ProExpiresAt           *time.Time `json:"pro_expires_at,omitempty"`
	PaymentCustomerID      *string    `json:"-"`
	PaymentMethodToken     *string    `json:"-"`
	PaymentMethodExpiresAt *time.Time `json:"payment_method_expires_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}
