package models

import "time"

type StatusTotal struct {
	Count  int64 `json:"count"`
	Amount int64 `json:"amount"`
}

// Dashboard is a read-only rollup. Flow figures (credits, payouts, fees,
// contests, entries) honour Since; point-in-time figures (active
// subscriptions, pro accounts) do not.
type Dashboard struct {
	Country             string                 `json:"country,omitempty"`
	Since               *time.Time             `json:"since,omitempty"`
	CreditsPurchased    int64                  `json:"credits_purchased"`
	CreditsSpent        int64                  `json:"credits_spent"`
	ActiveSubscriptions int64                  `json:"active_subscriptions"`
	ProAccounts         int64                  `json:"pro_accounts"`
	Payouts             map[string]StatusTotal `json:"payouts"`
	PlatformFees        int64                  `json:"platform_fees"`
	Contests            map[string]int64       `json:"contests"`
	EntriesSold         int64                  `json:"entries_sold"`
	GeneratedAt         time.Time              `json:"generated_at"`
}
