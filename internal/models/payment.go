package models

// Purchase types carried in checkout metadata.
const (
	PurchaseCredits         = "credits"
	PurchaseProSubscription = "pro_subscription"
	PurchaseContestEntry    = "contest_entry"
)

// CheckoutRequest asks the payment processor for a hosted checkout page.
type CheckoutRequest struct {
	AccountID      string            `json:"account_id"`
	Amount         int64             `json:"amount"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"-"`
}

// CheckoutSession is the processor's answer: a session id and the URL the
// buyer is redirected to.
type CheckoutSession struct {
	ID          string `json:"id"`
	RedirectURL string `json:"url"`
}
