package flutterwave

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Envelope is the provider's standard response shape.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

// Customer identifies the payer on a checkout request.
type Customer struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phonenumber,omitempty"`
}

// Customizations controls the hosted checkout appearance.
type Customizations struct {
	Title string `json:"title,omitempty"`
	Logo  string `json:"logo,omitempty"`
}

// PaymentRequest is the payload for the payments endpoint.
type PaymentRequest struct {
	TxRef          string          `json:"tx_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RedirectURL    string          `json:"redirect_url"`
	PaymentOptions string          `json:"payment_options,omitempty"`
	PaymentPlan    string          `json:"payment_plan,omitempty"`
	Customer       Customer        `json:"customer"`
	Customizations *Customizations `json:"customizations,omitempty"`
	Meta           map[string]any  `json:"meta,omitempty"`
}

// PaymentLink is the initialize-payment response data.
type PaymentLink struct {
	Link string `json:"link"`
}

// ChargeCard carries the payment-method details on a verified charge.
type ChargeCard struct {
	First6 string `json:"first_6digits"`
	Last4  string `json:"last_4digits"`
	Issuer string `json:"issuer"`
	Type   string `json:"type"`
}

// ChargeCustomer is the customer block on a verified charge.
type ChargeCustomer struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ChargeData is the authoritative transaction record returned by the verify
// endpoints and carried in charge webhooks.
type ChargeData struct {
	ID            int64           `json:"id"`
	TxRef         string          `json:"tx_ref"`
	FlwRef        string          `json:"flw_ref"`
	Amount        decimal.Decimal `json:"amount"`
	ChargedAmount decimal.Decimal `json:"charged_amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	PaymentType   string          `json:"payment_type"`
	PaymentPlan   int64           `json:"payment_plan,omitempty"`
	CreatedAt     string          `json:"created_at"`
	Customer      ChargeCustomer  `json:"customer"`
	Card          *ChargeCard     `json:"card,omitempty"`
	Meta          map[string]any  `json:"meta,omitempty"`
}

// Successful reports whether the provider considers the charge settled.
func (c ChargeData) Successful() bool {
	return c.Status == "successful" || c.Status == "succeeded"
}

// RefundData is the provider refund record.
type RefundData struct {
	ID             int64           `json:"id"`
	TxID           int64           `json:"tx_id"`
	FlwRef         string          `json:"flw_ref"`
	AmountRefunded decimal.Decimal `json:"amount_refunded"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
}

// PlanRequest creates a payment plan for recurring billing.
type PlanRequest struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Interval string          `json:"interval"`
	Duration int             `json:"duration,omitempty"`
	Currency string          `json:"currency,omitempty"`
}

// PlanData is the provider payment-plan record.
type PlanData struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Interval  string          `json:"interval"`
	Duration  int             `json:"duration"`
	Status    string          `json:"status"`
	PlanToken string          `json:"plan_token"`
	Currency  string          `json:"currency"`
	CreatedAt string          `json:"created_at"`
}

// SubscriptionData is the provider subscription record.
type SubscriptionData struct {
	ID        int64           `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Customer  ChargeCustomer  `json:"customer"`
	Plan      int64           `json:"plan"`
	Status    string          `json:"status"`
	NextDue   string          `json:"next_due,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// ToMinorUnits converts a provider main-unit amount to integer minor units,
// truncating anything beyond two decimal places.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

// FromMinorUnits converts integer minor units to the provider's main-unit
// representation, rounded to two decimal places.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2).Round(2)
}

// PageInfo is the pagination block in list responses.
type PageInfo struct {
	Total       int `json:"total"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// ListMeta wraps PageInfo the way the provider nests it.
type ListMeta struct {
	PageInfo PageInfo `json:"page_info"`
}
