package payments

import "github.com/google/uuid"

// VerifyInput is the client's proof of payment from the checkout sheet.
type VerifyInput struct {
	GatewayOrderID   string `json:"razorpay_order_id" validate:"required"`
	GatewayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature        string `json:"razorpay_signature" validate:"required"`
}

// VerifyResult tells the client where to go next.
type VerifyResult struct {
	Success     bool      `json:"success"`
	OrderID     uuid.UUID `json:"order_id"`
	RedirectURL string    `json:"redirect_url"`
}

// WebhookInput is the raw delivery. Body must be the exact bytes that were signed.
type WebhookInput struct {
	Body      []byte
	Signature string
	EventID   string
}

// WebhookResult summarizes how a delivery was handled.
type WebhookResult struct {
	EventID     string `json:"event_id"`
	Event       string `json:"event"`
	Duplicate   bool   `json:"duplicate"`
	OrdersMoved int    `json:"orders_moved"`
}
