package razorpay

import (
	"encoding/json"
	"fmt"
)

const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventPaymentAuthorized = "payment.authorized"
	EventOrderPaid         = "order.paid"
)

// WebhookEvent is the envelope posted by the gateway.
type WebhookEvent struct {
	ID        string         `json:"id"`
	Entity    string         `json:"entity"`
	Event     string         `json:"event"`
	CreatedAt int64          `json:"created_at"`
	Payload   WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	Payment *PaymentWrapper `json:"payment,omitempty"`
}

type PaymentWrapper struct {
	Entity Payment `json:"entity"`
}

// Payment holds the fields reconciliation needs from a payment entity.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// ParseWebhookEvent decodes a raw webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("webhook event type is missing")
	}
	return &event, nil
}

// PaymentEntity returns the payment carried by the event, if any.
func (e *WebhookEvent) PaymentEntity() (*Payment, bool) {
	if e == nil || e.Payload.Payment == nil || e.Payload.Payment.Entity.ID == "" {
		return nil, false
	}
	return &e.Payload.Payment.Entity, true
}

// DedupeID returns the identifier used to drop redeliveries.
func (e *WebhookEvent) DedupeID(headerID string) string {
	if headerID != "" {
		return headerID
	}
	if e == nil {
		return ""
	}
	if e.ID != "" {
		return e.ID
	}
	if p, ok := e.PaymentEntity(); ok {
		return e.Event + ":" + p.ID
	}
	return ""
}
