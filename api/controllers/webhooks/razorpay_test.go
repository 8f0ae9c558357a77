package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mealicious/storefront-api/internal/payments"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
)

type fakeWebhookService struct {
	calls int
	input payments.WebhookInput
	err   error
}

func (f *fakeWebhookService) HandleWebhook(_ context.Context, input payments.WebhookInput) (*payments.WebhookResult, error) {
	f.calls++
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return &payments.WebhookResult{EventID: input.EventID, Event: "payment.captured", OrdersMoved: 1}, nil
}

func TestRazorpayWebhookPassesRawBody(t *testing.T) {
	svc := &fakeWebhookService{}
	body := `{"event":"payment.captured",  "payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", "abc123")
	req.Header.Set("X-Razorpay-Event-Id", "evt_1")
	rec := httptest.NewRecorder()

	RazorpayWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if string(svc.input.Body) != body {
		t.Fatalf("expected untouched body, got %q", svc.input.Body)
	}
	if svc.input.Signature != "abc123" || svc.input.EventID != "evt_1" {
		t.Fatalf("unexpected headers forwarded: %+v", svc.input)
	}
}

func TestRazorpayWebhookMissingSignature(t *testing.T) {
	svc := &fakeWebhookService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	RazorpayWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not be called without a signature")
	}
}

func TestRazorpayWebhookSurfacesServiceError(t *testing.T) {
	svc := &fakeWebhookService{err: pkgerrors.New(pkgerrors.CodeInvalidSignature, "webhook signature verification failed")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(`{}`))
	req.Header.Set("X-Razorpay-Signature", "forged")
	rec := httptest.NewRecorder()

	RazorpayWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(pkgerrors.CodeInvalidSignature)) {
		t.Fatalf("expected INVALID_SIGNATURE in body, got %s", rec.Body.String())
	}
}
