package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/mealicious/storefront-api/api/responses"
	"github.com/mealicious/storefront-api/internal/payments"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
	maxWebhookBytes = 1 << 20
)

type WebhookService interface {
	HandleWebhook(ctx context.Context, input payments.WebhookInput) (*payments.WebhookResult, error)
}

// RazorpayWebhook hands the raw, signed delivery to the payment service. The body
// must not be decoded before the signature check.
func RazorpayWebhook(svc WebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "razorpay signature missing"))
			return
		}

		result, err := svc.HandleWebhook(ctx, payments.WebhookInput{
			Body:      payload,
			Signature: signature,
			EventID:   strings.TrimSpace(r.Header.Get(eventIDHeader)),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":     result.EventID,
				"event":        result.Event,
				"duplicate":    result.Duplicate,
				"orders_moved": result.OrdersMoved,
			}), "webhook.razorpay.processed")
		}
		responses.WriteSuccess(w, result)
	}
}
