package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mealicious/storefront-api/api/middleware"
	ordersvc "github.com/mealicious/storefront-api/internal/orders"
	pkgAuth "github.com/mealicious/storefront-api/pkg/auth"
	"github.com/mealicious/storefront-api/pkg/enums"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
)

type stubOrderService struct {
	ordersvc.Service
	input ordersvc.CreateInput
	err   error
}

func (s *stubOrderService) Create(_ context.Context, input ordersvc.CreateInput) (*ordersvc.CreateResult, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &ordersvc.CreateResult{
		Order:   ordersvc.OrderDTO{ID: uuid.New(), Status: enums.OrderStatusPending, Total: decimal.RequireFromString("231.00")},
		Gateway: ordersvc.GatewayOrderDTO{ID: "order_test", Amount: 23100, Currency: "INR", KeyID: "rzp_test"},
	}, nil
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	claims := &pkgAuth.AccessTokenClaims{UserID: userID, Role: enums.RoleCustomer}
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func TestCreateOrderForwardsInput(t *testing.T) {
	svc := &stubOrderService{}
	userID := uuid.New()
	body := `{"shipping_address":"  12 MG Road, Pune ","phone":"9876543210","client_total":"231.00"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)), userID)
	rec := httptest.NewRecorder()

	Create(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.input.UserID != userID {
		t.Fatalf("expected user %s got %s", userID, svc.input.UserID)
	}
	if svc.input.ShippingAddress != "12 MG Road, Pune" {
		t.Fatalf("expected trimmed address, got %q", svc.input.ShippingAddress)
	}
	if svc.input.ClientTotal == nil || !svc.input.ClientTotal.Equal(decimal.RequireFromString("231")) {
		t.Fatalf("expected client total hint, got %v", svc.input.ClientTotal)
	}

	var envelope struct {
		Data struct {
			Gateway struct {
				Amount int64 `json:"amount"`
			} `json:"gateway"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Gateway.Amount != 23100 {
		t.Fatalf("expected amount 23100 got %d", envelope.Data.Gateway.Amount)
	}
}

func TestCreateOrderBelowMinimumShowsDetails(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeBelowMinimumAmount, "order total 0.50 is below the minimum of 1.00").
		WithDetails(map[string]any{"minimum_amount": "1.00", "current_amount": "0.50", "currency": "INR"})}
	body := `{"shipping_address":"12 MG Road","phone":"9876543210"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()

	Create(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Details["minimum_amount"] != "1.00" || envelope.Error.Details["current_amount"] != "0.50" {
		t.Fatalf("unexpected details %+v", envelope.Error.Details)
	}
	if !strings.Contains(envelope.Error.Message, "0.50") {
		t.Fatalf("expected shortfall in message, got %q", envelope.Error.Message)
	}
}

func TestCreateOrderValidatesBody(t *testing.T) {
	svc := &stubOrderService{}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"phone":"1"}`)), uuid.New())
	rec := httptest.NewRecorder()

	Create(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.input.UserID != uuid.Nil {
		t.Fatal("service should not be called for an invalid body")
	}
}
