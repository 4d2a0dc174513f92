package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/promptshop/backend/api/middleware"
	internalorders "github.com/promptshop/backend/internal/orders"
	"github.com/promptshop/backend/pkg/enums"
	pkgerrors "github.com/promptshop/backend/pkg/errors"
)

type stubOrdersService struct {
	create        func(ctx context.Context, userID uuid.UUID, input internalorders.CreateOrderInput) (*internalorders.OrderDTO, error)
	getByOrderID  func(ctx context.Context, orderID string) (*internalorders.OrderDTO, error)
	listByUser    func(ctx context.Context, userID uuid.UUID) ([]internalorders.OrderDTO, error)
	listUnpaid    func(ctx context.Context, userID uuid.UUID) ([]internalorders.OrderDTO, error)
	deleteOrder   func(ctx context.Context, userID uuid.UUID, orderID string) error
	confirmIntent func(ctx context.Context, userID uuid.UUID, orderID string) (*internalorders.OrderDTO, error)
}

func (s *stubOrdersService) Create(ctx context.Context, userID uuid.UUID, input internalorders.CreateOrderInput) (*internalorders.OrderDTO, error) {
	if s.create != nil {
		return s.create(ctx, userID, input)
	}
	return &internalorders.OrderDTO{UserID: userID}, nil
}

func (s *stubOrdersService) GetByOrderID(ctx context.Context, orderID string) (*internalorders.OrderDTO, error) {
	if s.getByOrderID != nil {
		return s.getByOrderID(ctx, orderID)
	}
	return &internalorders.OrderDTO{OrderID: orderID}, nil
}

func (s *stubOrdersService) ListByUser(ctx context.Context, userID uuid.UUID) ([]internalorders.OrderDTO, error) {
	if s.listByUser != nil {
		return s.listByUser(ctx, userID)
	}
	return nil, nil
}

func (s *stubOrdersService) ListUnpaid(ctx context.Context, userID uuid.UUID) ([]internalorders.OrderDTO, error) {
	if s.listUnpaid != nil {
		return s.listUnpaid(ctx, userID)
	}
	return nil, nil
}

func (s *stubOrdersService) Delete(ctx context.Context, userID uuid.UUID, orderID string) error {
	if s.deleteOrder != nil {
		return s.deleteOrder(ctx, userID, orderID)
	}
	return nil
}

func (s *stubOrdersService) ConfirmPaymentIntent(ctx context.Context, userID uuid.UUID, orderID string) (*internalorders.OrderDTO, error) {
	if s.confirmIntent != nil {
		return s.confirmIntent(ctx, userID, orderID)
	}
	return &internalorders.OrderDTO{OrderID: orderID}, nil
}

func asCaller(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestCreateOrderSuccess(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrdersService{
		create: func(ctx context.Context, incoming uuid.UUID, input internalorders.CreateOrderInput) (*internalorders.OrderDTO, error) {
			if incoming != userID {
				t.Fatalf("unexpected user id %s", incoming)
			}
			if len(input.Items) != 1 || input.Items[0].Qty != 2 {
				t.Fatalf("items not forwarded: %+v", input.Items)
			}
			if input.PaymentMethod != enums.PaymentMethodQR {
				t.Fatalf("unexpected method %q", input.PaymentMethod)
			}
			if input.Address == nil || input.Address.Province != "Bangkok" {
				t.Fatalf("address not forwarded")
			}
			return &internalorders.OrderDTO{OrderID: "ORD-20260110-000001", UserID: incoming}, nil
		},
	}

	body := strings.NewReader(`{
		"items":[{"productId":"p1","name":"Prompt Pack","price":120.50,"qty":2}],
		"address":{"fullName":"Somchai","province":"Bangkok"},
		"paymentMethod":"qr"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", body)
	req.Header.Set("Content-Type", "application/json")
	req = asCaller(req, userID)

	resp := httptest.NewRecorder()
	CreateOrder(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Success bool                    `json:"success"`
		Data    internalorders.OrderDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Success || envelope.Data.OrderID != "ORD-20260110-000001" {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req = asCaller(req, uuid.New())

	resp := httptest.NewRecorder()
	CreateOrder(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateOrderRequiresIdentity(t *testing.T) {
	body := strings.NewReader(`{"items":[{"productId":"p1","name":"x","price":10,"qty":1}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", body)
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	CreateOrder(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateOrderRejectsMalformedIdentity(t *testing.T) {
	body := strings.NewReader(`{"items":[{"productId":"p1","name":"x","price":10,"qty":1}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithUserID(req.Context(), "not-a-uuid"))

	resp := httptest.NewRecorder()
	CreateOrder(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGetOrderPublicLookup(t *testing.T) {
	svc := &stubOrdersService{
		getByOrderID: func(ctx context.Context, orderID string) (*internalorders.OrderDTO, error) {
			if orderID != "ORD-7" {
				t.Fatalf("unexpected order id %q", orderID)
			}
			return &internalorders.OrderDTO{OrderID: orderID, PaymentStatus: enums.PaymentStatusPaid}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-7", nil)
	req = withRouteParam(req, "orderID", "ORD-7")

	resp := httptest.NewRecorder()
	GetOrder(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("unexpected payment status %q", envelope.Data.PaymentStatus)
	}
}

func TestMyOrdersListsCallerOrders(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrdersService{
		listByUser: func(ctx context.Context, incoming uuid.UUID) ([]internalorders.OrderDTO, error) {
			if incoming != userID {
				t.Fatalf("unexpected user id %s", incoming)
			}
			return []internalorders.OrderDTO{{OrderID: "ORD-2"}, {OrderID: "ORD-1"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/my-orders", nil)
	req = asCaller(req, userID)

	resp := httptest.NewRecorder()
	MyOrders(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data []internalorders.OrderDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 2 || envelope.Data[0].OrderID != "ORD-2" {
		t.Fatalf("unexpected orders %+v", envelope.Data)
	}
}

func TestUnpaidOrdersRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/unpaid/list", nil)

	resp := httptest.NewRecorder()
	UnpaidOrders(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDeleteOrderPaidConflict(t *testing.T) {
	svc := &stubOrdersService{
		deleteOrder: func(ctx context.Context, userID uuid.UUID, orderID string) error {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders cannot be deleted")
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/orders/ORD-3", nil)
	req = withRouteParam(req, "orderID", "ORD-3")
	req = asCaller(req, uuid.New())

	resp := httptest.NewRecorder()
	DeleteOrder(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestConfirmOrderPaymentFlagsIntent(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrdersService{
		confirmIntent: func(ctx context.Context, incoming uuid.UUID, orderID string) (*internalorders.OrderDTO, error) {
			if incoming != userID || orderID != "ORD-5" {
				t.Fatalf("unexpected args user=%s order=%s", incoming, orderID)
			}
			return &internalorders.OrderDTO{OrderID: orderID, HasConfirmedPayment: true}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/ORD-5/confirm-payment", nil)
	req = withRouteParam(req, "orderID", "ORD-5")
	req = asCaller(req, userID)

	resp := httptest.NewRecorder()
	ConfirmOrderPayment(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.HasConfirmedPayment {
		t.Fatalf("confirmation flag not set in response")
	}
}
