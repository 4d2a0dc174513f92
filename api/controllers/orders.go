package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promptshop/backend/api/middleware"
	"github.com/promptshop/backend/api/responses"
	"github.com/promptshop/backend/api/validators"
	"github.com/promptshop/backend/internal/orders"
	"github.com/promptshop/backend/pkg/enums"
	pkgerrors "github.com/promptshop/backend/pkg/errors"
	"github.com/promptshop/backend/pkg/logger"
	"github.com/promptshop/backend/pkg/types"
)

type orderItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"required,gt=0"`
	Qty       int     `json:"qty" validate:"required,gt=0"`
	Image     string  `json:"image"`
}

type shippingAddressRequest struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	District   string `json:"district"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
}

type createOrderRequest struct {
	Items         []orderItemRequest      `json:"items" validate:"required,min=1,dive"`
	Address       *shippingAddressRequest `json:"address"`
	PaymentMethod string                  `json:"paymentMethod" validate:"omitempty,oneof=card qr bank-transfer"`
}

// CreateOrder creates an order for the calling user.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Create(r.Context(), userID, toCreateInput(req))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "Order created", order)
	}
}

// GetOrder returns one order by its public id.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.GetByOrderID(r.Context(), chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "", order)
	}
}

// MyOrders lists the calling user's orders, newest first.
func MyOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "", list)
	}
}

// UnpaidOrders lists the calling user's orders still awaiting payment.
func UnpaidOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListUnpaid(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "", list)
	}
}

// DeleteOrder removes the calling user's own unpaid order.
func DeleteOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), userID, chi.URLParam(r, "orderID")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Order deleted", nil)
	}
}

// ConfirmOrderPayment flags the buyer's claim that the transfer was made.
func ConfirmOrderPayment(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ConfirmPaymentIntent(r.Context(), userID, chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment confirmation noted", order)
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "missing user identity")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed user identity")
	}
	return userID, nil
}

func toCreateInput(req createOrderRequest) orders.CreateOrderInput {
	input := orders.CreateOrderInput{
		PaymentMethod: enums.PaymentMethod(req.PaymentMethod),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, types.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Qty:       item.Qty,
			Image:     item.Image,
		})
	}
	if req.Address != nil {
		input.Address = &types.ShippingAddress{
			FullName:   req.Address.FullName,
			Phone:      req.Address.Phone,
			Address:    req.Address.Address,
			District:   req.Address.District,
			Province:   req.Address.Province,
			PostalCode: req.Address.PostalCode,
		}
	}
	return input
}
