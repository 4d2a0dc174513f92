package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptshop/backend/api/controllers"
	"github.com/promptshop/backend/api/middleware"
	"github.com/promptshop/backend/internal/orders"
	"github.com/promptshop/backend/internal/payments"
	"github.com/promptshop/backend/pkg/config"
	"github.com/promptshop/backend/pkg/logger"
)

// RouterParams bundle everything the HTTP surface needs.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Orders   orders.Service
	Payments payments.Service

	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
		middleware.UserContext(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	if params.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", controllers.CreateOrder(params.Orders, logg))
		r.Get("/my-orders", controllers.MyOrders(params.Orders, logg))
		r.Get("/unpaid/list", controllers.UnpaidOrders(params.Orders, logg))
		r.Get("/{orderID}", controllers.GetOrder(params.Orders, logg))
		r.Delete("/{orderID}", controllers.DeleteOrder(params.Orders, logg))
		r.Patch("/{orderID}/confirm-payment", controllers.ConfirmOrderPayment(params.Orders, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/generate-qr", controllers.GenerateQR(params.Payments, logg))
		r.Post("/generate-bill-qr", controllers.GenerateBillQR(params.Payments, logg))
		r.Get("/status/{orderID}", controllers.PaymentStatus(params.Payments, logg))
		r.Post("/confirm", controllers.ConfirmPayment(params.Payments, logg))
		r.Post("/cancel/{orderID}", controllers.CancelPayment(params.Payments, logg))
		r.Post("/verify-slip", controllers.VerifySlip(params.Payments, logg))
		r.Post("/verify-slip-upload", controllers.VerifySlipUpload(params.Payments, logg))
	})

	return r
}
