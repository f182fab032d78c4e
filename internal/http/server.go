package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler, adminToken string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", handler.GetCart)
		r.Post("/lines", handler.AddLine)
		r.Delete("/lines/{lineId}", handler.RemoveLine)
		r.Put("/transport", handler.ChooseTransport)
		r.Post("/checkout", handler.Checkout)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", handler.ListOrders)
		r.Get("/{number}", handler.GetOrder)
		r.Post("/{number}/pay", handler.StartPayment)
		r.Post("/{number}/cancel", handler.CancelOrder)
		r.Get("/{number}/status/ws", handler.StatusStream)
	})

	r.Post("/payments/webhook", handler.PaymentWebhook)

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly(adminToken))
		r.Get("/workers", handler.Workers)
		r.Post("/orders/{number}/manual-payment", handler.ManualPayment)
	})

	return &Server{Router: r}
}
