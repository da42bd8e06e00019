package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hearthhq/hearth/internal/booking"
	"github.com/hearthhq/hearth/internal/middleware"
	"github.com/hearthhq/hearth/internal/redis"
	"github.com/hearthhq/hearth/internal/server"
	"github.com/hearthhq/hearth/internal/webhook"
)

type Handlers struct {
	Booking *booking.Handler
	Webhook *webhook.Handler
}

func NewRouter(s *server.Server, redisClient *redis.Client, h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	mw := middleware.NewMiddlewares(s, redisClient)

	// Apply middleware in order
	r.Use(middleware.RequestID)
	r.Use(mw.Tracing.NewRelicMiddleware())
	r.Use(mw.Tracing.EnhanceTracing)
	r.Use(mw.ContextEnhancer.EnhanceContext)
	r.Use(mw.Global.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Db.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Gateway callbacks are authenticated by signature, not rate limited.
	r.Post("/webhooks/payments", h.Webhook.HandlePaymentWebhook)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimiter.Limit)

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.Booking.CreateBooking)
			r.Get("/{id}", h.Booking.GetBooking)
			r.Post("/{id}/confirm", h.Booking.ConfirmBooking)
			r.Post("/{id}/decline", h.Booking.DeclineBooking)
			r.Post("/{id}/cancel", h.Booking.CancelBooking)
		})
	})

	return r
}
