package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hackgods/booking-platform/internal/auth"
)

type RouterConfig struct {
	Booking       Booking
	Slots         Slots
	Notifications Notifications
	Stats         Stats
	Tokens        *auth.TokenManager
	Live          http.Handler // websocket endpoint; nil disables /ws
	Limiter       *RateLimiter // nil disables rate limiting
	Health        *HealthHandler
	Logger        *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(logger))

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler("", "")
	}
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.Limiter != nil {
		limit = cfg.Limiter.Middleware
	}
	clientOnly := auth.RequireRole(auth.RoleClient)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Tokens))

		if cfg.Live != nil {
			r.Handle("/ws", cfg.Live)
		}

		r.With(clientOnly, limit).Post("/appointments", bookHandler(cfg.Booking, logger))
		r.With(clientOnly).Get("/appointments/me", listClientAppointmentsHandler(cfg.Booking, logger))
		r.With(limit).Post("/appointments/{id}/cancel", cancelHandler(cfg.Booking, logger))
		r.With(clientOnly, limit).Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Booking, logger))

		r.Get("/providers/{id}/slots", listProviderSlotsHandler(cfg.Slots, logger))
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleProvider), requireProviderProfile)
			r.Get("/providers/me/appointments", listProviderAppointmentsHandler(cfg.Booking, logger))
			r.Get("/providers/me/slots", listOwnSlotsHandler(cfg.Slots, logger))
			r.Post("/providers/me/slots", createSlotHandler(cfg.Slots, logger))
			r.Patch("/providers/me/slots/{id}", updateSlotHandler(cfg.Slots, logger))
			r.Delete("/providers/me/slots/{id}", deleteSlotHandler(cfg.Slots, logger))
			r.Get("/providers/me/stats", providerStatsHandler(cfg.Stats, logger))
		})

		r.Get("/notifications", listNotificationsHandler(cfg.Notifications, logger, false))
		r.Get("/notifications/unread", listNotificationsHandler(cfg.Notifications, logger, true))
		r.Get("/notifications/unread/count", unreadCountHandler(cfg.Notifications, logger))
		r.Post("/notifications/read-all", markAllReadHandler(cfg.Notifications, logger))
		r.Post("/notifications/{id}/read", markReadHandler(cfg.Notifications, logger))
	})

	return otelhttp.NewHandler(r, "booking-api")
}
