package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/auth"
	"github.com/hackgods/booking-platform/internal/notification"
	"github.com/hackgods/booking-platform/internal/stats"
)

type Notifications interface {
	List(ctx context.Context, userID uuid.UUID) ([]notification.Notification, error)
	ListUnread(ctx context.Context, userID uuid.UUID) ([]notification.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) (*notification.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type Stats interface {
	ProviderStats(ctx context.Context, providerID uuid.UUID) (*stats.Snapshot, error)
}

func listNotificationsHandler(svc Notifications, logger *slog.Logger, unreadOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		list := svc.List
		if unreadOnly {
			list = svc.ListUnread
		}
		items, err := list(r.Context(), actor.UserID)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		if items == nil {
			items = []notification.Notification{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func unreadCountHandler(svc Notifications, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		n, err := svc.UnreadCount(r.Context(), actor.UserID)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: int64(n)})
	}
}

func markReadHandler(svc Notifications, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		id, ok := uuidParam(w, r, "id", "invalid_notification_id")
		if !ok {
			return
		}
		n, err := svc.MarkRead(r.Context(), actor.UserID, id)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func markAllReadHandler(svc Notifications, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		n, err := svc.MarkAllRead(r.Context(), actor.UserID)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}

func providerStatsHandler(svc Stats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		snap, err := svc.ProviderStats(r.Context(), actor.ProviderID)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
