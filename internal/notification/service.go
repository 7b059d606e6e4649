package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultPushTimeout = 5 * time.Second

// Pusher delivers an event to every live connection in a room.
type Pusher interface {
	EmitToRoom(ctx context.Context, room, event string, payload any, timeout time.Duration) (int, error)
}

// Service records notifications durably and pushes them to live connections.
// The row is the source of truth; the push is best effort.
type Service struct {
	repo        Repository
	pusher      Pusher
	pushTimeout time.Duration
	logger      *slog.Logger

	wg sync.WaitGroup
}

func NewService(repo Repository, pusher Pusher, pushTimeout time.Duration, logger *slog.Logger) *Service {
	if pushTimeout <= 0 {
		pushTimeout = defaultPushTimeout
	}
	return &Service{
		repo:        repo,
		pusher:      pusher,
		pushTimeout: pushTimeout,
		logger:      logger.With("component", "notification"),
	}
}

// Notify inserts the notification synchronously and returns once it is stored.
// The live push runs in the background and never reports back to the caller.
func (s *Service) Notify(ctx context.Context, msg Message) (*Notification, error) {
	n, err := s.repo.Insert(ctx, msg.Recipient.UserID, msg.Type, msg.Text, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("store %s notification: %w", msg.Type, err)
	}

	if s.pusher == nil {
		return n, nil
	}

	room := msg.Recipient.Room()
	pushCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		delivered, err := s.pusher.EmitToRoom(pushCtx, room, string(n.Type), n, s.pushTimeout)
		if err != nil {
			s.logger.Warn("live push failed",
				"room", room,
				"notification_id", n.ID,
				"type", n.Type,
				"err", err,
			)
			return
		}
		s.logger.Debug("live push delivered", "room", room, "connections", delivered, "type", n.Type)
	}()

	return n, nil
}

// Wait blocks until in-flight pushes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	return s.repo.List(ctx, userID, false)
}

func (s *Service) ListUnread(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	return s.repo.List(ctx, userID, true)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// MarkRead flips a single notification; someone else's notification reads as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead returns how many notifications changed. Zero is not an error.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
