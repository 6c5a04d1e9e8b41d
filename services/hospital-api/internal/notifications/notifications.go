// Package notifications serves a user's in-app inbox. Rows are written by the
// notification-service from appointment events.
package notifications

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

var ErrNotFound = errors.New("notification not found")

// Store scopes every call to the owning user; another user's id reads as ErrNotFound.
type Store interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]model.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) (model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, id string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns unread notifications first, newest first within each group.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]model.Notification, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.List(ctx, userID, unreadOnly, limit, max(offset, 0))
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) (model.Notification, error) {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}
