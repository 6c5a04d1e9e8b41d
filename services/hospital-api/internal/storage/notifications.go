package storage

import (
	"context"

	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/notifications"
)

type NotificationStore struct {
	pool *db.Pool
}

var _ notifications.Store = (*NotificationStore)(nil)

const notificationColumns = `id::text, user_id::text, type, title, message, link, is_read, read_at, created_at`

func scanNotification(row rowScanner) (model.Notification, error) {
	var n model.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	return n, err
}

func (s *NotificationStore) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]model.Notification, int, error) {
	w := &where{}
	w.add("user_id = ?", userID)
	if unreadOnly {
		w.add("is_read = ?", false)
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM notifications`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, missing(err, notifications.ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+notificationColumns+` FROM notifications`+w.String()+
		` ORDER BY is_read ASC, created_at DESC`+w.page(limit, offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	return n, missing(err, notifications.ErrNotFound)
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID, id string) (model.Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = true, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID))
	return n, missing(err, notifications.ErrNotFound)
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET is_read = true, read_at = now() WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, missing(err, notifications.ErrNotFound)
	}
	return int(tag.RowsAffected()), nil
}

func (s *NotificationStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return missing(err, notifications.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotFound
	}
	return nil
}
