package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/medibook/libs/db"
)

// Notification is an inbox row owned by UserID.
type Notification struct {
	UserID        string
	Type          string
	Title         string
	Message       string
	Link          string
	SourceEventID string
}

// Contact is how a user can be reached outside the app.
type Contact struct {
	Name  string
	Email string
	Phone string
}

type Delivery struct {
	NotificationID string
	Channel        string
	Recipient      string
	Status         string
	Error          string
}

var ErrUserNotFound = errors.New("user not found")

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes n once per (source event, user). It reports false when the row already existed
// and returns ErrUserNotFound when the recipient no longer exists.
func (r *Repository) Insert(ctx context.Context, n Notification) (string, bool, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, type, title, message, link, source_event_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (source_event_id, user_id) DO NOTHING
		RETURNING id
	`, n.UserID, n.Type, n.Title, n.Message, n.Link, n.SourceEventID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return "", false, ErrUserNotFound
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (r *Repository) Contact(ctx context.Context, userID string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT name, email, phone FROM users WHERE id = $1
	`, userID).Scan(&c.Name, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrUserNotFound
	}
	return c, err
}

func (r *Repository) RecordDelivery(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries (notification_id, channel, recipient, status, error)
		VALUES ($1, $2, $3, $4, $5)
	`, d.NotificationID, d.Channel, d.Recipient, d.Status, d.Error)
	return err
}
