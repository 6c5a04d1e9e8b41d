package storage

import (
	"context"

	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/audit"
)

type AuditStore struct {
	pool *db.Pool
}

var _ audit.Store = (*AuditStore)(nil)

func (s *AuditStore) Insert(ctx context.Context, e audit.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (action, actor_id, target_type, target_id, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Action, nullable(e.ActorID), e.TargetType, e.TargetID, e.RequestID, e.Metadata)
	return err
}

func (s *AuditStore) List(ctx context.Context, f audit.Filter) ([]audit.Event, int, error) {
	w := &where{}
	if f.Action != "" {
		w.add("action = ?", f.Action)
	}
	if f.ActorID != "" {
		w.add("actor_id::text = ?", f.ActorID)
	}
	if f.TargetType != "" {
		w.add("target_type = ?", f.TargetType)
	}
	if f.TargetID != "" {
		w.add("target_id = ?", f.TargetID)
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM audit_events`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, action, COALESCE(actor_id::text, ''), target_type, target_id, request_id, metadata, created_at
		FROM audit_events`+w.String()+` ORDER BY id DESC`+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []audit.Event{}
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.TargetType, &e.TargetID, &e.RequestID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
