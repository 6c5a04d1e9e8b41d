// Package storage implements the hospital-api repositories on Postgres through pgx.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/outbox"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/payments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/reviews"
)

// Store owns the pool and hands out the per-domain stores. All of them share one
// transaction type so a unit of work can span appointments, payments and reviews.
type Store struct {
	pool   *db.Pool
	events *outbox.Repository
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool, events: outbox.NewRepository(pool)}
}

func (s *Store) Appointments() *AppointmentStore { return &AppointmentStore{s} }

func (s *Store) Payments() *PaymentStore { return &PaymentStore{s} }

func (s *Store) Reviews() *ReviewStore { return &ReviewStore{s} }

func (s *Store) Coupons() *CouponStore { return &CouponStore{pool: s.pool} }

func (s *Store) Catalog() *CatalogStore { return &CatalogStore{pool: s.pool} }

func (s *Store) Users() *UserStore { return &UserStore{pool: s.pool} }

func (s *Store) Medications() *MedicationStore { return &MedicationStore{pool: s.pool} }

func (s *Store) Notifications() *NotificationStore { return &NotificationStore{pool: s.pool} }

func (s *Store) Audit() *AuditStore { return &AuditStore{pool: s.pool} }

// txn is the pgx transaction behind appointments.Tx, payments.Tx and reviews.Tx.
type txn struct {
	tx     pgx.Tx
	events *outbox.Repository
}

func (s *Store) withTx(ctx context.Context, fn func(*txn) error) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&txn{tx: tx, events: s.events})
	})
}

func (t *txn) Emit(ctx context.Context, evt outbox.Event) error {
	return t.events.Insert(ctx, t.tx, evt)
}

var (
	_ appointments.Tx = (*txn)(nil)
	_ payments.Tx     = (*txn)(nil)
	_ reviews.Tx      = (*txn)(nil)
)

type rowScanner interface {
	Scan(dest ...any) error
}

// missing maps "no row" and malformed ids to the caller's not-found sentinel.
func missing(err, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return notFound
	}
	return err
}

// where accumulates AND-ed predicates. Every "?" in one predicate binds the same argument.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page appends LIMIT/OFFSET placeholders to the argument list.
func (w *where) page(limit, offset int) string {
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(search)) + "%"
}

// nullable turns an empty id into SQL NULL.
func nullable(id string) any {
	if id == "" {
		return nil
	}
	return id
}
