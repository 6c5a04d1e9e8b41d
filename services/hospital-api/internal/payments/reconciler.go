package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/db"
)

// Locker takes a cluster-wide lock so one instance reconciles at a time.
type Locker func(ctx context.Context) (release func(), ok bool, err error)

// AdvisoryLocker adapts a Postgres advisory lock to Locker.
func AdvisoryLocker(pool *db.Pool, key int64) Locker {
	return func(ctx context.Context) (func(), bool, error) {
		lock, ok, err := pool.TryAdvisoryLock(ctx, key)
		if err != nil || !ok {
			return nil, ok, err
		}
		return lock.Release, true, nil
	}
}

type ReconcilerConfig struct {
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
}

// Reconciler asks the gateway about checkouts that stayed pending past a grace
// period, so a lost webhook does not leave a paid appointment unpaid.
type Reconciler struct {
	svc    *Service
	lock   Locker
	logger *slog.Logger
	cfg    ReconcilerConfig
}

func NewReconciler(svc *Service, lock Locker, logger *slog.Logger, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{svc: svc, lock: lock, logger: logger, cfg: cfg}
}

func (r *Reconciler) Run(ctx context.Context) {
	if r.svc.gateway == nil {
		r.logger.Warn("payment reconcile disabled: no gateway configured")
		return
	}

	for {
		release, ok, err := r.lock(ctx)
		if err == nil && ok {
			defer release()
			r.logger.Info("payment reconcile: lock acquired")
			break
		}
		if err != nil {
			r.logger.Error("payment reconcile: failed to acquire lock", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.ReconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce processes one batch and returns how many appointments it confirmed.
func (r *Reconciler) ReconcileOnce(ctx context.Context) int {
	pending, err := r.svc.store.PendingCheckouts(ctx, r.svc.now().Add(-r.cfg.Grace), r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("payment reconcile: list pending failed", "err", err)
		return 0
	}

	confirmed := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return confirmed
		}
		st, err := r.svc.gateway.Session(ctx, p.SessionID)
		if err != nil {
			r.logger.Warn("payment reconcile: fetch session failed", "err", err, "appointment_id", p.AppointmentID)
			continue
		}
		switch {
		case st.Paid:
			if _, err := r.svc.settle(ctx, p.AppointmentID, st.PaymentRef); err != nil {
				r.logger.Warn("payment reconcile: confirm failed", "err", err, "appointment_id", p.AppointmentID)
				continue
			}
			confirmed++
		case st.Expired:
			err := r.svc.store.WithTx(ctx, func(tx Tx) error {
				return r.svc.expire(ctx, tx, p.AppointmentID, p.SessionID)
			})
			if err != nil {
				r.logger.Warn("payment reconcile: expire failed", "err", err, "appointment_id", p.AppointmentID)
			}
		}
	}
	if confirmed > 0 {
		r.logger.Info("payment reconcile: confirmed missed payments", "count", confirmed)
	}
	return confirmed
}
