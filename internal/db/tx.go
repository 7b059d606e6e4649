package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/booking-platform/internal/apperr"
)

// Postgres error codes the booking flows care about.
const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
	codeQueryCanceled    = "57014"
	codeDeadlock         = "40P01"
)

var (
	ErrLockTimeout = apperr.New(apperr.Unavailable, "lock_timeout", "resource is busy, please retry shortly")
	ErrTxTimeout   = apperr.New(apperr.Unavailable, "tx_timeout", "operation took too long, please retry")
)

// TxRunner executes booking transactions against the shared pool.
type TxRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	txTimeout   time.Duration
}

func NewTxRunner(pool *pgxpool.Pool, lockTimeout, txTimeout time.Duration) *TxRunner {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	return &TxRunner{pool: pool, lockTimeout: lockTimeout, txTimeout: txTimeout}
}

// Run executes fn inside a single transaction. The transaction is detached from the
// caller's cancellation so a dropped client cannot abandon it halfway; it is bounded
// by the runner's tx timeout instead. Any error from fn rolls everything back.
func (r *TxRunner) Run(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.txTimeout)
	defer cancel()

	err := pgx.BeginFunc(txCtx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(txCtx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeoutSetting(r.lockTimeout)); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
		return fn(txCtx, tx)
	})
	if err != nil && txCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(ErrTxTimeout, err)
	}
	return Classify(err)
}

func lockTimeoutSetting(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%dms", ms)
}

// Classify turns lock contention failures into ErrLockTimeout. Already classified
// errors and everything else pass through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeQueryCanceled, codeDeadlock:
			return apperr.Wrap(ErrLockTimeout, err)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique violation, optionally on a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
