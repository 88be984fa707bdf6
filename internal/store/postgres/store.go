// Package postgres implements market.Store on PostgreSQL via pgx. Row locks
// follow the order league, session, item, team budget.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"leaguebid/internal/market"
)

const maxAttempts = 8

// ErrTxConflict is returned when a transaction keeps losing serialization
// or deadlock races after every retry.
var ErrTxConflict = market.Errorf(market.KindConflict, "transaction conflict, retry")

type Store struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

var _ market.Store = (*Store)(nil)

func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger}
}

// WithTx runs fn in a read-committed transaction. Serialization failures and
// deadlocks are retried with backoff; fn must tolerate being re-run.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx market.Tx) error) error {
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return mapError(err)
		}
		s.log.DebugContext(ctx, "retrying transaction", "attempt", attempt+1, "error", err)
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx market.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// mapError turns constraint violations into market errors. Check violations
// on the budget row mean the ledger let an invalid state through.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return &market.Error{Kind: market.KindConflict, Message: "already exists", Err: err}
	case "23514":
		if pgErr.ConstraintName == "teams_budget_check" {
			return fmt.Errorf("%s: %w", pgErr.Message, market.ErrInvariant)
		}
	case "23503":
		return &market.Error{Kind: market.KindNotFound, Message: "referenced row not found", Err: err}
	}
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func notFound(what, id string) error {
	return market.Errorf(market.KindNotFound, "%s %s not found", what, id)
}

func noRows(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(what, id)
	}
	return err
}
