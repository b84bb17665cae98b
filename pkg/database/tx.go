package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("stockwise/database")

type txKey struct{}

// Queryer is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
// Repositories run every statement through it so they work both inside and outside a transaction.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Conn returns the transaction bound to ctx, or the pool when there is none.
func (db *DB) Conn(ctx context.Context) Queryer {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// InTx reports whether ctx carries an open transaction
func InTx(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

// WithinTx executes fn inside a read-committed transaction carried by the context.
// A transaction already present in ctx is reused, so nested calls join the outer unit of work.
// Any error from fn rolls the transaction back.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "db.transaction",
		trace.WithAttributes(attribute.String("db.system", "postgresql")))
	defer span.End()

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := runProtected(txCtx, fn); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		return err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		return &CommitError{Err: err}
	}

	return nil
}

// CommitError signals that every statement succeeded but COMMIT did not.
// The outcome on the server is unknown.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("failed to commit transaction: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// runProtected converts a panic in fn into an error so the transaction is rolled back.
func runProtected(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()
	return fn(ctx)
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
