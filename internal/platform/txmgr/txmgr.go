// Package txmgr wraps units of work in serializable transactions and
// gives callers an explicit conflict-fallback contract instead of
// leaking driver-level serialization errors.
package txmgr

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
)

type Manager struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, baseLog *logger.Logger) *Manager {
	return &Manager{db: db, log: baseLog.With("component", "TransactionManager")}
}

// Execute runs work with REQUIRED semantics: when dbc already carries a
// transaction the work joins it and sees its snapshot; otherwise a new
// serializable transaction is opened and committed around the work.
func (m *Manager) Execute(ctx context.Context, dbc dbctx.Context, work func(dbctx.Context) error) error {
	if dbc.InTransaction() {
		return work(dbc)
	}
	return m.run(ctx, work)
}

// ExecuteWithFallback runs work in its own serializable transaction.
// On a serialization conflict the transaction is rolled back and
// onConflict is invoked exactly once; its result is returned. Any other
// failure rolls back and propagates.
func (m *Manager) ExecuteWithFallback(ctx context.Context, work func(dbctx.Context) error, onConflict func() error) error {
	err := m.run(ctx, work)
	if err != nil && IsSerializationFailure(err) {
		m.log.Warn("serialization conflict, invoking fallback", "error", err)
		return onConflict()
	}
	return err
}

// ExecuteNew runs work with REQUIRES_NEW semantics: always a fresh
// transaction on the root connection, committing or rolling back on its
// own. An ambient serializable transaction will not see its writes
// until that ambient transaction itself commits and takes a new
// snapshot.
func (m *Manager) ExecuteNew(ctx context.Context, work func(dbctx.Context) error) error {
	return m.run(ctx, work)
}

func (m *Manager) run(ctx context.Context, work func(dbctx.Context) error) error {
	fc := func(tx *gorm.DB) error {
		return work(dbctx.Context{Ctx: ctx, Tx: tx})
	}
	if opts := m.txOptions(); opts != nil {
		return m.db.WithContext(ctx).Transaction(fc, opts)
	}
	return m.db.WithContext(ctx).Transaction(fc)
}

func (m *Manager) txOptions() *sql.TxOptions {
	// sqlite transactions are already serializable and its driver
	// rejects explicit isolation levels.
	if m.db.Dialector.Name() == "sqlite" {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

// IsSerializationFailure reports whether err is a write-write or
// snapshot conflict that a retry could resolve.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected.
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
