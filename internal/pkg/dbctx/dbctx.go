package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos fall back to their own *gorm.DB handle when Tx is nil, so a
// Context without a transaction means "run each statement on its own".
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// New returns a Context with no ambient transaction.
func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// WithTx returns a copy of the Context bound to tx.
func (c Context) WithTx(tx *gorm.DB) Context {
	return Context{Ctx: c.Ctx, Tx: tx}
}

// InTransaction reports whether an ambient transaction is attached.
func (c Context) InTransaction() bool {
	return c.Tx != nil
}
