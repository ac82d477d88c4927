// Package repositories implements the PostgreSQL data access layer. Every repository can be
// rebound to a transaction with WithTx so that a service can span several repositories in
// one unit of work.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

var (
	_ DBTX = (*sqlx.DB)(nil)
	_ DBTX = (*sqlx.Tx)(nil)
)

// Pagination bounds shared by list queries
const (
	DefaultPageSize = 15
	MaxPageSize     = 100
)

// ClampPage normalises a 1-based page and page size into limit/offset.
func ClampPage(page, perPage int) (limit, offset int) {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}
