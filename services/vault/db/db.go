package db

import (
	"context"
	"database/sql"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const upsertCredential = `
INSERT INTO credentials (token, bundle, created_at)
VALUES (?, ?, ?)
ON CONFLICT (token) DO UPDATE SET bundle = excluded.bundle
`

type UpsertCredentialParams struct {
	Token     string
	Bundle    string
	CreatedAt int64
}

func (q *Queries) UpsertCredential(ctx context.Context, arg UpsertCredentialParams) error {
	_, err := q.db.ExecContext(ctx, upsertCredential, arg.Token, arg.Bundle, arg.CreatedAt)
	return err
}

const getCredential = `
SELECT bundle FROM credentials WHERE token = ?
`

func (q *Queries) GetCredential(ctx context.Context, token string) (string, error) {
	row := q.db.QueryRowContext(ctx, getCredential, token)
	var bundle string
	err := row.Scan(&bundle)
	return bundle, err
}

const deleteCredential = `
DELETE FROM credentials WHERE token = ?
`

func (q *Queries) DeleteCredential(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, deleteCredential, token)
	return err
}
