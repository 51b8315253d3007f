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

type PortalConnection struct {
	ID                  string
	UserID              string
	PortalType          string
	PortalUrl           string
	LoginID             string
	CredentialToken     string
	IsActive            int64
	AutoSync            int64
	SyncIntervalMinutes int64
	CreatedAt           int64
}

type PortalSnapshot struct {
	ID              int64
	ConnectionID    string
	CreatedAt       int64
	Data            string
	NoticesHash     string
	AssignmentsHash string
}

type SyncStatus struct {
	ConnectionID  string
	LastAttemptAt int64
	LastError     string
}

type UserContact struct {
	UserID string
	Email  string
	Phone  string
}

const createConnection = `
INSERT INTO portal_connections (
    id, user_id, portal_type, portal_url, login_id, credential_token,
    is_active, auto_sync, sync_interval_minutes, created_at
) VALUES (?, ?, ?, ?, ?, ?, 1, 1, ?, ?)
`

type CreateConnectionParams struct {
	ID                  string
	UserID              string
	PortalType          string
	PortalUrl           string
	LoginID             string
	CredentialToken     string
	SyncIntervalMinutes int64
	CreatedAt           int64
}

func (q *Queries) CreateConnection(ctx context.Context, arg CreateConnectionParams) error {
	_, err := q.db.ExecContext(ctx, createConnection,
		arg.ID,
		arg.UserID,
		arg.PortalType,
		arg.PortalUrl,
		arg.LoginID,
		arg.CredentialToken,
		arg.SyncIntervalMinutes,
		arg.CreatedAt,
	)
	return err
}

const getConnection = `
SELECT id, user_id, portal_type, portal_url, login_id, credential_token,
       is_active, auto_sync, sync_interval_minutes, created_at
FROM portal_connections WHERE id = ?
`

func (q *Queries) GetConnection(ctx context.Context, id string) (PortalConnection, error) {
	row := q.db.QueryRowContext(ctx, getConnection, id)
	var c PortalConnection
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.PortalType,
		&c.PortalUrl,
		&c.LoginID,
		&c.CredentialToken,
		&c.IsActive,
		&c.AutoSync,
		&c.SyncIntervalMinutes,
		&c.CreatedAt,
	)
	return c, err
}

const getUserConnections = `
SELECT id, user_id, portal_type, portal_url, login_id, credential_token,
       is_active, auto_sync, sync_interval_minutes, created_at
FROM portal_connections
WHERE user_id = ? AND is_active = 1
ORDER BY created_at DESC
`

func (q *Queries) GetUserConnections(ctx context.Context, userID string) ([]PortalConnection, error) {
	rows, err := q.db.QueryContext(ctx, getUserConnections, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PortalConnection
	for rows.Next() {
		var c PortalConnection
		err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.PortalType,
			&c.PortalUrl,
			&c.LoginID,
			&c.CredentialToken,
			&c.IsActive,
			&c.AutoSync,
			&c.SyncIntervalMinutes,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const getActiveAutoSyncConnections = `
SELECT id, user_id, portal_type, portal_url, login_id, credential_token,
       is_active, auto_sync, sync_interval_minutes, created_at
FROM portal_connections
WHERE is_active = 1 AND auto_sync = 1
ORDER BY created_at
`

func (q *Queries) GetActiveAutoSyncConnections(ctx context.Context) ([]PortalConnection, error) {
	rows, err := q.db.QueryContext(ctx, getActiveAutoSyncConnections)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PortalConnection
	for rows.Next() {
		var c PortalConnection
		err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.PortalType,
			&c.PortalUrl,
			&c.LoginID,
			&c.CredentialToken,
			&c.IsActive,
			&c.AutoSync,
			&c.SyncIntervalMinutes,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const deactivateConnection = `
UPDATE portal_connections SET is_active = 0 WHERE id = ?
`

func (q *Queries) DeactivateConnection(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deactivateConnection, id)
	return err
}

const setAutoSync = `
UPDATE portal_connections SET auto_sync = ? WHERE id = ?
`

type SetAutoSyncParams struct {
	AutoSync int64
	ID       string
}

func (q *Queries) SetAutoSync(ctx context.Context, arg SetAutoSyncParams) error {
	_, err := q.db.ExecContext(ctx, setAutoSync, arg.AutoSync, arg.ID)
	return err
}

const createSnapshot = `
INSERT INTO portal_snapshots (connection_id, created_at, data, notices_hash, assignments_hash)
VALUES (?, ?, ?, ?, ?)
RETURNING id
`

type CreateSnapshotParams struct {
	ConnectionID    string
	CreatedAt       int64
	Data            string
	NoticesHash     string
	AssignmentsHash string
}

func (q *Queries) CreateSnapshot(ctx context.Context, arg CreateSnapshotParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createSnapshot,
		arg.ConnectionID,
		arg.CreatedAt,
		arg.Data,
		arg.NoticesHash,
		arg.AssignmentsHash,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getLatestSnapshot = `
SELECT id, connection_id, created_at, data, notices_hash, assignments_hash
FROM portal_snapshots
WHERE connection_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1
`

func (q *Queries) GetLatestSnapshot(ctx context.Context, connectionID string) (PortalSnapshot, error) {
	row := q.db.QueryRowContext(ctx, getLatestSnapshot, connectionID)
	var s PortalSnapshot
	err := row.Scan(
		&s.ID,
		&s.ConnectionID,
		&s.CreatedAt,
		&s.Data,
		&s.NoticesHash,
		&s.AssignmentsHash,
	)
	return s, err
}

const countSnapshots = `
SELECT COUNT(*) FROM portal_snapshots WHERE connection_id = ?
`

func (q *Queries) CountSnapshots(ctx context.Context, connectionID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countSnapshots, connectionID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const upsertSyncStatus = `
INSERT INTO sync_status (connection_id, last_attempt_at, last_error)
VALUES (?, ?, ?)
ON CONFLICT (connection_id) DO UPDATE SET
    last_attempt_at = excluded.last_attempt_at,
    last_error = excluded.last_error
`

type UpsertSyncStatusParams struct {
	ConnectionID  string
	LastAttemptAt int64
	LastError     string
}

func (q *Queries) UpsertSyncStatus(ctx context.Context, arg UpsertSyncStatusParams) error {
	_, err := q.db.ExecContext(ctx, upsertSyncStatus,
		arg.ConnectionID,
		arg.LastAttemptAt,
		arg.LastError,
	)
	return err
}

const getSyncStatus = `
SELECT connection_id, last_attempt_at, last_error
FROM sync_status WHERE connection_id = ?
`

func (q *Queries) GetSyncStatus(ctx context.Context, connectionID string) (SyncStatus, error) {
	row := q.db.QueryRowContext(ctx, getSyncStatus, connectionID)
	var s SyncStatus
	err := row.Scan(&s.ConnectionID, &s.LastAttemptAt, &s.LastError)
	return s, err
}

const createAuditLog = `
INSERT INTO portal_audit_log (connection_id, action, success, message, created_at)
VALUES (?, ?, ?, ?, ?)
`

type CreateAuditLogParams struct {
	ConnectionID string
	Action       string
	Success      int64
	Message      string
	CreatedAt    int64
}

func (q *Queries) CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) error {
	_, err := q.db.ExecContext(ctx, createAuditLog,
		arg.ConnectionID,
		arg.Action,
		arg.Success,
		arg.Message,
		arg.CreatedAt,
	)
	return err
}

const upsertContact = `
INSERT INTO user_contacts (user_id, email, phone)
VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    email = excluded.email,
    phone = excluded.phone
`

type UpsertContactParams struct {
	UserID string
	Email  string
	Phone  string
}

func (q *Queries) UpsertContact(ctx context.Context, arg UpsertContactParams) error {
	_, err := q.db.ExecContext(ctx, upsertContact, arg.UserID, arg.Email, arg.Phone)
	return err
}

const getContact = `
SELECT user_id, email, phone FROM user_contacts WHERE user_id = ?
`

func (q *Queries) GetContact(ctx context.Context, userID string) (UserContact, error) {
	row := q.db.QueryRowContext(ctx, getContact, userID)
	var c UserContact
	err := row.Scan(&c.UserID, &c.Email, &c.Phone)
	return c, err
}
