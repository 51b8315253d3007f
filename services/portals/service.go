// Package portals holds the portal connection model and the sync
// engine: it turns raw scrapes into versioned, hashed snapshots and
// detects meaningful change between consecutive syncs.
package portals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"portalsync-backend/lib/timezone"
	"portalsync-backend/services/portals/db"
	"portalsync-backend/services/vault"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("services/portals")

var ErrConnectionNotFound = errors.New("portal connection not found")
var ErrNoSnapshot = errors.New("no snapshot for connection yet")

const defaultSyncInterval = 15 * time.Minute

// CredentialSource is the vault boundary the sync engine consults.
// Secrets retrieved here go straight into the automation layer and
// nowhere else.
type CredentialSource interface {
	Store(ctx context.Context, token string, secret string) error
	Retrieve(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// Automation is the session-manager boundary: drive a browser (or HTTP
// scraper) against one portal and come back with data.
type Automation interface {
	Sync(ctx context.Context, typ PortalType, portalURL string, creds Credentials) (*SnapshotData, error)
	Act(ctx context.Context, typ PortalType, portalURL string, creds Credentials, action string, params map[string]string) (ActionResult, error)
}

// ChangeHandler receives deltas for downstream collaborators (the
// notification dispatcher and the AI insight generator live behind
// this).
type ChangeHandler interface {
	HandleChange(ctx context.Context, conn Connection, snap Snapshot, delta Delta)
}

type noopChangeHandler struct{}

func (noopChangeHandler) HandleChange(context.Context, Connection, Snapshot, Delta) {}

type Service struct {
	db       *sql.DB
	qry      *db.Queries
	creds    CredentialSource
	auto     Automation
	onChange ChangeHandler

	// serializes concurrent syncs per connection so two overlapping
	// calls cannot interleave snapshots
	flight singleflight.Group
}

type Option func(*Service)

func WithChangeHandler(h ChangeHandler) Option {
	return func(s *Service) { s.onChange = h }
}

func NewService(database *sql.DB, creds CredentialSource, auto Automation, opts ...Option) *Service {
	s := &Service{
		db:       database,
		qry:      db.New(database),
		creds:    creds,
		auto:     auto,
		onChange: noopChangeHandler{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect stores the secret in the vault and creates the connection
// row. Only the opaque token ends up next to the login id.
func (s *Service) Connect(ctx context.Context, userID string, typ PortalType, portalURL, loginID, secret string) (string, error) {
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()
	span.SetAttributes(attribute.String("portal_type", string(typ)))

	if _, err := ParsePortalType(string(typ)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	token, err := vault.IssueToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	err = s.creds.Store(ctx, token, secret)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	id := uuid.NewString()
	err = s.qry.CreateConnection(ctx, db.CreateConnectionParams{
		ID:                  id,
		UserID:              userID,
		PortalType:          string(typ),
		PortalUrl:           portalURL,
		LoginID:             loginID,
		CredentialToken:     token,
		SyncIntervalMinutes: int64(defaultSyncInterval / time.Minute),
		CreatedAt:           timezone.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	slog.InfoContext(ctx, "portal connected", "connection", id, "portal_type", typ)
	return id, nil
}

func (s *Service) Connection(ctx context.Context, id string) (Connection, error) {
	row, err := s.qry.GetConnection(ctx, id)
	if err == sql.ErrNoRows {
		return Connection{}, ErrConnectionNotFound
	}
	if err != nil {
		return Connection{}, err
	}
	return connectionFromRow(row), nil
}

func (s *Service) Connections(ctx context.Context, userID string) ([]Connection, error) {
	rows, err := s.qry.GetUserConnections(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Connection, len(rows))
	for i, row := range rows {
		out[i] = connectionFromRow(row)
	}
	return out, nil
}

// ActiveAutoSyncConnections lists every connection the schedulers
// should be driving.
func (s *Service) ActiveAutoSyncConnections(ctx context.Context) ([]Connection, error) {
	rows, err := s.qry.GetActiveAutoSyncConnections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Connection, len(rows))
	for i, row := range rows {
		out[i] = connectionFromRow(row)
	}
	return out, nil
}

// Deactivate is a logical delete, the row and its snapshot history
// stay. The vaulted secret does not; reconnecting issues a new token.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Deactivate")
	defer span.End()

	conn, err := s.Connection(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = s.qry.DeactivateConnection(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = s.creds.Delete(ctx, conn.CredentialToken)
	if err != nil {
		slog.WarnContext(ctx, "failed to delete vaulted credential", "connection", id, "err", err)
	}
	return nil
}

func (s *Service) SetAutoSync(ctx context.Context, id string, enabled bool) error {
	auto := int64(0)
	if enabled {
		auto = 1
	}
	return s.qry.SetAutoSync(ctx, db.SetAutoSyncParams{ID: id, AutoSync: auto})
}

func (s *Service) SetContact(ctx context.Context, userID, email, phone string) error {
	return s.qry.UpsertContact(ctx, db.UpsertContactParams{
		UserID: userID,
		Email:  email,
		Phone:  phone,
	})
}

func (s *Service) Contact(ctx context.Context, userID string) (Contact, error) {
	row, err := s.qry.GetContact(ctx, userID)
	if err == sql.ErrNoRows {
		return Contact{UserID: userID}, nil
	}
	if err != nil {
		return Contact{}, err
	}
	return Contact{UserID: row.UserID, Email: row.Email, Phone: row.Phone}, nil
}

// Sync drives a fresh scrape for the connection and appends a snapshot.
// Concurrent calls for the same connection share one flight.
func (s *Service) Sync(ctx context.Context, connectionID string) (SyncResult, error) {
	out, err, _ := s.flight.Do(connectionID, func() (interface{}, error) {
		return s.syncOnce(ctx, connectionID)
	})
	if err != nil {
		return SyncResult{}, err
	}
	return out.(SyncResult), nil
}

func (s *Service) syncOnce(ctx context.Context, connectionID string) (SyncResult, error) {
	ctx, span := tracer.Start(ctx, "Sync")
	defer span.End()
	span.SetAttributes(attribute.String("connection", connectionID))

	conn, err := s.Connection(ctx, connectionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return SyncResult{}, err
	}
	if !conn.Active {
		err := fmt.Errorf("%w: connection is deactivated", ErrConnectionNotFound)
		span.SetStatus(codes.Error, err.Error())
		return SyncResult{}, err
	}

	secret, err := s.creds.Retrieve(ctx, conn.CredentialToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.recordSyncFailure(ctx, connectionID, err)
		return SyncResult{}, err
	}
	creds := Credentials{LoginID: conn.LoginID, Password: secret}

	// one retry for transient failures only; a login rejection must
	// not hammer the portal with the same password
	var data *SnapshotData
	backoff := retry.WithMaxRetries(1, retry.NewFibonacci(2*time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var scrapeErr error
		data, scrapeErr = s.auto.Sync(ctx, conn.Type, conn.URL, creds)
		if scrapeErr == nil {
			return nil
		}
		if retryable(scrapeErr) {
			slog.WarnContext(ctx, "transient sync failure, retrying",
				"connection", connectionID, "err", scrapeErr)
			return retry.RetryableError(scrapeErr)
		}
		return scrapeErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.recordSyncFailure(ctx, connectionID, err)
		// no fabricated placeholder data: the failure is explicit and
		// the previous snapshot will surface as stale
		return SyncResult{}, err
	}

	result, err := s.persistSnapshot(ctx, conn, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SyncResult{}, err
	}

	if result.Changed {
		s.onChange.HandleChange(ctx, conn, result.Snapshot, result.Delta)
	}
	return result, nil
}

func (s *Service) persistSnapshot(ctx context.Context, conn Connection, data *SnapshotData) (SyncResult, error) {
	now := timezone.Now()

	noticesHash := NoticesHash(data.Notices)
	assignmentsHash := AssignmentsHash(data.Assignments)

	var prev *Snapshot
	prevRow, err := s.qry.GetLatestSnapshot(ctx, conn.ID)
	if err != nil && err != sql.ErrNoRows {
		return SyncResult{}, err
	}
	if err == nil {
		decoded, err := snapshotFromRow(prevRow)
		if err != nil {
			return SyncResult{}, err
		}
		prev = &decoded
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return SyncResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	id, err := txqry.CreateSnapshot(ctx, db.CreateSnapshotParams{
		ConnectionID:    conn.ID,
		CreatedAt:       now.Unix(),
		Data:            string(raw),
		NoticesHash:     noticesHash,
		AssignmentsHash: assignmentsHash,
	})
	if err != nil {
		return SyncResult{}, err
	}
	err = txqry.UpsertSyncStatus(ctx, db.UpsertSyncStatusParams{
		ConnectionID:  conn.ID,
		LastAttemptAt: now.Unix(),
		LastError:     "",
	})
	if err != nil {
		return SyncResult{}, err
	}
	err = tx.Commit()
	if err != nil {
		return SyncResult{}, err
	}

	snap := Snapshot{
		ID:              id,
		ConnectionID:    conn.ID,
		CreatedAt:       now,
		Data:            *data,
		NoticesHash:     noticesHash,
		AssignmentsHash: assignmentsHash,
	}

	changed := prev == nil ||
		prev.NoticesHash != noticesHash ||
		prev.AssignmentsHash != assignmentsHash

	var delta Delta
	if changed {
		var prevData *SnapshotData
		if prev != nil {
			prevData = &prev.Data
		}
		delta = ComputeDelta(prevData, data, now)
	}

	slog.InfoContext(ctx, "snapshot persisted",
		"connection", conn.ID,
		"snapshot", id,
		"changed", changed,
	)
	return SyncResult{Snapshot: snap, Changed: changed, Delta: delta}, nil
}

func (s *Service) recordSyncFailure(ctx context.Context, connectionID string, cause error) {
	err := s.qry.UpsertSyncStatus(ctx, db.UpsertSyncStatusParams{
		ConnectionID:  connectionID,
		LastAttemptAt: timezone.Now().Unix(),
		LastError:     UserMessage(cause),
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to record sync failure", "connection", connectionID, "err", err)
	}
}

// GetLatestSnapshot returns the newest snapshot for a connection. Stale
// is set when a later sync attempt failed, so callers know the data may
// lag the portal.
func (s *Service) GetLatestSnapshot(ctx context.Context, connectionID string) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "GetLatestSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("connection", connectionID))

	if _, err := s.Connection(ctx, connectionID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Snapshot{}, err
	}

	row, err := s.qry.GetLatestSnapshot(ctx, connectionID)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Snapshot{}, err
	}
	snap, err := snapshotFromRow(row)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Snapshot{}, err
	}

	status, err := s.qry.GetSyncStatus(ctx, connectionID)
	if err == nil && status.LastError != "" && status.LastAttemptAt >= row.CreatedAt {
		snap.Stale = true
	}
	return snap, nil
}

// SnapshotCount reports how deep a connection's history runs.
func (s *Service) SnapshotCount(ctx context.Context, connectionID string) (int64, error) {
	return s.qry.CountSnapshots(ctx, connectionID)
}

// PerformAction dispatches an action through the automation layer and
// records it to the audit log.
func (s *Service) PerformAction(ctx context.Context, connectionID, action string, params map[string]string) (ActionResult, error) {
	ctx, span := tracer.Start(ctx, "PerformAction")
	defer span.End()
	span.SetAttributes(
		attribute.String("connection", connectionID),
		attribute.String("action", action),
	)

	conn, err := s.Connection(ctx, connectionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ActionResult{}, err
	}
	secret, err := s.creds.Retrieve(ctx, conn.CredentialToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ActionResult{}, err
	}

	result, err := s.auto.Act(ctx, conn.Type, conn.URL, Credentials{
		LoginID:  conn.LoginID,
		Password: secret,
	}, action, params)

	success := int64(0)
	message := ""
	if err != nil {
		message = UserMessage(err)
	} else {
		message = result.Message
		if result.Success {
			success = 1
		}
	}
	auditErr := s.qry.CreateAuditLog(ctx, db.CreateAuditLogParams{
		ConnectionID: connectionID,
		Action:       action,
		Success:      success,
		Message:      message,
		CreatedAt:    timezone.Now().Unix(),
	})
	if auditErr != nil {
		slog.WarnContext(ctx, "failed to write audit log", "connection", connectionID, "err", auditErr)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ActionResult{}, err
	}
	return result, nil
}

// ReviewSubmission checks an assignment from the latest snapshot
// against the clock before a caller attempts submit_assignment.
func (s *Service) ReviewSubmission(ctx context.Context, connectionID, assignmentID string) (SubmissionReview, error) {
	snap, err := s.GetLatestSnapshot(ctx, connectionID)
	if err != nil {
		return SubmissionReview{}, err
	}
	for _, a := range snap.Data.Assignments {
		if a.ID == assignmentID {
			return ReviewSubmission(a, timezone.Now()), nil
		}
	}
	return SubmissionReview{}, fmt.Errorf("assignment %q not found in latest snapshot", assignmentID)
}

func connectionFromRow(row db.PortalConnection) Connection {
	return Connection{
		ID:              row.ID,
		UserID:          row.UserID,
		Type:            PortalType(row.PortalType),
		URL:             row.PortalUrl,
		LoginID:         row.LoginID,
		CredentialToken: row.CredentialToken,
		Active:          row.IsActive == 1,
		AutoSync:        row.AutoSync == 1,
		SyncInterval:    time.Duration(row.SyncIntervalMinutes) * time.Minute,
		CreatedAt:       time.Unix(row.CreatedAt, 0).In(timezone.Location),
	}
}

func snapshotFromRow(row db.PortalSnapshot) (Snapshot, error) {
	var data SnapshotData
	err := json.Unmarshal([]byte(row.Data), &data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %d: %w", row.ID, err)
	}
	return Snapshot{
		ID:              row.ID,
		ConnectionID:    row.ConnectionID,
		CreatedAt:       time.Unix(row.CreatedAt, 0).In(timezone.Location),
		Data:            data,
		NoticesHash:     row.NoticesHash,
		AssignmentsHash: row.AssignmentsHash,
	}, nil
}
