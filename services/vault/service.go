// Package vault keeps portal passwords encrypted at rest and hands out
// opaque reference tokens. Retrieve exists for the automation layer
// only, nothing user-facing or AI-facing may reach it.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"portalsync-backend/lib/timezone"
	"portalsync-backend/services/vault/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/vault")

// ErrVaultMiss means no credential exists for the given token. The
// owning connection is broken and needs a re-connect.
var ErrVaultMiss = errors.New("credential token not found")

// InsecureDevKey is the documented fallback key for non-production
// environments. Service construction must never see it in production.
const InsecureDevKey = "0123456789abcdef0123456789abcdef"

const KeySize = 32

type Service struct {
	db  *sql.DB
	qry *db.Queries
	key []byte
}

func NewService(database *sql.DB, key []byte) (Service, error) {
	if len(key) != KeySize {
		return Service{}, fmt.Errorf("vault: encryption key must be exactly %d bytes, got %d", KeySize, len(key))
	}
	return Service{
		db:  database,
		qry: db.New(database),
		key: key,
	}, nil
}

// Store encrypts the secret and persists it under the given token.
func (s Service) Store(ctx context.Context, token string, secret string) error {
	ctx, span := tracer.Start(ctx, "Store")
	defer span.End()

	bundle, err := s.Encrypt(secret)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = s.qry.UpsertCredential(ctx, db.UpsertCredentialParams{
		Token:     token,
		Bundle:    bundle,
		CreatedAt: timezone.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Retrieve decrypts the secret stored under token. INTERNAL AUTOMATION
// USE ONLY.
func (s Service) Retrieve(ctx context.Context, token string) (string, error) {
	ctx, span := tracer.Start(ctx, "Retrieve")
	defer span.End()

	bundle, err := s.qry.GetCredential(ctx, token)
	if err == sql.ErrNoRows {
		span.SetStatus(codes.Error, ErrVaultMiss.Error())
		return "", ErrVaultMiss
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	secret, err := s.Decrypt(bundle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return secret, nil
}

// Delete removes the credential for a token. Used when a connection is
// torn down for good.
func (s Service) Delete(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "Delete")
	defer span.End()
	return s.qry.DeleteCredential(ctx, token)
}
