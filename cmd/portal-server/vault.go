package main

import (
	"errors"
	"log/slog"

	"portalsync-backend/lib/sqliteutil"
	"portalsync-backend/services/vault"
	"portalsync-backend/services/vault/db"
)

type VaultConfig struct {
	Database string `json:"database"`
	// 32-byte AES key; leave empty in dev to use the insecure default
	EncryptionKey string `json:"encryption_key"`
}

func InitVault(root Config, cfg VaultConfig) (vault.Service, error) {
	key := cfg.EncryptionKey
	if key == "" {
		if root.Environment == "production" {
			return vault.Service{}, errors.New("vault encryption key is required in production")
		}
		slog.Warn("no vault encryption key configured, using the insecure dev key")
		key = vault.InsecureDevKey
	}
	if root.Environment == "production" && key == vault.InsecureDevKey {
		return vault.Service{}, errors.New("refusing to run production with the insecure dev key")
	}

	database, err := sqliteutil.OpenDB(db.Schema, cfg.Database)
	if err != nil {
		return vault.Service{}, err
	}
	return vault.NewService(database, []byte(key))
}
