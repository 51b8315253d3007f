package main

import (
	"portalsync-backend/lib/browser"
	"portalsync-backend/lib/sqliteutil"
	"portalsync-backend/services/portals"
	"portalsync-backend/services/portals/automation"
	"portalsync-backend/services/portals/db"
	"portalsync-backend/services/vault"
)

type PortalsConfig struct {
	Database string `json:"database"`
}

func InitPortals(cfg PortalsConfig, credentials vault.Service, chrome *browser.Browser, autoCfg automation.Config) (*portals.Service, error) {
	database, err := sqliteutil.OpenDB(db.Schema, cfg.Database)
	if err != nil {
		return nil, err
	}
	manager := automation.NewManager(chrome, autoCfg)
	return portals.NewService(database, credentials, manager), nil
}
