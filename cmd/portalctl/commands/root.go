// Package commands implements the portalctl subcommands. The CLI talks
// to the same sqlite databases as the server, so it works against a
// live deployment or a local checkout alike.
package commands

import (
	"fmt"
	"os"

	"portalsync-backend/lib/browser"
	"portalsync-backend/lib/configutil"
	"portalsync-backend/lib/sqliteutil"
	"portalsync-backend/lib/telemetry"
	"portalsync-backend/services/portals"
	"portalsync-backend/services/portals/automation"
	portaldb "portalsync-backend/services/portals/db"
	"portalsync-backend/services/vault"
	vaultdb "portalsync-backend/services/vault/db"

	"github.com/spf13/cobra"

	_ "portalsync-backend/services/portals/connectors"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Manage portal connections, syncs and snapshots.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

type cliConfig struct {
	Vault struct {
		Database      string `json:"database"`
		EncryptionKey string `json:"encryption_key"`
	} `json:"vault"`
	Portals struct {
		Database string `json:"database"`
	} `json:"portals"`
	Browser    browser.Config    `json:"browser"`
	Automation automation.Config `json:"automation"`
}

// openServices wires a portals.Service straight off the configured
// databases, the same way the server does.
func openServices() (*portals.Service, func(), error) {
	cfg, err := configutil.ReadRecursively[cliConfig]("config.json5")
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	key := cfg.Vault.EncryptionKey
	if key == "" {
		key = vault.InsecureDevKey
	}
	vaultDatabase, err := sqliteutil.OpenDB(vaultdb.Schema, cfg.Vault.Database)
	if err != nil {
		return nil, nil, err
	}
	credentials, err := vault.NewService(vaultDatabase, []byte(key))
	if err != nil {
		return nil, nil, err
	}

	portalDatabase, err := sqliteutil.OpenDB(portaldb.Schema, cfg.Portals.Database)
	if err != nil {
		return nil, nil, err
	}

	chrome := browser.New(cfg.Browser)
	manager := automation.NewManager(chrome, cfg.Automation)
	service := portals.NewService(portalDatabase, credentials, manager)

	cleanup := func() {
		chrome.Stop()
		vaultDatabase.Close()
		portalDatabase.Close()
	}
	return service, cleanup, nil
}
