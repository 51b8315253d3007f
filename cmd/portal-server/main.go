package main

import (
	"flag"
	"net/http"

	"portalsync-backend/lib/browser"
	"portalsync-backend/lib/configutil"
	"portalsync-backend/lib/serviceutil"
	"portalsync-backend/services/portals/automation"
	"portalsync-backend/services/reminders"

	_ "portalsync-backend/services/portals/connectors"
)

type Config struct {
	Environment string               `json:"environment"`
	Port        int                  `json:"port"`
	Vault       VaultConfig          `json:"vault"`
	Portals     PortalsConfig        `json:"portals"`
	Browser     browser.Config       `json:"browser"`
	Automation  automation.Config    `json:"automation"`
	Scheduler   reminders.Config     `json:"scheduler"`
	SMTP        reminders.SMTPConfig `json:"smtp"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	chrome := browser.New(cfg.Browser)
	defer chrome.Stop()

	mux := http.NewServeMux()

	vaultService, err := InitVault(cfg, cfg.Vault)
	if err != nil {
		serviceutil.Fatal("init vault", err)
	}
	portalService, err := InitPortals(cfg.Portals, vaultService, chrome, cfg.Automation)
	if err != nil {
		serviceutil.Fatal("init portals", err)
	}
	scheduler, err := InitReminders(ctx, cfg, portalService)
	if err != nil {
		serviceutil.Fatal("init reminders", err)
	}
	defer scheduler.Stop()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	port := cfg.Port
	if port == 0 {
		port = 8000
	}
	go serviceutil.StartHttpServer(port, mux)
	<-ctx.Done()
}
