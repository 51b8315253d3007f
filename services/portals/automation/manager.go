// Package automation owns the browser lifecycle around portal
// connectors: open a session, log in, do the work, always tear down.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"portalsync-backend/lib/browser"
	"portalsync-backend/services/portals"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/portals/automation")

// Env is what a connector factory gets to build from.
type Env struct {
	Browser   *browser.Browser
	PortalURL string
}

// Connector drives one portal for the lifetime of one session. A
// connector is not safe for concurrent use; the manager gives each
// sync its own instance.
type Connector interface {
	Login(ctx context.Context, creds portals.Credentials) (bool, error)
	Scrape(ctx context.Context) (*portals.SnapshotData, error)
	Act(ctx context.Context, action string, params map[string]string) (portals.ActionResult, error)
	Logout(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close()
}

type Factory func(ctx context.Context, env Env) (Connector, error)

var (
	registryMu sync.RWMutex
	registry   = map[portals.PortalType]Factory{}
)

// Register installs a connector factory for a portal type. Connector
// packages call this from init.
func Register(typ portals.PortalType, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[typ]; ok {
		panic(fmt.Sprintf("duplicate connector registration for %q", typ))
	}
	registry[typ] = factory
}

func lookup(typ portals.PortalType) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", portals.ErrUnsupportedPortalType, typ)
	}
	return factory, nil
}

type Config struct {
	LoginTimeout  time.Duration `json:"login_timeout"`
	ScrapeTimeout time.Duration `json:"scrape_timeout"`
	ActionTimeout time.Duration `json:"action_timeout"`
}

func (c Config) withDefaults() Config {
	if c.LoginTimeout == 0 {
		c.LoginTimeout = 45 * time.Second
	}
	if c.ScrapeTimeout == 0 {
		c.ScrapeTimeout = 2 * time.Minute
	}
	if c.ActionTimeout == 0 {
		c.ActionTimeout = 90 * time.Second
	}
	return c
}

// Manager satisfies the sync engine's automation boundary. It holds the
// shared browser and enforces per-phase timeouts around connectors.
type Manager struct {
	browser *browser.Browser
	cfg     Config
}

func NewManager(b *browser.Browser, cfg Config) *Manager {
	return &Manager{browser: b, cfg: cfg.withDefaults()}
}

func (m *Manager) Sync(ctx context.Context, typ portals.PortalType, portalURL string, creds portals.Credentials) (*portals.SnapshotData, error) {
	ctx, span := tracer.Start(ctx, "automation.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("portal_type", string(typ)))

	conn, err := m.open(ctx, typ, portalURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer conn.Close()

	err = m.login(ctx, conn, creds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer m.logout(ctx, conn, typ)

	scrapeCtx, cancel := context.WithTimeout(ctx, m.cfg.ScrapeTimeout)
	defer cancel()
	data, err := conn.Scrape(scrapeCtx)
	if err != nil {
		err = translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return data, nil
}

func (m *Manager) Act(ctx context.Context, typ portals.PortalType, portalURL string, creds portals.Credentials, action string, params map[string]string) (portals.ActionResult, error) {
	ctx, span := tracer.Start(ctx, "automation.Act")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal_type", string(typ)),
		attribute.String("action", action),
	)

	conn, err := m.open(ctx, typ, portalURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return portals.ActionResult{}, err
	}
	defer conn.Close()

	err = m.login(ctx, conn, creds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return portals.ActionResult{}, err
	}
	defer m.logout(ctx, conn, typ)

	actCtx, cancel := context.WithTimeout(ctx, m.cfg.ActionTimeout)
	defer cancel()
	result, err := conn.Act(actCtx, action, params)
	if err != nil {
		err = translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// an audit screenshot of the failed page helps debugging, so
		// try before the deferred teardown
		if shot, shotErr := conn.Screenshot(ctx); shotErr == nil {
			result.Screenshot = shot
		}
		return result, err
	}
	return result, nil
}

func (m *Manager) open(ctx context.Context, typ portals.PortalType, portalURL string) (Connector, error) {
	factory, err := lookup(typ)
	if err != nil {
		return nil, err
	}
	conn, err := factory(ctx, Env{Browser: m.browser, PortalURL: portalURL})
	if err != nil {
		return nil, translate(err)
	}
	return conn, nil
}

func (m *Manager) login(ctx context.Context, conn Connector, creds portals.Credentials) error {
	loginCtx, cancel := context.WithTimeout(ctx, m.cfg.LoginTimeout)
	defer cancel()

	ok, err := conn.Login(loginCtx, creds)
	if err != nil {
		return translate(err)
	}
	if !ok {
		return portals.ErrLoginFailed
	}
	return nil
}

// logout is best effort, a portal that hangs on logout must not fail
// the sync that already has its data.
func (m *Manager) logout(ctx context.Context, conn Connector, typ portals.PortalType) {
	logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := conn.Logout(logoutCtx)
	if err != nil {
		slog.WarnContext(ctx, "portal logout failed", "portal_type", typ, "err", err)
	}
}

// translate maps raw browser and network errors onto the automation
// error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, portals.ErrLoginFailed),
		errors.Is(err, portals.ErrTimeout),
		errors.Is(err, portals.ErrPortalUnreachable),
		errors.Is(err, portals.ErrUnsupportedAction),
		errors.Is(err, portals.ErrUnsupportedPortalType):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", portals.ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", portals.ErrTimeout, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "net::ERR_CONNECTION"),
		strings.Contains(msg, "net::ERR_NAME_NOT_RESOLVED"):
		return fmt.Errorf("%w: %v", portals.ErrPortalUnreachable, err)
	}
	return err
}
