package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"portalsync-backend/lib/telemetry"
	"portalsync-backend/services/portals"

	"github.com/stretchr/testify/require"
)

const testPortal portals.PortalType = "testportal"

// scriptConnector lets a test script every phase and counts lifecycle
// calls so leaks show up as assertion failures.
type scriptConnector struct {
	mu sync.Mutex

	loginOK   bool
	loginErr  error
	scrape    *portals.SnapshotData
	scrapeErr error
	actErr    error
	logoutErr error

	logins  int
	logouts int
	closes  int
}

func (c *scriptConnector) Login(_ context.Context, _ portals.Credentials) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins++
	return c.loginOK, c.loginErr
}

func (c *scriptConnector) Scrape(_ context.Context) (*portals.SnapshotData, error) {
	return c.scrape, c.scrapeErr
}

func (c *scriptConnector) Act(_ context.Context, action string, _ map[string]string) (portals.ActionResult, error) {
	if c.actErr != nil {
		return portals.ActionResult{}, c.actErr
	}
	return portals.ActionResult{Success: true, Message: "did " + action, Timestamp: time.Now()}, nil
}

func (c *scriptConnector) Logout(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return c.logoutErr
}

func (c *scriptConnector) Screenshot(_ context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (c *scriptConnector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

type script struct {
	mu         sync.Mutex
	next       *scriptConnector
	opens      int
	openErr    error
	connectors []*scriptConnector
}

func (s *script) factory(_ context.Context, _ Env) (Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.connectors = append(s.connectors, s.next)
	return s.next, nil
}

var testScript = &script{}

func init() {
	Register(testPortal, testScript.factory)
}

func setupManager(t *testing.T, conn *scriptConnector) *Manager {
	cleanup := telemetry.SetupForTesting(t, "test:automation")
	t.Cleanup(cleanup)

	testScript.mu.Lock()
	testScript.next = conn
	testScript.openErr = nil
	testScript.opens = 0
	testScript.connectors = nil
	testScript.mu.Unlock()

	return NewManager(nil, Config{})
}

func TestSyncSuccessClosesConnector(t *testing.T) {
	conn := &scriptConnector{
		loginOK: true,
		scrape:  &portals.SnapshotData{Notices: []portals.Notice{{Title: "n"}}},
	}
	m := setupManager(t, conn)

	data, err := m.Sync(context.Background(), testPortal, "https://x", portals.Credentials{})
	require.NoError(t, err)
	require.Len(t, data.Notices, 1)
	require.Equal(t, 1, conn.logins)
	require.Equal(t, 1, conn.logouts)
	require.Equal(t, 1, conn.closes)
}

func TestSyncLoginRejectionStillCloses(t *testing.T) {
	conn := &scriptConnector{loginOK: false}
	m := setupManager(t, conn)

	_, err := m.Sync(context.Background(), testPortal, "https://x", portals.Credentials{})
	require.ErrorIs(t, err, portals.ErrLoginFailed)
	require.Equal(t, 1, conn.closes)
	// never logged in, nothing to log out of
	require.Equal(t, 0, conn.logouts)
}

func TestSyncScrapeFailureStillClosesAndLogsOut(t *testing.T) {
	conn := &scriptConnector{loginOK: true, scrapeErr: errors.New("table missing")}
	m := setupManager(t, conn)

	_, err := m.Sync(context.Background(), testPortal, "https://x", portals.Credentials{})
	require.Error(t, err)
	require.Equal(t, 1, conn.logouts)
	require.Equal(t, 1, conn.closes)
}

func TestSyncLogoutFailureDoesNotFailSync(t *testing.T) {
	conn := &scriptConnector{
		loginOK:   true,
		scrape:    &portals.SnapshotData{},
		logoutErr: errors.New("logout button gone"),
	}
	m := setupManager(t, conn)

	_, err := m.Sync(context.Background(), testPortal, "https://x", portals.Credentials{})
	require.NoError(t, err)
	require.Equal(t, 1, conn.closes)
}

func TestSyncTranslatesDeadline(t *testing.T) {
	conn := &scriptConnector{loginOK: true, scrapeErr: context.DeadlineExceeded}
	m := setupManager(t, conn)

	_, err := m.Sync(context.Background(), testPortal, "https://x", portals.Credentials{})
	require.ErrorIs(t, err, portals.ErrTimeout)
	require.Equal(t, 1, conn.closes)
}

func TestSyncTranslatesConnectionRefused(t *testing.T) {
	conn := &scriptConnector{loginErr: errors.New("page load: net::ERR_CONNECTION_REFUSED")}
	m := setupManager(t, conn)

	_, err := m.Sync(context.Background(), testPortal, "https://x", portals.Credentials{})
	require.ErrorIs(t, err, portals.ErrPortalUnreachable)
	require.Equal(t, 1, conn.closes)
}

func TestSyncUnknownPortalType(t *testing.T) {
	m := setupManager(t, &scriptConnector{})
	_, err := m.Sync(context.Background(), portals.PortalType("never-registered"), "https://x", portals.Credentials{})
	require.ErrorIs(t, err, portals.ErrUnsupportedPortalType)
	require.Equal(t, 0, testScript.opens)
}

func TestActSuccess(t *testing.T) {
	conn := &scriptConnector{loginOK: true}
	m := setupManager(t, conn)

	result, err := m.Act(context.Background(), testPortal, "https://x", portals.Credentials{}, "apply_exam", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, conn.closes)
}

func TestActFailureAttachesScreenshot(t *testing.T) {
	conn := &scriptConnector{loginOK: true, actErr: errors.New("submit button missing")}
	m := setupManager(t, conn)

	result, err := m.Act(context.Background(), testPortal, "https://x", portals.Credentials{}, "pay_fees", nil)
	require.Error(t, err)
	require.Equal(t, []byte("png"), result.Screenshot)
	require.Equal(t, 1, conn.closes)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	require.Panics(t, func() {
		Register(testPortal, testScript.factory)
	})
}
