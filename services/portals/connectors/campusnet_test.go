package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"portalsync-backend/lib/telemetry"
	"portalsync-backend/services/portals"
	"portalsync-backend/services/portals/automation"

	"github.com/stretchr/testify/require"
)

// fakeCampusNet serves a portal whose login input uses the last
// candidate in the username chain, so a pass through this server proves
// the fallback walk works end to end.
func fakeCampusNet(t *testing.T) *httptest.Server {
	const csrf = "tok-123"

	mux := http.NewServeMux()
	loginPage := fmt.Sprintf(`<html><body>
		<form id="login" method="post" action="/login">
			<input type="hidden" name="csrf_token" value="%s">
			<input name="enrollment_no" type="text">
			<input name="password" type="password">
			<button type="submit">Sign in</button>
		</form>
	</body></html>`, csrf)

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, loginPage)
			return
		}
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("csrf_token") != csrf ||
			r.PostForm.Get("enrollment_no") != "2021A7PS0001" ||
			r.PostForm.Get("password") != "hunter2" {
			fmt.Fprint(w, loginPage)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})

	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div id="attendance"><span class="percentage">87.5%</span></div>
			<div class="notices">
				<div class="notice">
					<span class="title">Holiday on Friday</span>
					<span class="body">Campus closed for the festival.</span>
					<span class="date">02/03/2026</span>
				</div>
			</div>
		</body></html>`)
	})

	mux.HandleFunc("/assignments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<table id="assignments"><tbody>
				<tr data-id="os-3">
					<td class="title">OS Lab 3</td>
					<td class="course">Operating Systems</td>
					<td class="due">10/03/2026 23:59</td>
					<td class="status">Pending</td>
				</tr>
			</tbody></table>
		</body></html>`)
	})

	// no /fees route: section failures must not sink the scrape

	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "bye")
	})

	return httptest.NewServer(mux)
}

func setupCampusNet(t *testing.T) automation.Connector {
	cleanup := telemetry.SetupForTesting(t, "test:connectors/campusnet")
	t.Cleanup(cleanup)

	server := fakeCampusNet(t)
	t.Cleanup(server.Close)

	conn, err := newCampusNet(context.Background(), automation.Env{PortalURL: server.URL})
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestCampusNetLoginFallbackChain(t *testing.T) {
	conn := setupCampusNet(t)

	ok, err := conn.Login(context.Background(), portals.Credentials{
		LoginID:  "2021A7PS0001",
		Password: "hunter2",
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCampusNetLoginRejected(t *testing.T) {
	conn := setupCampusNet(t)

	ok, err := conn.Login(context.Background(), portals.Credentials{
		LoginID:  "2021A7PS0001",
		Password: "wrong",
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCampusNetScrapeToleratesMissingSections(t *testing.T) {
	conn := setupCampusNet(t)
	ctx := context.Background()

	ok, err := conn.Login(ctx, portals.Credentials{LoginID: "2021A7PS0001", Password: "hunter2"})
	require.NoError(t, err)
	require.True(t, ok)

	data, err := conn.Scrape(ctx)
	require.NoError(t, err)

	require.NotNil(t, data.Attendance)
	require.InDelta(t, 87.5, data.Attendance.Percentage, 0.001)

	require.Len(t, data.Notices, 1)
	require.Equal(t, "Holiday on Friday", data.Notices[0].Title)

	require.Len(t, data.Assignments, 1)
	require.Equal(t, "os-3", data.Assignments[0].ID)
	require.Equal(t, portals.AssignmentPending, data.Assignments[0].Status)
	require.Equal(t, 2026, data.Assignments[0].DueDate.Year())

	// fees page is absent on this portal
	require.Nil(t, data.Fees)
}

func TestCampusNetActionsUnsupported(t *testing.T) {
	conn := setupCampusNet(t)

	_, err := conn.Act(context.Background(), "pay_fees", nil)
	require.ErrorIs(t, err, portals.ErrUnsupportedAction)
}
