package connectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"portalsync-backend/lib/locator"
	"portalsync-backend/lib/telemetry"
	"portalsync-backend/services/portals"
	"portalsync-backend/services/portals/automation"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

func init() {
	automation.Register(portals.PortalTypeCampusNet, newCampusNet)
}

// campusnet is a plain server-rendered portal with no javascript login
// wall, so this connector skips the browser entirely and drives it over
// HTTP. It sits behind cloudflare, hence the bypass transport.
var (
	campusLoginForm = locator.Chain{Name: "login form", Candidates: []string{
		"form#login",
		"form[action*='login']",
		"form[method='post']",
	}}
	campusUsernameInput = locator.Chain{Name: "username input", Candidates: []string{
		"input[name='username']",
		"input[name='user_id']",
		"input[name='enrollment_no']",
	}}
	campusNoticeRows = locator.Chain{Name: "notice rows", Candidates: []string{
		".notices .notice",
		"#notice-board li",
		"table.notices tbody tr",
	}}
	campusAssignmentRows = locator.Chain{Name: "assignment rows", Candidates: []string{
		"#assignments tbody tr",
		"table.assignments tbody tr",
		".assignment-list .item",
	}}
	campusAttendanceCell = locator.Chain{Name: "attendance cell", Candidates: []string{
		"#attendance .percentage",
		"td.attendance-percent",
	}}
	campusFeesSection = locator.Chain{Name: "fees section", Candidates: []string{
		"#fees",
		"table.fee-summary",
	}}
)

type campusNetConnector struct {
	http    *resty.Client
	baseURL *url.URL
}

func newCampusNet(ctx context.Context, env automation.Env) (automation.Connector, error) {
	baseURL, err := url.Parse(env.PortalURL)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(env.PortalURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseURL.Hostname()))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	telemetry.InstrumentResty(client, "connectors/campusnet/http")

	return &campusNetConnector{http: client, baseURL: baseURL}, nil
}

func (c *campusNetConnector) Close() {}

func (c *campusNetConnector) Login(ctx context.Context, creds portals.Credentials) (bool, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get("/login")
	if err != nil {
		return false, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return false, err
	}

	form, _, ok := campusLoginForm.MatchDoc(doc)
	if !ok {
		return false, fmt.Errorf("login form: %w", locator.ErrNoMatch)
	}
	userInput, _, ok := campusUsernameInput.MatchSelection(form)
	if !ok {
		return false, fmt.Errorf("username input: %w", locator.ErrNoMatch)
	}
	userField := userInput.AttrOr("name", "username")

	values := url.Values{
		userField:  {creds.LoginID},
		"password": {creds.Password},
	}
	// carry every hidden field through, the csrf token lives in one
	form.Find("input[type='hidden']").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name != "" {
			values.Set(name, input.AttrOr("value", ""))
		}
	})

	action := form.AttrOr("action", "/login")
	res, err = c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(values.Encode()).
		Post(action)
	if err != nil {
		return false, err
	}

	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return false, err
	}
	// back on a page with a login form means rejected credentials
	if _, _, stillLogin := campusLoginForm.MatchDoc(doc); stillLogin {
		return false, nil
	}
	return true, nil
}

func (c *campusNetConnector) Logout(ctx context.Context) error {
	_, err := c.http.R().SetContext(ctx).Get("/logout")
	return err
}

func (c *campusNetConnector) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, errors.New("campusnet runs over http, no page to screenshot")
}

func (c *campusNetConnector) Scrape(ctx context.Context) (*portals.SnapshotData, error) {
	data := &portals.SnapshotData{}

	dashboard, err := c.pageDoc(ctx, "/dashboard")
	if err != nil {
		return nil, err
	}

	if cell, _, ok := campusAttendanceCell.MatchDoc(dashboard); ok {
		if pct, ok := parseNumber(cell.First().Text()); ok {
			data.Attendance = &portals.Attendance{Percentage: pct}
		}
	} else {
		slog.WarnContext(ctx, "attendance cell not found on dashboard")
	}

	if rows, _, ok := campusNoticeRows.MatchDoc(dashboard); ok {
		rows.Each(func(_ int, row *goquery.Selection) {
			n := portals.Notice{
				Title:    cleanText(row.Find(".title, td:nth-child(1), a").First().Text()),
				Content:  cleanText(row.Find(".body, td:nth-child(2)").First().Text()),
				Category: cleanText(row.Find(".category").First().Text()),
			}
			if date, ok := parseDate(row.Find(".date, td:last-child").First().Text()); ok {
				n.Date = date
			}
			if n.Title != "" {
				data.Notices = append(data.Notices, n)
			}
		})
	} else {
		slog.WarnContext(ctx, "notice board not found on dashboard")
	}

	assignmentsPage, err := c.pageDoc(ctx, "/assignments")
	if err != nil {
		slog.WarnContext(ctx, "assignments page unavailable", "err", err)
	} else if rows, _, ok := campusAssignmentRows.MatchDoc(assignmentsPage); ok {
		rows.Each(func(_ int, row *goquery.Selection) {
			a := portals.Assignment{
				ID:     row.AttrOr("data-id", ""),
				Title:  cleanText(row.Find(".title, td:nth-child(1)").First().Text()),
				Course: cleanText(row.Find(".course, td:nth-child(2)").First().Text()),
				Status: portals.ParseAssignmentStatus(strings.ToLower(cleanText(row.Find(".status, td:nth-child(4)").First().Text()))),
			}
			if due, ok := parseDate(row.Find(".due, td:nth-child(3)").First().Text()); ok {
				a.DueDate = due
			}
			if a.Title == "" {
				return
			}
			if a.ID == "" {
				a.ID = fingerprintAssignment(a)
			}
			data.Assignments = append(data.Assignments, a)
		})
	}

	feesPage, err := c.pageDoc(ctx, "/fees")
	if err != nil {
		slog.WarnContext(ctx, "fees page unavailable", "err", err)
	} else if section, _, ok := campusFeesSection.MatchDoc(feesPage); ok {
		fees := &portals.Fees{}
		if due, ok := parseNumber(section.Find(".total-due, td.due").First().Text()); ok {
			fees.TotalDue = due
		}
		if date, ok := parseDate(section.Find(".due-date").First().Text()); ok {
			fees.DueDate = date
		}
		data.Fees = fees
	}

	return data, nil
}

func (c *campusNetConnector) pageDoc(ctx context.Context, path string) (*goquery.Document, error) {
	res, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", path, res.StatusCode())
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// campusnet exposes no transactional surface worth automating over
// HTTP, students are redirected to a payment aggregator for everything.
func (c *campusNetConnector) Act(ctx context.Context, action string, params map[string]string) (portals.ActionResult, error) {
	return portals.ActionResult{}, fmt.Errorf("%w: %q", portals.ErrUnsupportedAction, action)
}
