package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portalsync-backend/lib/browser"
	"portalsync-backend/lib/locator"
	"portalsync-backend/lib/timezone"
	"portalsync-backend/services/portals"
	"portalsync-backend/services/portals/automation"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

func init() {
	automation.Register(portals.PortalTypeAmity, newAmity)
}

// amizone's markup has been stable for years, so the chains here are
// single-candidate. They still go through locator so a redesign shows
// up in the logs the same way.
var (
	amityUsername  = locator.Chain{Name: "username field", Candidates: []string{"#username"}}
	amityPassword  = locator.Chain{Name: "password field", Candidates: []string{"#password"}}
	amitySubmit    = locator.Chain{Name: "login submit", Candidates: []string{"button[type='submit']"}}
	amityDashboard = locator.Chain{Name: "dashboard marker", Candidates: []string{".dashboard", "#sidebar"}}
	amityLogout    = locator.Chain{Name: "logout control", Candidates: []string{"a[href*='logout']"}}

	amityNoticeRows     = locator.Chain{Name: "notice rows", Candidates: []string{".notice-board .notice"}}
	amityAssignmentRows = locator.Chain{Name: "assignment rows", Candidates: []string{"#assignments tbody tr"}}
	amityAttendance     = locator.Chain{Name: "attendance widget", Candidates: []string{".attendance-summary"}}
)

type amityConnector struct {
	session *browser.Session
	baseURL string
}

func newAmity(ctx context.Context, env automation.Env) (automation.Connector, error) {
	session, err := env.Browser.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return &amityConnector{
		session: session,
		baseURL: strings.TrimRight(env.PortalURL, "/"),
	}, nil
}

func (c *amityConnector) Close() {
	c.session.Close()
}

func (c *amityConnector) Login(ctx context.Context, creds portals.Credentials) (bool, error) {
	ctx, cancel := c.session.WithRequest(ctx)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.Navigate(c.baseURL))
	if err != nil {
		return false, err
	}
	err = amityUsername.Fill(ctx, creds.LoginID)
	if err != nil {
		return false, err
	}
	err = amityPassword.Fill(ctx, creds.Password)
	if err != nil {
		return false, err
	}
	err = amitySubmit.Click(ctx)
	if err != nil {
		return false, err
	}

	_, ok, err := amityDashboard.WaitAny(ctx, 10*time.Second)
	return ok, err
}

func (c *amityConnector) Logout(ctx context.Context) error {
	ctx, cancel := c.session.WithRequest(ctx)
	defer cancel()
	return amityLogout.Click(ctx)
}

func (c *amityConnector) Screenshot(ctx context.Context) ([]byte, error) {
	ctx, cancel := c.session.WithRequest(ctx)
	defer cancel()
	var buf []byte
	err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// Scrape reads everything off the landing dashboard; amizone renders
// attendance, notices and assignments on one page.
func (c *amityConnector) Scrape(ctx context.Context) (*portals.SnapshotData, error) {
	ctx, cancel := c.session.WithRequest(ctx)
	defer cancel()

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(c.baseURL+"/home"),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	data := &portals.SnapshotData{}

	if widget, _, ok := amityAttendance.MatchDoc(doc); ok {
		att := &portals.Attendance{}
		if pct, ok := parseNumber(widget.Find(".percentage").First().Text()); ok {
			att.Percentage = pct
		}
		if total, ok := parseInt(widget.Find(".total").First().Text()); ok {
			att.TotalClasses = total
		}
		if attended, ok := parseInt(widget.Find(".attended").First().Text()); ok {
			att.Attended = attended
		}
		data.Attendance = att
	}

	if rows, _, ok := amityNoticeRows.MatchDoc(doc); ok {
		rows.Each(func(_ int, row *goquery.Selection) {
			n := portals.Notice{
				Title:   cleanText(row.Find(".title").Text()),
				Content: cleanText(row.Find(".body").Text()),
			}
			if date, ok := parseDate(row.Find(".date").Text()); ok {
				n.Date = date
			}
			if n.Title != "" {
				data.Notices = append(data.Notices, n)
			}
		})
	}

	if rows, _, ok := amityAssignmentRows.MatchDoc(doc); ok {
		rows.Each(func(_ int, row *goquery.Selection) {
			a := portals.Assignment{
				ID:     row.AttrOr("data-id", ""),
				Title:  cleanText(row.Find("td:nth-child(1)").Text()),
				Course: cleanText(row.Find("td:nth-child(2)").Text()),
				Status: portals.ParseAssignmentStatus(strings.ToLower(cleanText(row.Find("td:nth-child(4)").Text()))),
			}
			if due, ok := parseDate(row.Find("td:nth-child(3)").Text()); ok {
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

	return data, nil
}

func (c *amityConnector) Act(ctx context.Context, action string, params map[string]string) (portals.ActionResult, error) {
	ctx, cancel := c.session.WithRequest(ctx)
	defer cancel()

	switch action {
	case "apply_exam":
		err := chromedp.Run(ctx, chromedp.Navigate(c.baseURL+"/examination"))
		if err != nil {
			return portals.ActionResult{}, err
		}
		apply := locator.Chain{Name: "exam apply control", Candidates: []string{"#apply-exam"}}
		err = apply.Click(ctx)
		if err != nil {
			return portals.ActionResult{}, err
		}
		confirm := locator.Chain{Name: "action confirmation", Candidates: []string{".alert-success"}}
		_, ok, err := confirm.WaitAny(ctx, 5*time.Second)
		if err != nil {
			return portals.ActionResult{}, err
		}
		return portals.ActionResult{
			Success:   ok,
			Message:   "Exam application submitted.",
			Timestamp: timezone.Now(),
		}, nil
	case "download_admit_card":
		err := chromedp.Run(ctx, chromedp.Navigate(c.baseURL+"/examination/admit-card"))
		if err != nil {
			return portals.ActionResult{}, err
		}
		link := locator.Chain{Name: "admit card link", Candidates: []string{"a.admit-card"}}
		err = link.Click(ctx)
		if err != nil {
			return portals.ActionResult{}, err
		}
		return portals.ActionResult{
			Success:   true,
			Message:   "Admit card download started.",
			Timestamp: timezone.Now(),
		}, nil
	}
	return portals.ActionResult{}, fmt.Errorf("%w: %q", portals.ErrUnsupportedAction, action)
}
