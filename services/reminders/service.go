// Package reminders drives the deadline ladder: scheduled background
// syncs plus escalating notifications as assignment due dates approach.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"portalsync-backend/lib/timezone"
	"portalsync-backend/services/portals"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/reminders")

// the escalation ladder, least urgent first. An assignment crossing
// several rungs between two runs gets one notification, the most
// urgent rung, not a burst.
var ladder = []struct {
	tag    string
	before time.Duration
}{
	{"7d", 7 * 24 * time.Hour},
	{"3d", 3 * 24 * time.Hour},
	{"1d", 24 * time.Hour},
	{"6h", 6 * time.Hour},
	{"overdue", 0},
}

const (
	// sent-marker retention; an assignment still pending a month past
	// its deadline has stopped being actionable
	dedupTTL     = 30 * 24 * time.Hour
	dedupEntries = 16384
)

// PortalSource is the slice of the sync engine the scheduler needs.
type PortalSource interface {
	ActiveAutoSyncConnections(ctx context.Context) ([]portals.Connection, error)
	Sync(ctx context.Context, connectionID string) (portals.SyncResult, error)
	GetLatestSnapshot(ctx context.Context, connectionID string) (portals.Snapshot, error)
	Contact(ctx context.Context, userID string) (portals.Contact, error)
}

type Config struct {
	// cron expressions, robfig/cron syntax
	SyncSchedule     string `json:"sync_schedule"`
	ReminderSchedule string `json:"reminder_schedule"`
}

func (c Config) withDefaults() Config {
	if c.SyncSchedule == "" {
		c.SyncSchedule = "*/15 * * * *"
	}
	if c.ReminderSchedule == "" {
		c.ReminderSchedule = "0 * * * *"
	}
	return c
}

type Service struct {
	cfg      Config
	source   PortalSource
	notifier Notifier
	cron     *cron.Cron

	// key connID|assignmentID|tag -> when the reminder went out
	sent *expirable.LRU[string, time.Time]
}

func NewService(cfg Config, source PortalSource, notifier Notifier) *Service {
	return &Service{
		cfg:      cfg.withDefaults(),
		source:   source,
		notifier: notifier,
		cron:     cron.New(cron.WithLocation(timezone.Location)),
		sent:     expirable.NewLRU[string, time.Time](dedupEntries, nil, dedupTTL),
	}
}

// Start registers the cron entries and begins running them. Stop with
// Stop.
func (s *Service) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.SyncSchedule, func() {
		s.SyncAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("register sync schedule: %w", err)
	}
	_, err = s.cron.AddFunc(s.cfg.ReminderSchedule, func() {
		s.CheckDeadlines(ctx, timezone.Now())
	})
	if err != nil {
		return fmt.Errorf("register reminder schedule: %w", err)
	}

	s.cron.Start()
	slog.Info("reminder scheduler started",
		"sync_schedule", s.cfg.SyncSchedule,
		"reminder_schedule", s.cfg.ReminderSchedule,
	)
	return nil
}

func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// SyncAll runs one sync per auto-sync connection. A failing portal
// only takes its own connection down.
func (s *Service) SyncAll(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "SyncAll")
	defer span.End()

	conns, err := s.source.ActiveAutoSyncConnections(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to list auto-sync connections", "err", err)
		return
	}
	span.SetAttributes(attribute.Int("connections", len(conns)))

	for _, conn := range conns {
		_, err := s.source.Sync(ctx, conn.ID)
		if err != nil {
			slog.WarnContext(ctx, "scheduled sync failed",
				"connection", conn.ID, "portal_type", conn.Type, "err", err)
		}
	}
}

// CheckDeadlines walks every auto-sync connection's latest snapshot and
// fires reminders for assignments that crossed a ladder rung since the
// last run.
func (s *Service) CheckDeadlines(ctx context.Context, now time.Time) {
	ctx, span := tracer.Start(ctx, "CheckDeadlines")
	defer span.End()

	conns, err := s.source.ActiveAutoSyncConnections(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to list auto-sync connections", "err", err)
		return
	}

	fired := 0
	for _, conn := range conns {
		snap, err := s.source.GetLatestSnapshot(ctx, conn.ID)
		if errors.Is(err, portals.ErrNoSnapshot) {
			continue
		}
		if err != nil {
			slog.WarnContext(ctx, "failed to load snapshot for reminders",
				"connection", conn.ID, "err", err)
			continue
		}

		for _, a := range snap.Data.Assignments {
			if s.checkAssignment(ctx, conn, a, now) {
				fired++
			}
		}
	}
	span.SetAttributes(attribute.Int("fired", fired))
}

func (s *Service) checkAssignment(ctx context.Context, conn portals.Connection, a portals.Assignment, now time.Time) bool {
	if a.Status.Terminal() {
		// submitted or graded, drop any pending markers so a
		// resurrected assignment with the same id starts clean
		for _, rung := range ladder {
			s.sent.Remove(s.key(conn.ID, a.ID, rung.tag))
		}
		return false
	}
	if a.DueDate.IsZero() {
		return false
	}

	until := a.DueDate.Sub(now)
	// most urgent crossed rung wins
	current := -1
	for i := len(ladder) - 1; i >= 0; i-- {
		if until <= ladder[i].before {
			current = i
			break
		}
	}
	if current < 0 {
		return false
	}

	key := s.key(conn.ID, a.ID, ladder[current].tag)
	if _, seen := s.sent.Get(key); seen {
		return false
	}

	contact, err := s.source.Contact(ctx, conn.UserID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load contact", "user", conn.UserID, "err", err)
		return false
	}
	if contact.Email == "" && contact.Phone == "" {
		slog.WarnContext(ctx, "no contact details, skipping reminder", "user", conn.UserID)
		return false
	}

	channels := []Channel{ChannelEmail}
	if contact.Phone != "" {
		channels = append(channels, ChannelSMS)
	}

	err = s.notifier.Notify(ctx, Notification{
		Channels: channels,
		Email:    contact.Email,
		Phone:    contact.Phone,
		Subject:  subjectFor(ladder[current].tag, a),
		Body:     bodyFor(ladder[current].tag, a, until),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to deliver reminder",
			"connection", conn.ID, "assignment", a.ID, "err", err)
		return false
	}

	// mark the fired rung and every earlier one, a 6h reminder must
	// not be followed by a late 3d one
	for i := 0; i <= current; i++ {
		s.sent.Add(s.key(conn.ID, a.ID, ladder[i].tag), now)
	}

	slog.InfoContext(ctx, "reminder sent",
		"connection", conn.ID,
		"assignment", a.ID,
		"rung", ladder[current].tag,
	)
	return true
}

func (s *Service) key(connID, assignmentID, tag string) string {
	return connID + "|" + assignmentID + "|" + tag
}

func subjectFor(tag string, a portals.Assignment) string {
	if tag == "overdue" {
		return fmt.Sprintf("Overdue: %s", a.Title)
	}
	return fmt.Sprintf("Due in %s: %s", tag, a.Title)
}

func bodyFor(tag string, a portals.Assignment, until time.Duration) string {
	due := a.DueDate.In(timezone.Location).Format("Mon, 02 Jan 2006 15:04")
	if tag == "overdue" {
		return fmt.Sprintf(
			"%s (%s) was due on %s and has not been submitted yet.",
			a.Title, a.Course, due,
		)
	}
	return fmt.Sprintf(
		"%s (%s) is due on %s, about %.0f hours from now.",
		a.Title, a.Course, due, until.Hours(),
	)
}
