package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"portalsync-backend/lib/telemetry"
	"portalsync-backend/services/portals"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	conns     []portals.Connection
	snapshots map[string]portals.Snapshot
	contacts  map[string]portals.Contact
	syncs     int
}

func (f *fakeSource) ActiveAutoSyncConnections(_ context.Context) ([]portals.Connection, error) {
	return f.conns, nil
}

func (f *fakeSource) Sync(_ context.Context, connectionID string) (portals.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return portals.SyncResult{Snapshot: f.snapshots[connectionID]}, nil
}

func (f *fakeSource) GetLatestSnapshot(_ context.Context, connectionID string) (portals.Snapshot, error) {
	snap, ok := f.snapshots[connectionID]
	if !ok {
		return portals.Snapshot{}, portals.ErrNoSnapshot
	}
	return snap, nil
}

func (f *fakeSource) Contact(_ context.Context, userID string) (portals.Contact, error) {
	return f.contacts[userID], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func setupScheduler(t *testing.T, due time.Time, status portals.AssignmentStatus) (*Service, *fakeSource, *recordingNotifier) {
	cleanup := telemetry.SetupForTesting(t, "test:reminders")
	t.Cleanup(cleanup)

	source := &fakeSource{
		conns: []portals.Connection{{
			ID:       "conn-1",
			UserID:   "student-1",
			Type:     portals.PortalTypeUPES,
			AutoSync: true,
			Active:   true,
		}},
		snapshots: map[string]portals.Snapshot{
			"conn-1": {
				ConnectionID: "conn-1",
				Data: portals.SnapshotData{
					Assignments: []portals.Assignment{{
						ID:      "dsa-lab-4",
						Title:   "Lab 4: AVL trees",
						Course:  "Data Structures",
						DueDate: due,
						Status:  status,
					}},
				},
			},
		},
		contacts: map[string]portals.Contact{
			"student-1": {UserID: "student-1", Email: "s1@example.edu"},
		},
	}
	notifier := &recordingNotifier{}
	svc := NewService(Config{}, source, notifier)
	return svc, source, notifier
}

func TestReminderFiresAtSevenDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, notifier := setupScheduler(t, now.Add(7*24*time.Hour), portals.AssignmentPending)

	svc.CheckDeadlines(context.Background(), now)
	require.Equal(t, 1, notifier.count())
	require.Contains(t, notifier.sent[0].Subject, "Due in 7d")
	require.Equal(t, []Channel{ChannelEmail}, notifier.sent[0].Channels)
}

func TestReminderNotDuplicated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, notifier := setupScheduler(t, now.Add(7*24*time.Hour), portals.AssignmentPending)

	svc.CheckDeadlines(context.Background(), now)
	svc.CheckDeadlines(context.Background(), now.Add(time.Hour))
	require.Equal(t, 1, notifier.count())
}

func TestReminderOutsideWindowSilent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, notifier := setupScheduler(t, now.Add(10*24*time.Hour), portals.AssignmentPending)

	svc.CheckDeadlines(context.Background(), now)
	require.Equal(t, 0, notifier.count())
}

func TestMostUrgentRungWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// due in 5 hours crosses 7d, 3d, 1d and 6h at once
	svc, _, notifier := setupScheduler(t, now.Add(5*time.Hour), portals.AssignmentPending)

	svc.CheckDeadlines(context.Background(), now)
	require.Equal(t, 1, notifier.count())
	require.Contains(t, notifier.sent[0].Subject, "Due in 6h")

	// the less urgent rungs were marked too, nothing more fires
	svc.CheckDeadlines(context.Background(), now.Add(time.Minute))
	require.Equal(t, 1, notifier.count())
}

func TestEscalationAcrossRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(7 * 24 * time.Hour)
	svc, _, notifier := setupScheduler(t, due, portals.AssignmentPending)

	svc.CheckDeadlines(context.Background(), now)
	require.Equal(t, 1, notifier.count())

	// six days later the 1d rung has been crossed
	svc.CheckDeadlines(context.Background(), now.Add(6*24*time.Hour+12*time.Hour))
	require.Equal(t, 2, notifier.count())
	require.Contains(t, notifier.sent[1].Subject, "Due in 1d")
}

func TestOverdueReminder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, notifier := setupScheduler(t, now.Add(-2*time.Hour), portals.AssignmentPending)

	svc.CheckDeadlines(context.Background(), now)
	require.Equal(t, 1, notifier.count())
	require.Contains(t, notifier.sent[0].Subject, "Overdue")
}

func TestTerminalStatusSilences(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, notifier := setupScheduler(t, now.Add(5*time.Hour), portals.AssignmentSubmitted)

	svc.CheckDeadlines(context.Background(), now)
	require.Equal(t, 0, notifier.count())
}

func TestSubmittedClearsSentMarkers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, source, notifier := setupScheduler(t, now.Add(5*time.Hour), portals.AssignmentPending)

	svc.CheckDeadlines(context.Background(), now)
	require.Equal(t, 1, notifier.count())

	// assignment flips to submitted, markers drop
	snap := source.snapshots["conn-1"]
	snap.Data.Assignments[0].Status = portals.AssignmentSubmitted
	source.snapshots["conn-1"] = snap
	svc.CheckDeadlines(context.Background(), now.Add(time.Minute))

	// the portal re-opens the same assignment id as pending again
	snap.Data.Assignments[0].Status = portals.AssignmentPending
	source.snapshots["conn-1"] = snap
	svc.CheckDeadlines(context.Background(), now.Add(2*time.Minute))
	require.Equal(t, 2, notifier.count())
}

func TestSMSChannelWhenPhonePresent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, source, notifier := setupScheduler(t, now.Add(5*time.Hour), portals.AssignmentPending)
	source.contacts["student-1"] = portals.Contact{
		UserID: "student-1",
		Email:  "s1@example.edu",
		Phone:  "+919800000001",
	}

	svc.CheckDeadlines(context.Background(), now)
	require.Equal(t, 1, notifier.count())
	require.Equal(t, []Channel{ChannelEmail, ChannelSMS}, notifier.sent[0].Channels)
}

func TestSyncAllRunsEveryConnection(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, source, _ := setupScheduler(t, now.Add(time.Hour), portals.AssignmentPending)
	source.conns = append(source.conns, portals.Connection{
		ID: "conn-2", UserID: "student-2", AutoSync: true, Active: true,
	})

	svc.SyncAll(context.Background())
	require.Equal(t, 2, source.syncs)
}
