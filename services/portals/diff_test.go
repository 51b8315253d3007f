package portals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeDeltaFirstSync(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := &SnapshotData{
		Notices:     []Notice{noticeFixture("welcome")},
		Assignments: []Assignment{assignmentFixture("a1"), assignmentFixture("a2")},
	}

	delta := ComputeDelta(nil, next, now)
	require.Len(t, delta.NewAssignments, 2)
	require.True(t, delta.NoticesChanged)
}

func TestComputeDeltaDueSoonBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	inWindow := assignmentFixture("soon")
	inWindow.DueDate = now.Add(47*time.Hour + 59*time.Minute)
	outside := assignmentFixture("later")
	outside.DueDate = now.Add(49 * time.Hour)

	next := &SnapshotData{Assignments: []Assignment{inWindow, outside}}
	delta := ComputeDelta(&SnapshotData{Assignments: next.Assignments}, next, now)

	require.Len(t, delta.DueSoon, 1)
	require.Equal(t, "soon", delta.DueSoon[0].ID)
	require.Empty(t, delta.Overdue)
	require.Empty(t, delta.NewAssignments)
}

func TestComputeDeltaOverdueSkipsTerminal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	missed := assignmentFixture("missed")
	missed.DueDate = now.Add(-2 * time.Hour)
	done := assignmentFixture("done")
	done.DueDate = now.Add(-2 * time.Hour)
	done.Status = AssignmentSubmitted

	next := &SnapshotData{Assignments: []Assignment{missed, done}}
	delta := ComputeDelta(&SnapshotData{Assignments: next.Assignments}, next, now)

	require.Len(t, delta.Overdue, 1)
	require.Equal(t, "missed", delta.Overdue[0].ID)
}

func TestComputeDeltaNoticesChangedByHash(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := &SnapshotData{Notices: []Notice{noticeFixture("alpha")}}

	same := &SnapshotData{Notices: []Notice{noticeFixture("alpha")}}
	require.False(t, ComputeDelta(prev, same, now).NoticesChanged)

	edited := &SnapshotData{Notices: []Notice{noticeFixture("alpha"), noticeFixture("beta")}}
	require.True(t, ComputeDelta(prev, edited, now).NoticesChanged)
}

func TestDeadlineStatusDerivedFromClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := assignmentFixture("a1")
	a.DueDate = now.Add(-2 * time.Hour)
	// portal still reports pending, the clock wins
	require.Equal(t, AssignmentOverdue, DeadlineStatus(a, now))

	a.Status = AssignmentSubmitted
	require.Equal(t, AssignmentSubmitted, DeadlineStatus(a, now))
}

func TestReviewSubmissionPastDeadline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := assignmentFixture("a1")
	a.DueDate = now.Add(-2 * time.Hour)

	review := ReviewSubmission(a, now)
	require.Equal(t, AssignmentOverdue, review.DeadlineStatus)
	require.False(t, review.IsValid)
	require.InDelta(t, -2.0, review.HoursRemaining, 0.01)
}

func TestReviewSubmissionBeforeDeadline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := assignmentFixture("a1")
	a.DueDate = now.Add(30 * time.Hour)

	review := ReviewSubmission(a, now)
	require.Equal(t, AssignmentPending, review.DeadlineStatus)
	require.True(t, review.IsValid)
	require.InDelta(t, 30.0, review.HoursRemaining, 0.01)
}
