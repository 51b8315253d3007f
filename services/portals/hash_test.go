package portals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noticeFixture(title string) Notice {
	return Notice{
		Title:    title,
		Content:  "content of " + title,
		Date:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Category: "academic",
	}
}

func assignmentFixture(id string) Assignment {
	return Assignment{
		ID:      id,
		Title:   "assignment " + id,
		Course:  "Data Structures",
		DueDate: time.Date(2026, 3, 20, 23, 59, 0, 0, time.UTC),
		Status:  AssignmentPending,
	}
}

func TestNoticesHashOrderIndependent(t *testing.T) {
	a := []Notice{noticeFixture("alpha"), noticeFixture("beta"), noticeFixture("gamma")}
	b := []Notice{noticeFixture("gamma"), noticeFixture("alpha"), noticeFixture("beta")}
	require.Equal(t, NoticesHash(a), NoticesHash(b))
}

func TestNoticesHashDetectsFieldChange(t *testing.T) {
	a := []Notice{noticeFixture("alpha"), noticeFixture("beta")}
	b := []Notice{noticeFixture("alpha"), noticeFixture("beta")}
	b[1].Content = "revised content"
	require.NotEqual(t, NoticesHash(a), NoticesHash(b))
}

func TestAssignmentsHashOrderIndependent(t *testing.T) {
	a := []Assignment{assignmentFixture("a1"), assignmentFixture("a2"), assignmentFixture("a3")}
	b := []Assignment{assignmentFixture("a3"), assignmentFixture("a1"), assignmentFixture("a2")}
	require.Equal(t, AssignmentsHash(a), AssignmentsHash(b))
}

func TestAssignmentsHashDetectsStatusChange(t *testing.T) {
	a := []Assignment{assignmentFixture("a1")}
	b := []Assignment{assignmentFixture("a1")}
	b[0].Status = AssignmentSubmitted
	require.NotEqual(t, AssignmentsHash(a), AssignmentsHash(b))
}

func TestHashesStableAcrossRuns(t *testing.T) {
	notices := []Notice{noticeFixture("alpha")}
	assignments := []Assignment{assignmentFixture("a1")}
	require.Equal(t, NoticesHash(notices), NoticesHash(notices))
	require.Equal(t, AssignmentsHash(assignments), AssignmentsHash(assignments))
}

func TestEmptyAndNilHashEqual(t *testing.T) {
	require.Equal(t, NoticesHash(nil), NoticesHash([]Notice{}))
	require.Equal(t, AssignmentsHash(nil), AssignmentsHash([]Assignment{}))
}
