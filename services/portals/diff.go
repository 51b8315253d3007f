package portals

import "time"

// look-ahead window for "due soon" alerts
const dueSoonWindow = 48 * time.Hour

// ComputeDelta compares two consecutive scrapes. prev may be nil for a
// first sync, in which case every assignment counts as new.
func ComputeDelta(prev *SnapshotData, next *SnapshotData, now time.Time) Delta {
	var delta Delta

	prevIDs := map[string]bool{}
	if prev != nil {
		for _, a := range prev.Assignments {
			prevIDs[a.ID] = true
		}
	}

	for _, a := range next.Assignments {
		if !prevIDs[a.ID] {
			delta.NewAssignments = append(delta.NewAssignments, a)
		}
		if a.Status.Terminal() {
			continue
		}

		until := a.DueDate.Sub(now)
		if until < 0 {
			delta.Overdue = append(delta.Overdue, a)
		} else if until <= dueSoonWindow {
			delta.DueSoon = append(delta.DueSoon, a)
		}
	}

	if prev == nil {
		delta.NoticesChanged = len(next.Notices) > 0
	} else {
		delta.NoticesChanged = NoticesHash(prev.Notices) != NoticesHash(next.Notices)
	}

	return delta
}

// DeadlineStatus classifies an assignment against the clock, deriving
// "overdue" from time rather than trusting the scraped status field.
func DeadlineStatus(a Assignment, now time.Time) AssignmentStatus {
	if a.Status.Terminal() {
		return a.Status
	}
	if a.DueDate.Before(now) {
		return AssignmentOverdue
	}
	return AssignmentPending
}

// SubmissionReview is the pre-submission deadline check surfaced to
// callers before they push a file at the portal.
type SubmissionReview struct {
	Assignment     Assignment       `json:"assignment"`
	DeadlineStatus AssignmentStatus `json:"deadline_status"`
	IsValid        bool             `json:"is_valid"`
	HoursRemaining float64          `json:"hours_remaining"`
}

func ReviewSubmission(a Assignment, now time.Time) SubmissionReview {
	status := DeadlineStatus(a, now)
	return SubmissionReview{
		Assignment:     a,
		DeadlineStatus: status,
		IsValid:        status == AssignmentPending,
		HoursRemaining: a.DueDate.Sub(now).Hours(),
	}
}
