package portals

import (
	"fmt"
	"time"
)

// PortalType is the closed set of institutions we know how to drive.
type PortalType string

const (
	PortalTypeUPES      PortalType = "upes"
	PortalTypeAmity     PortalType = "amity"
	PortalTypeCampusNet PortalType = "campusnet"
)

func ParsePortalType(s string) (PortalType, error) {
	switch PortalType(s) {
	case PortalTypeUPES, PortalTypeAmity, PortalTypeCampusNet:
		return PortalType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPortalType, s)
}

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentSubmitted AssignmentStatus = "submitted"
	AssignmentOverdue   AssignmentStatus = "overdue"
	AssignmentGraded    AssignmentStatus = "graded"
)

// Terminal reports whether the assignment needs no further action or
// reminders.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentSubmitted || s == AssignmentGraded
}

func ParseAssignmentStatus(s string) AssignmentStatus {
	switch AssignmentStatus(s) {
	case AssignmentSubmitted, AssignmentOverdue, AssignmentGraded:
		return AssignmentStatus(s)
	}
	return AssignmentPending
}

type Attendance struct {
	Percentage   float64 `json:"percentage"`
	TotalClasses int     `json:"total_classes"`
	Attended     int     `json:"attended"`
}

type Exam struct {
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Type    string    `json:"type"`
	Status  string    `json:"status"`
}

type Result struct {
	Subject  string    `json:"subject"`
	Marks    float64   `json:"marks"`
	Grade    string    `json:"grade"`
	Semester string    `json:"semester"`
	Date     time.Time `json:"date"`
}

type Fees struct {
	TotalDue     float64   `json:"total_due"`
	LastPaid     float64   `json:"last_paid"`
	LastPaidDate time.Time `json:"last_paid_date"`
	DueDate      time.Time `json:"due_date"`
}

type Notice struct {
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Date     time.Time `json:"date"`
	Category string    `json:"category"`
}

type Assignment struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Course        string           `json:"course"`
	CourseCode    string           `json:"course_code"`
	Description   string           `json:"description"`
	DueDate       time.Time        `json:"due_date"`
	Status        AssignmentStatus `json:"status"`
	SubmittedDate *time.Time       `json:"submitted_date,omitempty"`
	MaxMarks      *float64         `json:"max_marks,omitempty"`
	ObtainedMarks *float64         `json:"obtained_marks,omitempty"`
	SubmissionURL string           `json:"submission_url,omitempty"`
}

// SnapshotData is one extraction of a connection's academic state.
// Every section is optional, a portal whose attendance widget broke
// still yields notices and fees.
type SnapshotData struct {
	Attendance  *Attendance  `json:"attendance,omitempty"`
	Exams       []Exam       `json:"exams,omitempty"`
	Results     []Result     `json:"results,omitempty"`
	Fees        *Fees        `json:"fees,omitempty"`
	Notices     []Notice     `json:"notices,omitempty"`
	Assignments []Assignment `json:"assignments,omitempty"`
}

// Snapshot is one immutable persisted row. Snapshots are append-only,
// "current state" means the newest row for a connection.
type Snapshot struct {
	ID              int64
	ConnectionID    string
	CreatedAt       time.Time
	Data            SnapshotData
	NoticesHash     string
	AssignmentsHash string
	// Stale is set when the most recent sync attempt after this
	// snapshot failed, so the data shown may lag the portal.
	Stale bool
}

type Connection struct {
	ID              string
	UserID          string
	Type            PortalType
	URL             string
	LoginID         string
	CredentialToken string
	Active          bool
	AutoSync        bool
	SyncInterval    time.Duration
	CreatedAt       time.Time
}

type Credentials struct {
	LoginID  string
	Password string
}

type ActionResult struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	FilePath   string            `json:"file_path,omitempty"`
	Screenshot []byte            `json:"screenshot,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Delta describes what changed between two consecutive snapshots.
type Delta struct {
	NewAssignments []Assignment
	Overdue        []Assignment
	DueSoon        []Assignment
	NoticesChanged bool
}

type SyncResult struct {
	Snapshot Snapshot
	Changed  bool
	Delta    Delta
}

type Contact struct {
	UserID string
	Email  string
	Phone  string
}
