package portals

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
)

// Content hashing for cheap change detection. The arrays are
// canonicalized first (stable sort, times collapsed to unix seconds) so
// two scrapes of the same content hash equal no matter what order the
// portal rendered rows in.

type canonicalNotice struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Date     int64  `json:"date"`
	Category string `json:"category"`
}

type canonicalAssignment struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Course        string   `json:"course"`
	CourseCode    string   `json:"course_code"`
	Description   string   `json:"description"`
	DueDate       int64    `json:"due_date"`
	Status        string   `json:"status"`
	SubmittedDate int64    `json:"submitted_date"`
	MaxMarks      *float64 `json:"max_marks"`
	ObtainedMarks *float64 `json:"obtained_marks"`
	SubmissionURL string   `json:"submission_url"`
}

func NoticesHash(notices []Notice) string {
	canonical := make([]canonicalNotice, len(notices))
	for i, n := range notices {
		canonical[i] = canonicalNotice{
			Title:    n.Title,
			Content:  n.Content,
			Date:     n.Date.Unix(),
			Category: n.Category,
		}
	}
	slices.SortFunc(canonical, func(a, b canonicalNotice) int {
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		if a.Date != b.Date {
			if a.Date < b.Date {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Content, b.Content)
	})
	return hashJSON(canonical)
}

func AssignmentsHash(assignments []Assignment) string {
	canonical := make([]canonicalAssignment, len(assignments))
	for i, a := range assignments {
		submitted := int64(0)
		if a.SubmittedDate != nil {
			submitted = a.SubmittedDate.Unix()
		}
		canonical[i] = canonicalAssignment{
			ID:            a.ID,
			Title:         a.Title,
			Course:        a.Course,
			CourseCode:    a.CourseCode,
			Description:   a.Description,
			DueDate:       a.DueDate.Unix(),
			Status:        string(a.Status),
			SubmittedDate: submitted,
			MaxMarks:      a.MaxMarks,
			ObtainedMarks: a.ObtainedMarks,
			SubmissionURL: a.SubmissionURL,
		}
	}
	slices.SortFunc(canonical, func(a, b canonicalAssignment) int {
		return strings.Compare(a.ID, b.ID)
	})
	return hashJSON(canonical)
}

func hashJSON(v any) string {
	// struct field order is fixed, so marshaling is deterministic
	raw, err := json.Marshal(v)
	if err != nil {
		// canonical structs only hold plain values, this cannot fail
		panic(err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
