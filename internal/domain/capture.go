package domain

import "time"

// CaptureEvent is the canonical record of one inbound chat message. It is
// built once by the intake layer and never mutated afterwards; the platform
// message ID doubles as the idempotency key for the whole pipeline run.
type CaptureEvent struct {
	ID         string
	Text       string
	Author     string
	Channel    string
	ThreadRef  string // optional pointer for threaded replies
	ReceivedAt time.Time
}

// Category is the closed set of destinations a message can be routed to.
type Category string

const (
	CategoryPeople      Category = "people"
	CategoryProjects    Category = "projects"
	CategoryIdeas       Category = "ideas"
	CategoryNeedsReview Category = "needs_review"
)

// Categories lists every valid category. Order is stable for display.
var Categories = []Category{
	CategoryPeople,
	CategoryProjects,
	CategoryIdeas,
	CategoryNeedsReview,
}

// Valid reports whether c is a member of the closed enumeration.
func (c Category) Valid() bool {
	switch c {
	case CategoryPeople, CategoryProjects, CategoryIdeas, CategoryNeedsReview:
		return true
	}
	return false
}

// ClassificationResult is the normalized output of the classification parser.
// Category is always a valid member of the enumeration; untrusted model
// output that cannot be decoded or validated lands in needs_review. When the
// confidence threshold overrides the category, the originally classified
// value is preserved in RawFields under "original_category".
type ClassificationResult struct {
	Category   Category
	SubArea    string
	Confidence float64
	RawFields  map[string]string
}
