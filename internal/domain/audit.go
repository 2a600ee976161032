package domain

import "time"

// AuditEntry captures one pipeline run, success or failure. Keep it
// transport-agnostic so stores and sinks can fan out.
type AuditEntry struct {
	ID        string
	EventID   string
	Category  Category
	Target    string
	Timestamp time.Time
	Result    Outcome
	Reason    string // degradation or failure detail, empty on clean writes
	RequestID string // correlation ID from the intake request
}
