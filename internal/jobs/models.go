// Package jobs records every transcript the daemon accepts and what became
// of it, in a SQLite database under the state directory. The job log is the
// operator's answer to "what happened to the recording from this morning".
package jobs

import "time"

// Status is a job's lifecycle state.
type Status string

// Job statuses.
const (
	StatusRunning      Status = "running"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusDeduplicated Status = "deduplicated"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusDeduplicated
}

// Job is one accepted transcript submission.
type Job struct {
	ID           string
	Title        string
	Filename     string
	Fingerprint  string
	Mode         string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
