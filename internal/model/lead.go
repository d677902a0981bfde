package model

import "time"

type JobState string

const (
	JobInProgress JobState = "in_progress"
	JobCompleted  JobState = "completed"
	JobError      JobState = "error"
)

// Lead is the list record a collection job fills in.
type Lead struct {
	ID            string
	TargetProfile string
	Status        JobState
	Items         []Recipient
	ItemCount     int
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobStatus is the polled snapshot of a collection job.
type JobStatus struct {
	Status        JobState  `json:"status"`
	Message       string    `json:"message,omitempty"`
	Count         *int      `json:"count,omitempty"`
	LeadID        string    `json:"leadId,omitempty"`
	TargetProfile string    `json:"targetProfile,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
