package types

import (
	"time"

	"github.com/google/uuid"
)

// SprintItem tracks one job card inside a batch scoring sprint. Items fail
// independently; a failed item carries the error code and no run.
type SprintItem struct {
	ID           uuid.UUID  `json:"id"`
	SprintID     uuid.UUID  `json:"sprintId"`
	JobCardID    uuid.UUID  `json:"jobCardId"`
	Status       RunStatus  `json:"status"`
	RunID        *uuid.UUID `json:"runId,omitempty"`
	OverallScore *float64   `json:"overallScore,omitempty"`
	ErrorCode    *string    `json:"errorCode,omitempty"`
}

// Sprint is a batch of evidence scans over one resume.
type Sprint struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"userId"`
	ResumeID    uuid.UUID    `json:"resumeId"`
	Status      RunStatus    `json:"status"`
	Items       []SprintItem `json:"items"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// MaxSprintSize caps how many job cards one sprint may cover.
const MaxSprintSize = 10
