package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/martin/jobpilot/internal/types"
)

// JobCard is the minimal job-card row the pipeline consumes. Full job-card
// CRUD lives in the tracker service; the pipeline only reads identity and
// display fields.
type JobCard struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Company   string    `json:"company"`
	RoleTitle string    `json:"role_title"`
	CreatedAt time.Time `json:"created_at"`
}

// Resume is the plain-text resume row consumed from the resume store.
type Resume struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkAuthProfile carries the caller's work-authorization fields plus the
// region/track selection that resolves their scoring pack.
type WorkAuthProfile struct {
	UserID           uuid.UUID `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	Region           string    `json:"region"`
	Track            string    `json:"track"`
	VisaStatus       *string   `json:"visa_status,omitempty"`
	NeedsSponsorship bool      `json:"needs_sponsorship"`
}

// NewRequirement is the input shape for a replace-requirements write.
type NewRequirement struct {
	Type types.RequirementType
	Text string
}

// NewEvidenceItem is the input shape for one evidence item inside a
// completed-run write.
type NewEvidenceItem struct {
	RequirementID     uuid.UUID
	Status            types.EvidenceStatus
	GroupType         types.RequirementType
	ResumeProof       string
	Fix               string
	RewriteA          string
	RewriteB          string
	WhyItMatters      string
	NeedsConfirmation bool
}

// NewCompletedRun is the input shape for persisting a successful scoring
// pass: the run row, every item, and the score-history append happen in one
// transaction.
type NewCompletedRun struct {
	JobCardID    uuid.UUID
	ResumeID     uuid.UUID
	UserID       uuid.UUID
	OverallScore float64
	Breakdown    types.ScoreBreakdown
	PackKey      string
	Items        []NewEvidenceItem
}

// NewPersonalizationSource is the input shape for adding a source.
type NewPersonalizationSource struct {
	JobCardID  uuid.UUID
	SourceType types.SourceType
	URL        *string
	PastedText *string
}

// NewOutreachPack is the input shape for a wholesale outreach-pack replace.
type NewOutreachPack struct {
	JobCardID      uuid.UUID
	ContactID      *uuid.UUID
	RecruiterEmail string
	LinkedInDM     string
	FollowUp1      string
	FollowUp2      string
}

// NewApplicationKit is the input shape for a wholesale kit upsert.
type NewApplicationKit struct {
	JobCardID      uuid.UUID
	ResumeID       uuid.UUID
	EvidenceRunID  uuid.UUID
	Tone           types.Tone
	TopChanges     []types.TopChange
	BulletRewrites []types.BulletRewrite
	CoverLetter    string
}
