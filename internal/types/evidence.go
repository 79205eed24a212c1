package types

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an evidence run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Valid reports whether the value is part of the closed vocabulary.
func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunCompleted, RunFailed:
		return true
	default:
		return false
	}
}

// EvidenceStatus is the verdict for one requirement against the resume.
type EvidenceStatus string

const (
	EvidenceMatched EvidenceStatus = "matched"
	EvidencePartial EvidenceStatus = "partial"
	EvidenceMissing EvidenceStatus = "missing"
)

// Valid reports whether the value is part of the closed vocabulary.
func (s EvidenceStatus) Valid() bool {
	switch s {
	case EvidenceMatched, EvidencePartial, EvidenceMissing:
		return true
	default:
		return false
	}
}

// ParseEvidenceStatus converts a raw string into an EvidenceStatus.
func ParseEvidenceStatus(s string) (EvidenceStatus, bool) {
	es := EvidenceStatus(s)
	if es.Valid() {
		return es, true
	}
	return "", false
}

// CategoryScore is one weighted category of the score breakdown.
type CategoryScore struct {
	Score       float64 `json:"score"` // 0-100
	Explanation string  `json:"explanation"`
}

// EvidenceCounts holds the matched/partial/missing tally for the
// evidence-strength category.
type EvidenceCounts struct {
	Matched int `json:"matched"`
	Partial int `json:"partial"`
	Missing int `json:"missing"`
}

// EligibilityFlag is one triggered eligibility or work-authorization rule.
type EligibilityFlag struct {
	RuleID   string  `json:"rule_id"`
	Title    string  `json:"title"`
	Guidance string  `json:"guidance"`
	Penalty  float64 `json:"penalty"` // score points subtracted
}

// ScoreBreakdown is the per-category explanation attached to a run. The
// evidence-strength score is recomputed from item verdicts and the pack
// weight vector; the remaining three categories come from the model.
type ScoreBreakdown struct {
	EvidenceStrength CategoryScore  `json:"evidence_strength"`
	EvidenceCounts   EvidenceCounts `json:"evidence_counts"`
	KeywordCoverage  CategoryScore  `json:"keyword_coverage"`
	Formatting       CategoryScore  `json:"formatting"`
	RoleFit          CategoryScore  `json:"role_fit"`

	Flags             []string          `json:"flags,omitempty"`
	WorkAuthorization []EligibilityFlag `json:"work_authorization,omitempty"`
}

// EvidenceRun is one scoring pass for a (job card, resume) pair.
type EvidenceRun struct {
	ID           uuid.UUID      `json:"id"`
	JobCardID    uuid.UUID      `json:"job_card_id"`
	ResumeID     uuid.UUID      `json:"resume_id"`
	UserID       uuid.UUID      `json:"user_id"`
	Status       RunStatus      `json:"status"`
	OverallScore float64        `json:"overall_score"` // 0-100
	Breakdown    ScoreBreakdown `json:"score_breakdown"`
	PackKey      string         `json:"pack_key"` // region/track pack used
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// EvidenceItem is the verdict for one requirement that was active when the
// run was created. A completed run always has exactly one item per
// requirement.
type EvidenceItem struct {
	ID            uuid.UUID       `json:"id"`
	RunID         uuid.UUID       `json:"run_id"`
	RequirementID uuid.UUID       `json:"requirement_id"`
	Status        EvidenceStatus  `json:"status"`
	GroupType     RequirementType `json:"group_type"`
	ResumeProof   string          `json:"resume_proof"`
	Fix           string          `json:"fix"`
	RewriteA      string          `json:"rewrite_a"`
	RewriteB      string          `json:"rewrite_b"`
	WhyItMatters  string          `json:"why_it_matters"`

	// NeedsConfirmation is true when a rewrite asserts a claim the resume
	// proof does not support; the user must confirm before using it.
	NeedsConfirmation bool `json:"needs_confirmation"`
}

// ScoreHistoryEntry is one point on the per-(job card, resume) timeline,
// appended in the same transaction that completes a run.
type ScoreHistoryEntry struct {
	ID        uuid.UUID `json:"id"`
	JobCardID uuid.UUID `json:"job_card_id"`
	ResumeID  uuid.UUID `json:"resume_id"`
	RunID     uuid.UUID `json:"run_id"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}
