// Package types defines the shared domain model for the application pipeline.
// Closed vocabularies are modelled as typed constants with explicit Valid
// checks so every persistence and generation boundary can match exhaustively.
package types

import (
	"time"

	"github.com/google/uuid"
)

// RequirementType classifies one parsed demand from a job description.
// The same vocabulary is used for EvidenceItem group types and for the
// region-pack weight categories, so the three can never drift apart.
type RequirementType string

const (
	RequirementSkill          RequirementType = "skill"
	RequirementTool           RequirementType = "tool"
	RequirementResponsibility RequirementType = "responsibility"
	RequirementSoftSkill      RequirementType = "softskill"
	RequirementEligibility    RequirementType = "eligibility"
)

// AllRequirementTypes lists the closed vocabulary in a stable order.
var AllRequirementTypes = []RequirementType{
	RequirementSkill,
	RequirementTool,
	RequirementResponsibility,
	RequirementSoftSkill,
	RequirementEligibility,
}

// Valid reports whether the value is part of the closed vocabulary.
func (rt RequirementType) Valid() bool {
	switch rt {
	case RequirementSkill, RequirementTool, RequirementResponsibility,
		RequirementSoftSkill, RequirementEligibility:
		return true
	default:
		return false
	}
}

// ParseRequirementType converts a raw string (typically from an LLM response)
// into a RequirementType. The second return is false for anything outside the
// vocabulary; callers drop such items rather than guessing.
func ParseRequirementType(s string) (RequirementType, bool) {
	rt := RequirementType(s)
	if rt.Valid() {
		return rt, true
	}
	return "", false
}

// JdSnapshot is an immutable text capture of a job posting. A job card owns a
// sequence of snapshots with a monotonically increasing version; extraction
// always works from the latest one.
type JdSnapshot struct {
	ID        uuid.UUID `json:"id"`
	JobCardID uuid.UUID `json:"job_card_id"`
	Version   int       `json:"version"`
	Text      string    `json:"text"`
	SourceURL *string   `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Requirement is one parsed demand extracted from a JD snapshot. The full set
// for a job card is replaced, never appended to, on re-extraction.
type Requirement struct {
	ID        uuid.UUID       `json:"id"`
	JobCardID uuid.UUID       `json:"job_card_id"`
	Type      RequirementType `json:"requirement_type"`
	Text      string          `json:"requirement_text"`
	CreatedAt time.Time       `json:"created_at"`
}
