package types

import (
	"time"

	"github.com/google/uuid"
)

// Tone selects the voice for generated prose.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneDirect       Tone = "direct"
	ToneEnthusiastic Tone = "enthusiastic"
)

// Valid reports whether the value is part of the closed vocabulary.
func (t Tone) Valid() bool {
	switch t {
	case ToneProfessional, ToneFriendly, ToneDirect, ToneEnthusiastic:
		return true
	default:
		return false
	}
}

// ParseTone converts a raw string into a Tone.
func ParseTone(s string) (Tone, bool) {
	t := Tone(s)
	if t.Valid() {
		return t, true
	}
	return "", false
}

// TopChange is one priority-ordered resume improvement: a missing or partial
// requirement with a one-line fix.
type TopChange struct {
	RequirementID   uuid.UUID       `json:"requirement_id"`
	RequirementText string          `json:"requirement_text"`
	GroupType       RequirementType `json:"group_type"`
	Status          EvidenceStatus  `json:"status"`
	Fix             string          `json:"fix"`
}

// BulletRewrite carries two independently phrased variants for one gap.
type BulletRewrite struct {
	RequirementID   uuid.UUID `json:"requirement_id"`
	RequirementText string    `json:"requirement_text"`
	RewriteA        string    `json:"rewrite_a"`
	RewriteB        string    `json:"rewrite_b"`

	// NeedsConfirmation mirrors the evidence item: true when a variant makes
	// a claim the resume proof does not back up.
	NeedsConfirmation bool `json:"needs_confirmation"`
}

// ApplicationKit is the generated resume-improvement bundle for one
// (job card, resume, evidence run) key. At most one live kit exists per key;
// regeneration overwrites the whole row.
type ApplicationKit struct {
	ID             uuid.UUID       `json:"id"`
	JobCardID      uuid.UUID       `json:"job_card_id"`
	ResumeID       uuid.UUID       `json:"resume_id"`
	EvidenceRunID  uuid.UUID       `json:"evidence_run_id"`
	Tone           Tone            `json:"tone"`
	TopChanges     []TopChange     `json:"top_changes"`
	BulletRewrites []BulletRewrite `json:"bullet_rewrites"`
	CoverLetter    string          `json:"cover_letter"`
	CreatedAt      time.Time       `json:"created_at"`
}
