package types

import (
	"time"

	"github.com/google/uuid"
)

// SourceType classifies a personalization source.
type SourceType string

const (
	SourceCompanyNews SourceType = "company_news"
	SourceBlogPost    SourceType = "blog_post"
	SourceJobPosting  SourceType = "job_posting"
	SourceProfile     SourceType = "profile"
	SourceOther       SourceType = "other"
)

// Valid reports whether the value is part of the closed vocabulary.
func (s SourceType) Valid() bool {
	switch s {
	case SourceCompanyNews, SourceBlogPost, SourceJobPosting, SourceProfile, SourceOther:
		return true
	default:
		return false
	}
}

// Personalization source content bounds for pasted text.
const (
	PersonalizationTextMin = 50
	PersonalizationTextMax = 5000
)

// MaxPersonalizationSources caps stored sources per job card.
const MaxPersonalizationSources = 5

// PersonalizationSource is a user-supplied snippet used to add bounded
// context to outreach generation. Requires a URL or 50-5000 chars of pasted
// text.
type PersonalizationSource struct {
	ID         uuid.UUID  `json:"id"`
	JobCardID  uuid.UUID  `json:"job_card_id"`
	SourceType SourceType `json:"source_type"`
	URL        *string    `json:"url,omitempty"`
	PastedText *string    `json:"pasted_text,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Contact is the recruiter or hiring contact attached to outreach, consumed
// from the contact store.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	Name        *string   `json:"name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	LinkedInURL *string   `json:"linkedin_url,omitempty"`
}

// OutreachPack is the generated set of four messages for a job card. The
// latest generation replaces the prior one wholesale; there is no history.
type OutreachPack struct {
	ID             uuid.UUID  `json:"id"`
	JobCardID      uuid.UUID  `json:"job_card_id"`
	ContactID      *uuid.UUID `json:"contact_id,omitempty"`
	RecruiterEmail string     `json:"recruiter_email"`
	LinkedInDM     string     `json:"linkedin_dm"`
	FollowUp1      string     `json:"follow_up_1"`
	FollowUp2      string     `json:"follow_up_2"`
	CreatedAt      time.Time  `json:"created_at"`
}
