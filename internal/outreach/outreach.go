// Package outreach generates the four-message pack for a job card and
// applies the deterministic guardrails the model cannot be trusted with:
// salutations, contact-line injection, placeholder stripping, and phrase
// sanitization.
package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/llm"
	"github.com/martin/jobpilot/internal/packs"
	"github.com/martin/jobpilot/internal/prompts"
	"github.com/martin/jobpilot/internal/schemas"
	"github.com/martin/jobpilot/internal/types"
)

// Store is the persistence surface outreach needs.
type Store interface {
	GetJobCard(ctx context.Context, id uuid.UUID) (*db.JobCard, error)
	GetContact(ctx context.Context, id uuid.UUID) (*types.Contact, error)
	GetWorkAuthProfile(ctx context.Context, userID uuid.UUID) (*db.WorkAuthProfile, error)
	LatestSnapshot(ctx context.Context, jobCardID uuid.UUID) (*types.JdSnapshot, error)
	ListPersonalizationSources(ctx context.Context, jobCardID uuid.UUID) ([]types.PersonalizationSource, error)
	AddPersonalizationSource(ctx context.Context, input *db.NewPersonalizationSource) (*types.PersonalizationSource, error)
	ReplaceOutreachPack(ctx context.Context, input *db.NewOutreachPack) (*types.OutreachPack, error)
	GetOutreachPack(ctx context.Context, jobCardID uuid.UUID) (*types.OutreachPack, error)
}

// Service generates outreach packs.
type Service struct {
	store      Store
	client     llm.Client
	fetcher    Fetcher
	registry   *packs.Registry
	excerptCap int
	log        *zap.Logger
}

// NewService wires the outreach service. A nil fetcher disables URL-backed
// personalization sources.
func NewService(store Store, client llm.Client, fetcher Fetcher, registry *packs.Registry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:      store,
		client:     client,
		fetcher:    fetcher,
		registry:   registry,
		excerptCap: DefaultExcerptCap,
		log:        log,
	}
}

// Request carries outreach generation inputs. ContactID and Tone are
// optional.
type Request struct {
	UserID    uuid.UUID
	JobCardID uuid.UUID
	ContactID *uuid.UUID
	Tone      types.Tone
}

// modelPack mirrors the model's JSON response.
type modelPack struct {
	RecruiterEmail string `json:"recruiter_email"`
	LinkedInDM     string `json:"linkedin_dm"`
	FollowUp1      string `json:"follow_up_1"`
	FollowUp2      string `json:"follow_up_2"`
}

// Generate produces and stores an outreach pack. The stored pack replaces
// any prior pack for the job card wholesale.
func (s *Service) Generate(ctx context.Context, req *Request) (*types.OutreachPack, error) {
	card, err := s.store.GetJobCard(ctx, req.JobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job card: %w", err)
	}
	if card == nil {
		return nil, &types.ValidationError{Code: types.CodeNotFound, Message: "job card not found"}
	}

	var contact *types.Contact
	if req.ContactID != nil {
		contact, err = s.store.GetContact(ctx, *req.ContactID)
		if err != nil {
			return nil, fmt.Errorf("failed to load contact: %w", err)
		}
		if contact == nil {
			return nil, &types.ValidationError{Code: types.CodeNotFound, Message: "contact not found"}
		}
	}

	tone := req.Tone
	if tone == "" {
		tone = s.defaultTone(ctx, req.UserID)
	}
	if !tone.Valid() {
		return nil, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("unknown tone %q", tone),
		}
	}

	prompt, err := s.buildPrompt(ctx, req.UserID, card, contact, tone)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.CompleteJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, &types.UpstreamError{Op: "generate outreach pack", Cause: err}
	}

	parsed, err := parsePack(raw)
	if err != nil {
		s.log.Warn("outreach response rejected",
			zap.String("job_card_id", req.JobCardID.String()),
			zap.Error(err))
		return nil, err
	}

	sanitized := postProcess(parsed, contact)

	var contactID *uuid.UUID
	if contact != nil {
		contactID = &contact.ID
	}
	pack, err := s.store.ReplaceOutreachPack(ctx, &db.NewOutreachPack{
		JobCardID:      req.JobCardID,
		ContactID:      contactID,
		RecruiterEmail: sanitized.RecruiterEmail,
		LinkedInDM:     sanitized.LinkedInDM,
		FollowUp1:      sanitized.FollowUp1,
		FollowUp2:      sanitized.FollowUp2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store outreach pack: %w", err)
	}

	s.log.Info("outreach pack generated",
		zap.String("job_card_id", req.JobCardID.String()),
		zap.Bool("has_contact", contact != nil))
	return pack, nil
}

// defaultTone resolves the caller's pack default when no tone is supplied.
func (s *Service) defaultTone(ctx context.Context, userID uuid.UUID) types.Tone {
	if s.registry == nil {
		return types.ToneProfessional
	}
	region, track := "us", "early"
	profile, err := s.store.GetWorkAuthProfile(ctx, userID)
	if err == nil && profile != nil {
		region, track = profile.Region, profile.Track
	}
	if pack := s.registry.GetOrDefault(region, track); pack != nil {
		return pack.DefaultTone
	}
	return types.ToneProfessional
}

// Pack returns the stored outreach pack for a job card.
func (s *Service) Pack(ctx context.Context, jobCardID uuid.UUID) (*types.OutreachPack, error) {
	pack, err := s.store.GetOutreachPack(ctx, jobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outreach pack: %w", err)
	}
	if pack == nil {
		return nil, &types.ValidationError{
			Code:    types.CodeNotFound,
			Message: "no outreach pack for this job card",
		}
	}
	return pack, nil
}

// AddSource validates and stores one personalization source for a job card.
func (s *Service) AddSource(ctx context.Context, jobCardID uuid.UUID, sourceType types.SourceType, url, pastedText *string) (*types.PersonalizationSource, error) {
	if !sourceType.Valid() {
		return nil, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("unknown source type %q", sourceType),
		}
	}

	hasURL := url != nil && strings.TrimSpace(*url) != ""
	hasText := pastedText != nil && strings.TrimSpace(*pastedText) != ""
	if !hasURL && !hasText {
		return nil, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: "a personalization source needs a URL or pasted text",
		}
	}
	if hasText {
		n := len([]rune(strings.TrimSpace(*pastedText)))
		if n < types.PersonalizationTextMin || n > types.PersonalizationTextMax {
			return nil, &types.ValidationError{
				Code: types.CodeInvalidInput,
				Message: fmt.Sprintf("pasted text must be %d-%d characters, got %d",
					types.PersonalizationTextMin, types.PersonalizationTextMax, n),
			}
		}
	}

	return s.store.AddPersonalizationSource(ctx, &db.NewPersonalizationSource{
		JobCardID:  jobCardID,
		SourceType: sourceType,
		URL:        url,
		PastedText: pastedText,
	})
}

func (s *Service) buildPrompt(ctx context.Context, userID uuid.UUID, card *db.JobCard, contact *types.Contact, tone types.Tone) (string, error) {
	candidateName := "the candidate"
	profile, err := s.store.GetWorkAuthProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load profile: %w", err)
	}
	if profile != nil && strings.TrimSpace(profile.DisplayName) != "" {
		candidateName = profile.DisplayName
	}

	contactName := ""
	if contact != nil && contact.Name != nil {
		contactName = *contact.Name
	}

	jobSummary := fmt.Sprintf("%s at %s", card.RoleTitle, card.Company)
	if snapshot, err := s.store.LatestSnapshot(ctx, card.ID); err == nil && snapshot != nil {
		jobSummary = fmt.Sprintf("%s\n\n%s", jobSummary, llm.Truncate(snapshot.Text, 4000))
	}

	sources, err := s.store.ListPersonalizationSources(ctx, card.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load personalization sources: %w", err)
	}
	block := buildPersonalizationBlock(ctx, sources, s.fetcher, s.excerptCap, s.log)
	if block == "" {
		block = "None provided."
	}

	template := prompts.MustGet("outreach.json", "generate-pack")
	return prompts.Format(template, map[string]string{
		"Tone":                 string(tone),
		"Company":              card.Company,
		"RoleTitle":            card.RoleTitle,
		"ContactName":          contactName,
		"CandidateName":        candidateName,
		"JobSummary":           jobSummary,
		"PersonalizationBlock": block,
	}), nil
}

func parsePack(raw string) (*modelPack, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.OutreachResponse, []byte(cleaned)); err != nil {
		return nil, &types.UpstreamError{Op: "generate outreach pack", Cause: err}
	}
	var parsed modelPack
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, &types.UpstreamError{Op: "generate outreach pack", Cause: err}
	}
	return &parsed, nil
}

// postProcess applies every deterministic guardrail, in a fixed order, to
// whatever the model produced.
func postProcess(pack *modelPack, contact *types.Contact) *modelPack {
	contactName, email, linkedinURL := "", "", ""
	if contact != nil {
		if contact.Name != nil {
			contactName = *contact.Name
		}
		if contact.Email != nil {
			email = *contact.Email
		}
		if contact.LinkedInURL != nil {
			linkedinURL = *contact.LinkedInURL
		}
	}

	out := &modelPack{}

	// Recruiter email: deny-list, salutation, then the To: line on top.
	body := removeDeniedPhrases(stripAddressLines(pack.RecruiterEmail))
	body = applySalutation(body, ComputeSalutation(contactName, KindEmail))
	out.RecruiterEmail = fixContactEmail(body, email)

	// LinkedIn DM: casual register, LinkedIn: line on top.
	body = removeDeniedPhrases(stripAddressLines(pack.LinkedInDM))
	body = applySalutation(body, ComputeSalutation(contactName, KindLinkedIn))
	out.LinkedInDM = fixLinkedInURL(body, linkedinURL)

	// Follow-ups: email register, no address lines, and personalization
	// signals must not leak past the first touch.
	for i, followUp := range []string{pack.FollowUp1, pack.FollowUp2} {
		body = removeDeniedPhrases(stripAddressLines(followUp))
		body = removeLeakSentences(body)
		body = applySalutation(body, ComputeSalutation(contactName, KindEmail))
		if i == 0 {
			out.FollowUp1 = body
		} else {
			out.FollowUp2 = body
		}
	}
	return out
}
