// Package kit assembles the application kit for a completed evidence run:
// prioritized fixes, bullet rewrites, a cover letter, and deterministic
// export filenames.
package kit

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/llm"
	"github.com/martin/jobpilot/internal/packs"
	"github.com/martin/jobpilot/internal/prompts"
	"github.com/martin/jobpilot/internal/types"
)

// maxTopChanges caps the prioritized fix list.
const maxTopChanges = 5

// Store is the persistence surface kit generation needs.
type Store interface {
	GetRun(ctx context.Context, id uuid.UUID) (*types.EvidenceRun, error)
	ListEvidenceItems(ctx context.Context, runID uuid.UUID) ([]types.EvidenceItem, error)
	ListRequirements(ctx context.Context, jobCardID uuid.UUID) ([]types.Requirement, error)
	GetJobCard(ctx context.Context, id uuid.UUID) (*db.JobCard, error)
	GetResume(ctx context.Context, id uuid.UUID) (*db.Resume, error)
	GetWorkAuthProfile(ctx context.Context, userID uuid.UUID) (*db.WorkAuthProfile, error)
	GetKit(ctx context.Context, jobCardID, resumeID, runID uuid.UUID) (*types.ApplicationKit, error)
	UpsertKit(ctx context.Context, input *db.NewApplicationKit) (*types.ApplicationKit, error)
}

// Service generates application kits.
type Service struct {
	store    Store
	client   llm.Client
	registry *packs.Registry
	log      *zap.Logger
}

// NewService wires the kit service.
func NewService(store Store, client llm.Client, registry *packs.Registry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, client: client, registry: registry, log: log}
}

// Request carries the kit generation inputs. ConfirmOverwrite must be set
// to replace an existing kit for the same run.
type Request struct {
	UserID           uuid.UUID
	JobCardID        uuid.UUID
	ResumeID         uuid.UUID
	EvidenceRunID    uuid.UUID
	Tone             types.Tone
	ConfirmOverwrite bool
}

// Result is the stored kit plus its export filenames.
type Result struct {
	Kit                 *types.ApplicationKit
	ResumeFilename      string
	CoverLetterFilename string
}

// Generate builds and stores the kit for a completed evidence run. At most
// one kit exists per (job card, resume, run); regeneration overwrites the
// whole row and requires explicit confirmation.
func (s *Service) Generate(ctx context.Context, req *Request) (*Result, error) {
	run, err := s.store.GetRun(ctx, req.EvidenceRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil || run.JobCardID != req.JobCardID || run.ResumeID != req.ResumeID ||
		run.Status != types.RunCompleted {
		return nil, &types.ValidationError{
			Code:    types.CodeNoEvidenceRun,
			Message: "no completed evidence run for this job card and resume",
		}
	}

	existing, err := s.store.GetKit(ctx, req.JobCardID, req.ResumeID, req.EvidenceRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing kit: %w", err)
	}
	if existing != nil && !req.ConfirmOverwrite {
		return nil, &types.ConflictError{
			Message: "a kit already exists for this run; confirm to overwrite it",
		}
	}

	card, err := s.store.GetJobCard(ctx, req.JobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job card: %w", err)
	}
	if card == nil {
		return nil, &types.ValidationError{Code: types.CodeNotFound, Message: "job card not found"}
	}

	resume, err := s.store.GetResume(ctx, req.ResumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume: %w", err)
	}
	if resume == nil {
		return nil, &types.ValidationError{Code: types.CodeNoResume, Message: "resume not found"}
	}

	items, err := s.store.ListEvidenceItems(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence items: %w", err)
	}
	requirements, err := s.store.ListRequirements(ctx, req.JobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load requirements: %w", err)
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

	topChanges := buildTopChanges(items, requirements)
	rewrites := buildBulletRewrites(items, requirements)

	coverLetter, err := s.generateCoverLetter(ctx, tone, card, resume, items)
	if err != nil {
		return nil, err
	}

	kit, err := s.store.UpsertKit(ctx, &db.NewApplicationKit{
		JobCardID:      req.JobCardID,
		ResumeID:       req.ResumeID,
		EvidenceRunID:  req.EvidenceRunID,
		Tone:           tone,
		TopChanges:     topChanges,
		BulletRewrites: rewrites,
		CoverLetter:    coverLetter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store kit: %w", err)
	}

	displayName := s.displayName(ctx, req.UserID)
	resumeFile, coverFile := Filenames(displayName, card.Company, kit.CreatedAt)

	s.log.Info("application kit generated",
		zap.String("run_id", run.ID.String()),
		zap.String("job_card_id", req.JobCardID.String()),
		zap.Int("top_changes", len(topChanges)),
		zap.Int("bullet_rewrites", len(rewrites)))

	return &Result{
		Kit:                 kit,
		ResumeFilename:      resumeFile,
		CoverLetterFilename: coverFile,
	}, nil
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

func (s *Service) displayName(ctx context.Context, userID uuid.UUID) string {
	profile, err := s.store.GetWorkAuthProfile(ctx, userID)
	if err != nil || profile == nil || strings.TrimSpace(profile.DisplayName) == "" {
		return "Candidate"
	}
	return profile.DisplayName
}

// buildTopChanges picks the highest-impact gaps: missing requirements first,
// then partials, stable within each band, capped at maxTopChanges.
func buildTopChanges(items []types.EvidenceItem, requirements []types.Requirement) []types.TopChange {
	textByID := requirementTextIndex(requirements)

	var changes []types.TopChange
	for _, item := range items {
		if item.Status == types.EvidenceMatched {
			continue
		}
		changes = append(changes, types.TopChange{
			RequirementID:   item.RequirementID,
			RequirementText: textByID[item.RequirementID],
			GroupType:       item.GroupType,
			Status:          item.Status,
			Fix:             item.Fix,
		})
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Status == types.EvidenceMissing && changes[j].Status != types.EvidenceMissing
	})
	if len(changes) > maxTopChanges {
		changes = changes[:maxTopChanges]
	}
	return changes
}

// buildBulletRewrites carries both variants for every gap that has them.
func buildBulletRewrites(items []types.EvidenceItem, requirements []types.Requirement) []types.BulletRewrite {
	textByID := requirementTextIndex(requirements)

	var rewrites []types.BulletRewrite
	for _, item := range items {
		if item.Status == types.EvidenceMatched {
			continue
		}
		if item.RewriteA == "" || item.RewriteB == "" {
			continue
		}
		rewrites = append(rewrites, types.BulletRewrite{
			RequirementID:     item.RequirementID,
			RequirementText:   textByID[item.RequirementID],
			RewriteA:          item.RewriteA,
			RewriteB:          item.RewriteB,
			NeedsConfirmation: item.NeedsConfirmation,
		})
	}
	return rewrites
}

func requirementTextIndex(requirements []types.Requirement) map[uuid.UUID]string {
	idx := make(map[uuid.UUID]string, len(requirements))
	for _, r := range requirements {
		idx[r.ID] = r.Text
	}
	return idx
}

func (s *Service) generateCoverLetter(ctx context.Context, tone types.Tone, card *db.JobCard, resume *db.Resume, items []types.EvidenceItem) (string, error) {
	var strengths, gaps []string
	for _, item := range items {
		switch item.Status {
		case types.EvidenceMatched:
			if item.ResumeProof != "" {
				strengths = append(strengths, item.ResumeProof)
			}
		default:
			if item.WhyItMatters != "" {
				gaps = append(gaps, item.WhyItMatters)
			}
		}
	}

	template := prompts.MustGet("kit.json", "cover-letter")
	prompt := prompts.Format(template, map[string]string{
		"Tone":       string(tone),
		"Company":    card.Company,
		"RoleTitle":  card.RoleTitle,
		"Strengths":  strings.Join(strengths, "\n"),
		"Gaps":       strings.Join(gaps, "\n"),
		"ResumeText": llm.Truncate(resume.Text, 12000),
	})

	letter, err := s.client.Complete(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return "", &types.UpstreamError{Op: "generate cover letter", Cause: err}
	}
	letter = strings.TrimSpace(letter)
	if letter == "" {
		return "", &types.UpstreamError{
			Op:    "generate cover letter",
			Cause: fmt.Errorf("model returned an empty letter"),
		}
	}
	return letter, nil
}
