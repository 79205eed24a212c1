// Package scoring runs evidence scans: the model grades each requirement
// against the resume and the final score is recomputed deterministically
// from those verdicts.
package scoring

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

const maxResumeChars = 24000

// Store is the persistence surface scoring needs.
type Store interface {
	ListRequirements(ctx context.Context, jobCardID uuid.UUID) ([]types.Requirement, error)
	GetResume(ctx context.Context, id uuid.UUID) (*db.Resume, error)
	GetWorkAuthProfile(ctx context.Context, userID uuid.UUID) (*db.WorkAuthProfile, error)
	SaveCompletedRun(ctx context.Context, input *db.NewCompletedRun) (*types.EvidenceRun, error)
}

// Service scores a resume against a job card's requirement set.
type Service struct {
	store    Store
	client   llm.Client
	registry *packs.Registry
	log      *zap.Logger
}

// NewService wires the scoring service.
func NewService(store Store, client llm.Client, registry *packs.Registry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, client: client, registry: registry, log: log}
}

// Result is a completed run with its items.
type Result struct {
	Run   *types.EvidenceRun
	Items []types.EvidenceItem
}

// modelItem mirrors one element of the model's items array.
type modelItem struct {
	RequirementID     string `json:"requirement_id"`
	Status            string `json:"status"`
	GroupType         string `json:"group_type"`
	ResumeProof       string `json:"resume_proof"`
	Fix               string `json:"fix"`
	RewriteA          string `json:"rewrite_a"`
	RewriteB          string `json:"rewrite_b"`
	WhyItMatters      string `json:"why_it_matters"`
	NeedsConfirmation bool   `json:"needs_confirmation"`
}

type modelCategory struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

type modelResponse struct {
	Items     []modelItem `json:"items"`
	Breakdown struct {
		EvidenceStrength modelCategory `json:"evidence_strength"`
		KeywordCoverage  modelCategory `json:"keyword_coverage"`
		Formatting       modelCategory `json:"formatting"`
		RoleFit          modelCategory `json:"role_fit"`
	} `json:"breakdown"`
	Flags             []string `json:"flags"`
	WorkAuthorization []struct {
		RuleID string `json:"rule_id"`
	} `json:"work_authorization"`
}

// Score runs one evidence scan and persists the completed run, its items,
// and the score-history point in a single transaction. A failed scan
// persists nothing.
func (s *Service) Score(ctx context.Context, userID, jobCardID, resumeID uuid.UUID) (*Result, error) {
	requirements, err := s.store.ListRequirements(ctx, jobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load requirements: %w", err)
	}
	if len(requirements) == 0 {
		return nil, &types.ValidationError{
			Code:    types.CodeNoRequirements,
			Message: "job card has no extracted requirements; run extraction first",
		}
	}

	resume, err := s.store.GetResume(ctx, resumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume: %w", err)
	}
	if resume == nil {
		return nil, &types.ValidationError{
			Code:    types.CodeNoResume,
			Message: "resume not found",
		}
	}
	if strings.TrimSpace(resume.Text) == "" {
		return nil, &types.ValidationError{
			Code:    types.CodeNoResume,
			Message: "resume has no text",
		}
	}

	profile, err := s.store.GetWorkAuthProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	pack := s.resolvePack(profile)

	prompt, err := buildPrompt(requirements, resume.Text, pack, profile)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.CompleteJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, &types.UpstreamError{Op: "score evidence", Cause: err}
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		s.log.Warn("scoring response rejected",
			zap.String("job_card_id", jobCardID.String()),
			zap.Error(err))
		return nil, err
	}

	items, verdicts, err := reconcileItems(parsed.Items, requirements)
	if err != nil {
		return nil, err
	}

	flags := resolveFlags(parsed.WorkAuthorization, pack)
	evidence, counts := evidenceScore(verdicts, pack)
	overall := overallScore(evidence,
		parsed.Breakdown.KeywordCoverage.Score,
		parsed.Breakdown.Formatting.Score,
		parsed.Breakdown.RoleFit.Score,
		flags)

	breakdown := types.ScoreBreakdown{
		EvidenceStrength: types.CategoryScore{
			Score:       evidence,
			Explanation: parsed.Breakdown.EvidenceStrength.Explanation,
		},
		EvidenceCounts:    counts,
		KeywordCoverage:   types.CategoryScore{Score: clamp(parsed.Breakdown.KeywordCoverage.Score), Explanation: parsed.Breakdown.KeywordCoverage.Explanation},
		Formatting:        types.CategoryScore{Score: clamp(parsed.Breakdown.Formatting.Score), Explanation: parsed.Breakdown.Formatting.Explanation},
		RoleFit:           types.CategoryScore{Score: clamp(parsed.Breakdown.RoleFit.Score), Explanation: parsed.Breakdown.RoleFit.Explanation},
		Flags:             parsed.Flags,
		WorkAuthorization: flags,
	}

	run, err := s.store.SaveCompletedRun(ctx, &db.NewCompletedRun{
		JobCardID:    jobCardID,
		ResumeID:     resumeID,
		UserID:       userID,
		OverallScore: overall,
		Breakdown:    breakdown,
		PackKey:      pack.Key,
		Items:        items,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	s.log.Info("evidence scan completed",
		zap.String("run_id", run.ID.String()),
		zap.String("job_card_id", jobCardID.String()),
		zap.String("pack", pack.Key),
		zap.Float64("overall_score", overall))

	saved := make([]types.EvidenceItem, len(items))
	for i, item := range items {
		saved[i] = types.EvidenceItem{
			RunID:             run.ID,
			RequirementID:     item.RequirementID,
			Status:            item.Status,
			GroupType:         item.GroupType,
			ResumeProof:       item.ResumeProof,
			Fix:               item.Fix,
			RewriteA:          item.RewriteA,
			RewriteB:          item.RewriteB,
			WhyItMatters:      item.WhyItMatters,
			NeedsConfirmation: item.NeedsConfirmation,
		}
	}
	return &Result{Run: run, Items: saved}, nil
}

// resolvePack maps the user's profile to a scoring pack. Missing profiles
// and unknown region/track combinations fall back rather than fail.
func (s *Service) resolvePack(profile *db.WorkAuthProfile) *packs.Pack {
	region, track := "us", "early"
	if profile != nil {
		region, track = profile.Region, profile.Track
	}
	return s.registry.GetOrDefault(region, track)
}

func buildPrompt(requirements []types.Requirement, resumeText string, pack *packs.Pack, profile *db.WorkAuthProfile) (string, error) {
	var reqLines strings.Builder
	for _, r := range requirements {
		fmt.Fprintf(&reqLines, "%s | %s | %s\n", r.ID, r.Type, r.Text)
	}

	weightsJSON, err := json.Marshal(pack.Weights)
	if err != nil {
		return "", fmt.Errorf("failed to marshal weights: %w", err)
	}
	rulesJSON, err := json.Marshal(pack.Rules)
	if err != nil {
		return "", fmt.Errorf("failed to marshal eligibility rules: %w", err)
	}

	authLine := "No work authorization profile on file."
	if profile != nil {
		visa := "unknown"
		if profile.VisaStatus != nil {
			visa = *profile.VisaStatus
		}
		authLine = fmt.Sprintf("Region: %s. Visa status: %s. Needs sponsorship: %t.",
			profile.Region, visa, profile.NeedsSponsorship)
	}

	template := prompts.MustGet("scoring.json", "score-evidence")
	return prompts.Format(template, map[string]string{
		"Requirements":     reqLines.String(),
		"ResumeText":       llm.Truncate(resumeText, maxResumeChars),
		"Weights":          string(weightsJSON),
		"EligibilityRules": string(rulesJSON),
		"WorkAuthProfile":  authLine,
	}), nil
}

func parseResponse(raw string) (*modelResponse, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.EvidenceResponse, []byte(cleaned)); err != nil {
		return nil, &types.UpstreamError{Op: "score evidence", Cause: err}
	}
	var parsed modelResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, &types.UpstreamError{Op: "score evidence", Cause: err}
	}
	return &parsed, nil
}

// reconcileItems enforces exactly one verdict per stored requirement. The
// group type always comes from the stored requirement, never the model.
// Verdicts for unknown requirements are dropped; a missing or duplicate
// verdict fails the scan.
func reconcileItems(modelItems []modelItem, requirements []types.Requirement) ([]db.NewEvidenceItem, []verdict, error) {
	byID := make(map[uuid.UUID]types.Requirement, len(requirements))
	for _, r := range requirements {
		byID[r.ID] = r
	}

	picked := make(map[uuid.UUID]modelItem, len(requirements))
	for _, item := range modelItems {
		id, err := uuid.Parse(item.RequirementID)
		if err != nil {
			continue
		}
		req, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := picked[req.ID]; dup {
			return nil, nil, &types.UpstreamError{
				Op:    "score evidence",
				Cause: fmt.Errorf("duplicate verdict for requirement %s", req.ID),
			}
		}
		picked[req.ID] = item
	}

	items := make([]db.NewEvidenceItem, 0, len(requirements))
	verdicts := make([]verdict, 0, len(requirements))
	for _, req := range requirements {
		item, ok := picked[req.ID]
		if !ok {
			return nil, nil, &types.UpstreamError{
				Op:    "score evidence",
				Cause: fmt.Errorf("no verdict for requirement %s", req.ID),
			}
		}
		status, ok := types.ParseEvidenceStatus(item.Status)
		if !ok {
			return nil, nil, &types.UpstreamError{
				Op:    "score evidence",
				Cause: fmt.Errorf("invalid status %q for requirement %s", item.Status, req.ID),
			}
		}
		items = append(items, db.NewEvidenceItem{
			RequirementID:     req.ID,
			Status:            status,
			GroupType:         req.Type,
			ResumeProof:       item.ResumeProof,
			Fix:               item.Fix,
			RewriteA:          item.RewriteA,
			RewriteB:          item.RewriteB,
			WhyItMatters:      item.WhyItMatters,
			NeedsConfirmation: item.NeedsConfirmation,
		})
		verdicts = append(verdicts, verdict{Group: req.Type, Status: status})
	}
	return items, verdicts, nil
}

// resolveFlags keeps only flags whose rule exists in the pack, with the
// penalty and guidance taken from the pack rather than the model.
func resolveFlags(reported []struct {
	RuleID string `json:"rule_id"`
}, pack *packs.Pack) []types.EligibilityFlag {
	rules := make(map[string]packs.EligibilityRule, len(pack.Rules))
	for _, r := range pack.Rules {
		rules[r.RuleID] = r
	}

	var flags []types.EligibilityFlag
	seen := make(map[string]bool)
	for _, f := range reported {
		rule, ok := rules[f.RuleID]
		if !ok || seen[f.RuleID] {
			continue
		}
		seen[f.RuleID] = true
		flags = append(flags, types.EligibilityFlag{
			RuleID:   rule.RuleID,
			Title:    rule.Title,
			Guidance: rule.Guidance,
			Penalty:  rule.Penalty,
		})
	}
	return flags
}
