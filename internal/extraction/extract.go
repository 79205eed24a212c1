// Package extraction turns a job description snapshot into typed
// requirements via LLM extraction.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/llm"
	"github.com/martin/jobpilot/internal/prompts"
	"github.com/martin/jobpilot/internal/schemas"
	"github.com/martin/jobpilot/internal/types"
)

// maxJobDescriptionChars bounds how much snapshot text goes into the prompt.
const maxJobDescriptionChars = 24000

// Store is the persistence surface extraction needs.
type Store interface {
	LatestSnapshot(ctx context.Context, jobCardID uuid.UUID) (*types.JdSnapshot, error)
	ReplaceRequirements(ctx context.Context, jobCardID uuid.UUID, reqs []db.NewRequirement) ([]types.Requirement, error)
}

// Service extracts requirements from the latest snapshot of a job card.
type Service struct {
	store  Store
	client llm.Client
	log    *zap.Logger
}

// NewService wires the extraction service.
func NewService(store Store, client llm.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, client: client, log: log}
}

// extractedRequirement mirrors one element of the model's response array.
type extractedRequirement struct {
	RequirementType string `json:"requirement_type"`
	RequirementText string `json:"requirement_text"`
}

// Extract runs requirement extraction for a job card and replaces its
// stored requirement set wholesale. Re-running extraction never appends to
// a stale set.
func (s *Service) Extract(ctx context.Context, jobCardID uuid.UUID) ([]types.Requirement, error) {
	snapshot, err := s.store.LatestSnapshot(ctx, jobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, &types.ValidationError{
			Code:    types.CodeNoSnapshot,
			Message: "job card has no job description snapshot",
		}
	}

	prompt := buildExtractionPrompt(snapshot.Text)
	raw, err := s.client.CompleteJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, &types.UpstreamError{Op: "extract requirements", Cause: err}
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		s.log.Warn("extraction response rejected",
			zap.String("job_card_id", jobCardID.String()),
			zap.Error(err))
		return nil, err
	}

	inputs := normalize(parsed)
	if len(inputs) == 0 {
		return nil, &types.ValidationError{
			Code:    types.CodeExtractionFailed,
			Message: "no usable requirements extracted from the job description",
		}
	}

	saved, err := s.store.ReplaceRequirements(ctx, jobCardID, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to save requirements: %w", err)
	}

	s.log.Info("requirements extracted",
		zap.String("job_card_id", jobCardID.String()),
		zap.Int("snapshot_version", snapshot.Version),
		zap.Int("count", len(saved)))
	return saved, nil
}

func buildExtractionPrompt(jobText string) string {
	template := prompts.MustGet("extraction.json", "extract-requirements")
	return prompts.Format(template, map[string]string{
		"JobDescription": llm.Truncate(jobText, maxJobDescriptionChars),
	})
}

// parseResponse validates and decodes the model output. Any schema or JSON
// failure is an extraction failure, not a server bug.
func parseResponse(raw string) ([]extractedRequirement, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.ExtractionResponse, []byte(cleaned)); err != nil {
		return nil, &types.ValidationError{
			Code:    types.CodeExtractionFailed,
			Message: fmt.Sprintf("model returned an invalid extraction response: %v", err),
		}
	}

	var parsed []extractedRequirement
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, &types.ValidationError{
			Code:    types.CodeExtractionFailed,
			Message: fmt.Sprintf("model returned malformed JSON: %v", err),
		}
	}
	return parsed, nil
}

// normalize drops unknown types and blanks, trims whitespace, and removes
// case-insensitive duplicates while preserving first-seen order.
func normalize(parsed []extractedRequirement) []db.NewRequirement {
	seen := make(map[string]bool)
	var inputs []db.NewRequirement
	for _, r := range parsed {
		reqType, ok := types.ParseRequirementType(strings.ToLower(strings.TrimSpace(r.RequirementType)))
		if !ok {
			continue
		}
		text := strings.TrimSpace(r.RequirementText)
		if text == "" {
			continue
		}
		key := string(reqType) + "|" + strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		inputs = append(inputs, db.NewRequirement{Type: reqType, Text: text})
	}
	return inputs
}
