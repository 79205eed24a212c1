// Package sprint runs batch evidence scans: one resume scored against up to
// ten job cards for a flat credit fee. Items fail independently; the fee is
// refunded only when every item fails.
package sprint

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/gate"
	"github.com/martin/jobpilot/internal/ratelimit"
	"github.com/martin/jobpilot/internal/scoring"
	"github.com/martin/jobpilot/internal/types"
)

// maxConcurrentScans bounds the completion-call fan-out per sprint.
const maxConcurrentScans = 3

// Scorer runs one evidence scan. Satisfied by scoring.Service.
type Scorer interface {
	Score(ctx context.Context, userID, jobCardID, resumeID uuid.UUID) (*scoring.Result, error)
}

// Store is the sprint persistence surface.
type Store interface {
	GetResume(ctx context.Context, id uuid.UUID) (*db.Resume, error)
	CreateSprint(ctx context.Context, userID, resumeID uuid.UUID, jobCardIDs []uuid.UUID) (*types.Sprint, error)
	GetSprint(ctx context.Context, sprintID uuid.UUID) (*types.Sprint, error)
	CompleteSprintItem(ctx context.Context, itemID, runID uuid.UUID, score float64) error
	FailSprintItem(ctx context.Context, itemID uuid.UUID, code types.ErrorCode) error
	FinishSprint(ctx context.Context, sprintID uuid.UUID, status types.RunStatus) error
	ResetSprintItems(ctx context.Context, sprintID uuid.UUID) ([]types.SprintItem, error)
}

// Service orchestrates sprints.
type Service struct {
	store  Store
	scorer Scorer
	gate   *gate.Gate
	log    *zap.Logger
}

func NewService(store Store, scorer Scorer, g *gate.Gate, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, scorer: scorer, gate: g, log: log}
}

// Run creates and executes a sprint over the given job cards. The flat fee
// is debited up front; every item failing refunds it in full. Individual
// item failures are recorded on the item, never propagated.
func (s *Service) Run(ctx context.Context, userID, resumeID uuid.UUID, jobCardIDs []uuid.UUID) (*types.Sprint, error) {
	if err := validateCards(jobCardIDs); err != nil {
		return nil, err
	}

	resume, err := s.store.GetResume(ctx, resumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume: %w", err)
	}
	if resume == nil || strings.TrimSpace(resume.Text) == "" {
		return nil, &types.ValidationError{
			Code:    types.CodeNoResume,
			Message: "resume not found or has no text",
		}
	}

	sprint, err := s.store.CreateSprint(ctx, userID, resumeID, jobCardIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create sprint: %w", err)
	}

	err = s.gate.Run(ctx, gate.Metered{
		UserID:       userID,
		Family:       ratelimit.FamilySprint,
		Cost:         types.CostSprint,
		Reason:       types.ReasonSprint,
		OperationKey: gate.Key("sprint", sprint.ID),
	}, func(ctx context.Context) error {
		return s.execute(ctx, sprint)
	})
	if err != nil {
		if finishErr := s.store.FinishSprint(ctx, sprint.ID, types.RunFailed); finishErr != nil {
			s.log.Error("failed to mark sprint failed",
				zap.String("sprint_id", sprint.ID.String()),
				zap.Error(finishErr))
		}
		return nil, err
	}

	return s.store.GetSprint(ctx, sprint.ID)
}

// Retry re-runs only the failed items of a finished sprint. Retries are
// free; the flat fee covered the sprint already.
func (s *Service) Retry(ctx context.Context, userID, sprintID uuid.UUID) (*types.Sprint, error) {
	sprint, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sprint: %w", err)
	}
	if sprint == nil {
		return nil, &types.ValidationError{Code: types.CodeNotFound, Message: "sprint not found"}
	}
	if sprint.UserID != userID {
		return nil, &types.ValidationError{Code: types.CodeNotFound, Message: "sprint not found"}
	}

	items, err := s.store.ResetSprintItems(ctx, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to reset sprint items: %w", err)
	}
	if len(items) == 0 {
		return sprint, nil
	}

	err = s.gate.Run(ctx, gate.Metered{
		UserID: userID,
		Family: ratelimit.FamilySprint,
	}, func(ctx context.Context) error {
		retry := *sprint
		retry.Items = items
		return s.execute(ctx, &retry)
	})
	if err != nil {
		return nil, err
	}

	return s.store.GetSprint(ctx, sprintID)
}

// execute fans the pending items out over the scorer and records each
// outcome. It returns an error only when every item failed, which is what
// drives the full refund.
func (s *Service) execute(ctx context.Context, sprint *types.Sprint) error {
	succeeded := make([]bool, len(sprint.Items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScans)
	for i, item := range sprint.Items {
		g.Go(func() error {
			result, scoreErr := s.scorer.Score(ctx, sprint.UserID, item.JobCardID, sprint.ResumeID)
			if scoreErr != nil {
				s.log.Warn("sprint item failed",
					zap.String("sprint_id", sprint.ID.String()),
					zap.String("job_card_id", item.JobCardID.String()),
					zap.Error(scoreErr))
				if err := s.store.FailSprintItem(ctx, item.ID, types.CodeOf(scoreErr)); err != nil {
					return fmt.Errorf("failed to record item failure: %w", err)
				}
				return nil
			}
			if err := s.store.CompleteSprintItem(ctx, item.ID, result.Run.ID, result.Run.OverallScore); err != nil {
				return fmt.Errorf("failed to record item result: %w", err)
			}
			succeeded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	anySucceeded := false
	for _, ok := range succeeded {
		anySucceeded = anySucceeded || ok
	}
	if !anySucceeded {
		if err := s.store.FinishSprint(ctx, sprint.ID, types.RunFailed); err != nil {
			return fmt.Errorf("failed to finish sprint: %w", err)
		}
		return &types.UpstreamError{Op: "run sprint", Cause: fmt.Errorf("all %d items failed", len(sprint.Items))}
	}
	if err := s.store.FinishSprint(ctx, sprint.ID, types.RunCompleted); err != nil {
		return fmt.Errorf("failed to finish sprint: %w", err)
	}
	return nil
}

func validateCards(jobCardIDs []uuid.UUID) error {
	if len(jobCardIDs) == 0 {
		return &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: "a sprint needs at least one job card",
		}
	}
	if len(jobCardIDs) > types.MaxSprintSize {
		return &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("a sprint covers at most %d job cards, got %d", types.MaxSprintSize, len(jobCardIDs)),
		}
	}
	seen := make(map[uuid.UUID]bool, len(jobCardIDs))
	for _, id := range jobCardIDs {
		if seen[id] {
			return &types.ValidationError{
				Code:    types.CodeInvalidInput,
				Message: fmt.Sprintf("duplicate job card %s", id),
			}
		}
		seen[id] = true
	}
	return nil
}
