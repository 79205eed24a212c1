package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/martin/jobpilot/internal/types"
)

// SaveCompletedRun persists one successful scoring pass atomically: the run
// row, one evidence item per requirement, and the score-history append all
// commit together or not at all.
func (db *DB) SaveCompletedRun(ctx context.Context, input *NewCompletedRun) (*types.EvidenceRun, error) {
	breakdownJSON, err := json.Marshal(input.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	var run types.EvidenceRun
	err = db.withTx(ctx, func(tx pgx.Tx) error {
		var breakdownRaw []byte
		err := tx.QueryRow(ctx,
			`INSERT INTO evidence_runs
			   (job_card_id, resume_id, user_id, status, overall_score, score_breakdown, pack_key, completed_at)
			 VALUES ($1, $2, $3, 'completed', $4, $5, $6, NOW())
			 RETURNING id, job_card_id, resume_id, user_id, status, overall_score, score_breakdown, pack_key, created_at, completed_at`,
			input.JobCardID, input.ResumeID, input.UserID, input.OverallScore, breakdownJSON, input.PackKey,
		).Scan(&run.ID, &run.JobCardID, &run.ResumeID, &run.UserID, &run.Status,
			&run.OverallScore, &breakdownRaw, &run.PackKey, &run.CreatedAt, &run.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		if err := json.Unmarshal(breakdownRaw, &run.Breakdown); err != nil {
			return fmt.Errorf("failed to unmarshal breakdown: %w", err)
		}

		for _, item := range input.Items {
			_, err := tx.Exec(ctx,
				`INSERT INTO evidence_items
				   (run_id, requirement_id, status, group_type, resume_proof, fix,
				    rewrite_a, rewrite_b, why_it_matters, needs_confirmation)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				run.ID, item.RequirementID, string(item.Status), string(item.GroupType),
				item.ResumeProof, item.Fix, item.RewriteA, item.RewriteB,
				item.WhyItMatters, item.NeedsConfirmation,
			)
			if err != nil {
				return fmt.Errorf("failed to insert evidence item: %w", err)
			}
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO score_history (job_card_id, resume_id, run_id, score)
			 VALUES ($1, $2, $3, $4)`,
			input.JobCardID, input.ResumeID, run.ID, input.OverallScore,
		); err != nil {
			return fmt.Errorf("failed to append score history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves an evidence run by ID, or nil when absent.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*types.EvidenceRun, error) {
	var run types.EvidenceRun
	var breakdownRaw []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, job_card_id, resume_id, user_id, status, overall_score,
		        score_breakdown, pack_key, created_at, completed_at
		 FROM evidence_runs WHERE id = $1`,
		id,
	).Scan(&run.ID, &run.JobCardID, &run.ResumeID, &run.UserID, &run.Status,
		&run.OverallScore, &breakdownRaw, &run.PackKey, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if len(breakdownRaw) > 0 {
		if err := json.Unmarshal(breakdownRaw, &run.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
		}
	}
	return &run, nil
}

// ListEvidenceItems retrieves every item of a run.
func (db *DB) ListEvidenceItems(ctx context.Context, runID uuid.UUID) ([]types.EvidenceItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, requirement_id, status, group_type, resume_proof,
		        fix, rewrite_a, rewrite_b, why_it_matters, needs_confirmation
		 FROM evidence_items WHERE run_id = $1
		 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence items: %w", err)
	}
	defer rows.Close()

	var items []types.EvidenceItem
	for rows.Next() {
		var it types.EvidenceItem
		if err := rows.Scan(&it.ID, &it.RunID, &it.RequirementID, &it.Status, &it.GroupType,
			&it.ResumeProof, &it.Fix, &it.RewriteA, &it.RewriteB,
			&it.WhyItMatters, &it.NeedsConfirmation); err != nil {
			return nil, fmt.Errorf("failed to scan evidence item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListScoreHistory retrieves the score timeline for a (job card, resume)
// pair, oldest first.
func (db *DB) ListScoreHistory(ctx context.Context, jobCardID, resumeID uuid.UUID) ([]types.ScoreHistoryEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_card_id, resume_id, run_id, score, created_at
		 FROM score_history WHERE job_card_id = $1 AND resume_id = $2
		 ORDER BY created_at, id`,
		jobCardID, resumeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list score history: %w", err)
	}
	defer rows.Close()

	var entries []types.ScoreHistoryEntry
	for rows.Next() {
		var e types.ScoreHistoryEntry
		if err := rows.Scan(&e.ID, &e.JobCardID, &e.ResumeID, &e.RunID, &e.Score, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
