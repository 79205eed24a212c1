package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/martin/jobpilot/internal/types"
)

// CreateSprint records a new sprint and one item per job card in a single
// transaction.
func (db *DB) CreateSprint(ctx context.Context, userID, resumeID uuid.UUID, jobCardIDs []uuid.UUID) (*types.Sprint, error) {
	var sprint types.Sprint
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO sprints (user_id, resume_id, status)
			 VALUES ($1, $2, 'pending')
			 RETURNING id, user_id, resume_id, status, created_at`,
			userID, resumeID,
		).Scan(&sprint.ID, &sprint.UserID, &sprint.ResumeID, &sprint.Status, &sprint.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert sprint: %w", err)
		}

		for _, cardID := range jobCardIDs {
			var item types.SprintItem
			err := tx.QueryRow(ctx,
				`INSERT INTO sprint_items (sprint_id, job_card_id, status)
				 VALUES ($1, $2, 'pending')
				 RETURNING id, sprint_id, job_card_id, status`,
				sprint.ID, cardID,
			).Scan(&item.ID, &item.SprintID, &item.JobCardID, &item.Status)
			if err != nil {
				return fmt.Errorf("failed to insert sprint item: %w", err)
			}
			sprint.Items = append(sprint.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sprint, nil
}

// GetSprint retrieves a sprint with its items, or nil when absent.
func (db *DB) GetSprint(ctx context.Context, sprintID uuid.UUID) (*types.Sprint, error) {
	var sprint types.Sprint
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, resume_id, status, created_at, completed_at
		 FROM sprints WHERE id = $1`, sprintID,
	).Scan(&sprint.ID, &sprint.UserID, &sprint.ResumeID, &sprint.Status,
		&sprint.CreatedAt, &sprint.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sprint: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, sprint_id, job_card_id, status, run_id, overall_score, error_code
		 FROM sprint_items WHERE sprint_id = $1 ORDER BY created_at, id`,
		sprintID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sprint items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item types.SprintItem
		if err := rows.Scan(&item.ID, &item.SprintID, &item.JobCardID,
			&item.Status, &item.RunID, &item.OverallScore, &item.ErrorCode); err != nil {
			return nil, fmt.Errorf("failed to scan sprint item: %w", err)
		}
		sprint.Items = append(sprint.Items, item)
	}
	return &sprint, rows.Err()
}

// CompleteSprintItem marks an item succeeded and records the run it produced.
func (db *DB) CompleteSprintItem(ctx context.Context, itemID, runID uuid.UUID, score float64) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE sprint_items
		 SET status = 'completed', run_id = $2, overall_score = $3, error_code = NULL
		 WHERE id = $1`,
		itemID, runID, score,
	)
	if err != nil {
		return fmt.Errorf("failed to complete sprint item: %w", err)
	}
	return nil
}

// FailSprintItem marks an item failed with the error code callers report back.
func (db *DB) FailSprintItem(ctx context.Context, itemID uuid.UUID, code types.ErrorCode) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE sprint_items
		 SET status = 'failed', error_code = $2
		 WHERE id = $1`,
		itemID, string(code),
	)
	if err != nil {
		return fmt.Errorf("failed to fail sprint item: %w", err)
	}
	return nil
}

// FinishSprint sets the sprint's terminal status once every item settled.
func (db *DB) FinishSprint(ctx context.Context, sprintID uuid.UUID, status types.RunStatus) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE sprints
		 SET status = $2, completed_at = NOW()
		 WHERE id = $1`,
		sprintID, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to finish sprint: %w", err)
	}
	return nil
}

// ResetSprintItems returns failed items to pending for a retry pass. Items
// that already completed are left untouched.
func (db *DB) ResetSprintItems(ctx context.Context, sprintID uuid.UUID) ([]types.SprintItem, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE sprint_items
		 SET status = 'pending', error_code = NULL
		 WHERE sprint_id = $1 AND status = 'failed'
		 RETURNING id, sprint_id, job_card_id, status, run_id, overall_score, error_code`,
		sprintID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset sprint items: %w", err)
	}
	defer rows.Close()

	var items []types.SprintItem
	for rows.Next() {
		var item types.SprintItem
		if err := rows.Scan(&item.ID, &item.SprintID, &item.JobCardID,
			&item.Status, &item.RunID, &item.OverallScore, &item.ErrorCode); err != nil {
			return nil, fmt.Errorf("failed to scan sprint item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
