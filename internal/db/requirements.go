package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/martin/jobpilot/internal/types"
)

// ReplaceRequirements swaps the full requirement set for a job card in one
// transaction. Re-running extraction is idempotent, never cumulative.
func (db *DB) ReplaceRequirements(ctx context.Context, jobCardID uuid.UUID, reqs []NewRequirement) ([]types.Requirement, error) {
	var saved []types.Requirement

	err := db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM requirements WHERE job_card_id = $1`, jobCardID); err != nil {
			return fmt.Errorf("failed to clear requirements: %w", err)
		}

		saved = make([]types.Requirement, 0, len(reqs))
		for _, req := range reqs {
			var r types.Requirement
			err := tx.QueryRow(ctx,
				`INSERT INTO requirements (job_card_id, requirement_type, requirement_text)
				 VALUES ($1, $2, $3)
				 RETURNING id, job_card_id, requirement_type, requirement_text, created_at`,
				jobCardID, string(req.Type), req.Text,
			).Scan(&r.ID, &r.JobCardID, &r.Type, &r.Text, &r.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert requirement: %w", err)
			}
			saved = append(saved, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ListRequirements retrieves the active requirement set for a job card.
func (db *DB) ListRequirements(ctx context.Context, jobCardID uuid.UUID) ([]types.Requirement, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_card_id, requirement_type, requirement_text, created_at
		 FROM requirements WHERE job_card_id = $1
		 ORDER BY created_at, id`,
		jobCardID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	defer rows.Close()

	var reqs []types.Requirement
	for rows.Next() {
		var r types.Requirement
		if err := rows.Scan(&r.ID, &r.JobCardID, &r.Type, &r.Text, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}
