package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/martin/jobpilot/internal/types"
)

// GetKit retrieves the live kit for a (job card, resume, run) key, or nil.
func (db *DB) GetKit(ctx context.Context, jobCardID, resumeID, runID uuid.UUID) (*types.ApplicationKit, error) {
	var kit types.ApplicationKit
	var changesRaw, rewritesRaw []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, job_card_id, resume_id, evidence_run_id, tone,
		        top_changes, bullet_rewrites, cover_letter, created_at
		 FROM application_kits
		 WHERE job_card_id = $1 AND resume_id = $2 AND evidence_run_id = $3`,
		jobCardID, resumeID, runID,
	).Scan(&kit.ID, &kit.JobCardID, &kit.ResumeID, &kit.EvidenceRunID, &kit.Tone,
		&changesRaw, &rewritesRaw, &kit.CoverLetter, &kit.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get kit: %w", err)
	}

	if err := json.Unmarshal(changesRaw, &kit.TopChanges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal top changes: %w", err)
	}
	if err := json.Unmarshal(rewritesRaw, &kit.BulletRewrites); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bullet rewrites: %w", err)
	}
	return &kit, nil
}

// UpsertKit replaces the kit row for its key wholesale. Overwrite
// confirmation is the service's job; the store write is unconditional.
func (db *DB) UpsertKit(ctx context.Context, input *NewApplicationKit) (*types.ApplicationKit, error) {
	changesJSON, err := json.Marshal(input.TopChanges)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal top changes: %w", err)
	}
	rewritesJSON, err := json.Marshal(input.BulletRewrites)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bullet rewrites: %w", err)
	}

	var kit types.ApplicationKit
	var changesRaw, rewritesRaw []byte
	err = db.pool.QueryRow(ctx,
		`INSERT INTO application_kits
		   (job_card_id, resume_id, evidence_run_id, tone, top_changes, bullet_rewrites, cover_letter)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (job_card_id, resume_id, evidence_run_id) DO UPDATE SET
		   tone = $4, top_changes = $5, bullet_rewrites = $6, cover_letter = $7,
		   created_at = NOW()
		 RETURNING id, job_card_id, resume_id, evidence_run_id, tone,
		           top_changes, bullet_rewrites, cover_letter, created_at`,
		input.JobCardID, input.ResumeID, input.EvidenceRunID, string(input.Tone),
		changesJSON, rewritesJSON, input.CoverLetter,
	).Scan(&kit.ID, &kit.JobCardID, &kit.ResumeID, &kit.EvidenceRunID, &kit.Tone,
		&changesRaw, &rewritesRaw, &kit.CoverLetter, &kit.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert kit: %w", err)
	}

	if err := json.Unmarshal(changesRaw, &kit.TopChanges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal top changes: %w", err)
	}
	if err := json.Unmarshal(rewritesRaw, &kit.BulletRewrites); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bullet rewrites: %w", err)
	}
	return &kit, nil
}
