package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/martin/jobpilot/internal/types"
)

// ReplaceOutreachPack stores the latest generated pack for a job card,
// replacing any prior row wholesale. There is no pack history.
func (db *DB) ReplaceOutreachPack(ctx context.Context, input *NewOutreachPack) (*types.OutreachPack, error) {
	var pack types.OutreachPack
	err := db.pool.QueryRow(ctx,
		`INSERT INTO outreach_packs
		   (job_card_id, contact_id, recruiter_email, linkedin_dm, follow_up_1, follow_up_2)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_card_id) DO UPDATE SET
		   contact_id = $2, recruiter_email = $3, linkedin_dm = $4,
		   follow_up_1 = $5, follow_up_2 = $6, created_at = NOW()
		 RETURNING id, job_card_id, contact_id, recruiter_email, linkedin_dm,
		           follow_up_1, follow_up_2, created_at`,
		input.JobCardID, input.ContactID, input.RecruiterEmail, input.LinkedInDM,
		input.FollowUp1, input.FollowUp2,
	).Scan(&pack.ID, &pack.JobCardID, &pack.ContactID, &pack.RecruiterEmail,
		&pack.LinkedInDM, &pack.FollowUp1, &pack.FollowUp2, &pack.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to replace outreach pack: %w", err)
	}
	return &pack, nil
}

// GetOutreachPack retrieves the stored pack for a job card, or nil.
func (db *DB) GetOutreachPack(ctx context.Context, jobCardID uuid.UUID) (*types.OutreachPack, error) {
	var pack types.OutreachPack
	err := db.pool.QueryRow(ctx,
		`SELECT id, job_card_id, contact_id, recruiter_email, linkedin_dm,
		        follow_up_1, follow_up_2, created_at
		 FROM outreach_packs WHERE job_card_id = $1`,
		jobCardID,
	).Scan(&pack.ID, &pack.JobCardID, &pack.ContactID, &pack.RecruiterEmail,
		&pack.LinkedInDM, &pack.FollowUp1, &pack.FollowUp2, &pack.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get outreach pack: %w", err)
	}
	return &pack, nil
}

// AddPersonalizationSource stores one source for a job card. The per-card
// cap is enforced here so concurrent adds cannot overshoot it.
func (db *DB) AddPersonalizationSource(ctx context.Context, input *NewPersonalizationSource) (*types.PersonalizationSource, error) {
	var src types.PersonalizationSource
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		// Lock the parent card so concurrent adds serialize on the cap check.
		var cardID uuid.UUID
		if err := tx.QueryRow(ctx,
			`SELECT id FROM job_cards WHERE id = $1 FOR UPDATE`,
			input.JobCardID,
		).Scan(&cardID); err != nil {
			if err == pgx.ErrNoRows {
				return &types.ValidationError{Code: types.CodeNotFound, Message: "job card not found"}
			}
			return fmt.Errorf("failed to lock job card: %w", err)
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM personalization_sources WHERE job_card_id = $1`,
			input.JobCardID,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to count sources: %w", err)
		}
		if count >= types.MaxPersonalizationSources {
			return &types.ValidationError{
				Code: types.CodeInvalidInput,
				Message: fmt.Sprintf("a job card holds at most %d personalization sources",
					types.MaxPersonalizationSources),
			}
		}

		return tx.QueryRow(ctx,
			`INSERT INTO personalization_sources (job_card_id, source_type, url, pasted_text)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, job_card_id, source_type, url, pasted_text, created_at`,
			input.JobCardID, string(input.SourceType), input.URL, input.PastedText,
		).Scan(&src.ID, &src.JobCardID, &src.SourceType, &src.URL, &src.PastedText, &src.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListPersonalizationSources retrieves the sources for a job card, newest
// first.
func (db *DB) ListPersonalizationSources(ctx context.Context, jobCardID uuid.UUID) ([]types.PersonalizationSource, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_card_id, source_type, url, pasted_text, created_at
		 FROM personalization_sources WHERE job_card_id = $1
		 ORDER BY created_at DESC, id`,
		jobCardID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list personalization sources: %w", err)
	}
	defer rows.Close()

	var sources []types.PersonalizationSource
	for rows.Next() {
		var s types.PersonalizationSource
		if err := rows.Scan(&s.ID, &s.JobCardID, &s.SourceType, &s.URL, &s.PastedText, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan personalization source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
