package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/martin/jobpilot/internal/types"
)

// SaveSnapshot stores a new immutable JD capture for a job card. The version
// is assigned atomically as one past the card's current maximum.
func (db *DB) SaveSnapshot(ctx context.Context, jobCardID uuid.UUID, text string, sourceURL *string) (*types.JdSnapshot, error) {
	var snap types.JdSnapshot
	err := db.pool.QueryRow(ctx,
		`INSERT INTO jd_snapshots (job_card_id, version, text, source_url)
		 VALUES ($1,
		         (SELECT COALESCE(MAX(version), 0) + 1 FROM jd_snapshots WHERE job_card_id = $1),
		         $2, $3)
		 RETURNING id, job_card_id, version, text, source_url, created_at`,
		jobCardID, text, sourceURL,
	).Scan(&snap.ID, &snap.JobCardID, &snap.Version, &snap.Text, &snap.SourceURL, &snap.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return &snap, nil
}

// LatestSnapshot retrieves the highest-version snapshot for a job card, or
// nil when the card has none.
func (db *DB) LatestSnapshot(ctx context.Context, jobCardID uuid.UUID) (*types.JdSnapshot, error) {
	var snap types.JdSnapshot
	err := db.pool.QueryRow(ctx,
		`SELECT id, job_card_id, version, text, source_url, created_at
		 FROM jd_snapshots WHERE job_card_id = $1
		 ORDER BY version DESC LIMIT 1`,
		jobCardID,
	).Scan(&snap.ID, &snap.JobCardID, &snap.Version, &snap.Text, &snap.SourceURL, &snap.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &snap, nil
}

// GetJobCard retrieves the job-card row the pipeline needs.
func (db *DB) GetJobCard(ctx context.Context, id uuid.UUID) (*JobCard, error) {
	var card JobCard
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, company, role_title, created_at
		 FROM job_cards WHERE id = $1`,
		id,
	).Scan(&card.ID, &card.UserID, &card.Company, &card.RoleTitle, &card.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job card: %w", err)
	}
	return &card, nil
}

// GetResume retrieves a resume row, or nil when absent.
func (db *DB) GetResume(ctx context.Context, id uuid.UUID) (*Resume, error) {
	var r Resume
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, name, text, updated_at FROM resumes WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.UserID, &r.Name, &r.Text, &r.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get resume: %w", err)
	}
	return &r, nil
}

// GetContact retrieves a contact row, or nil when absent.
func (db *DB) GetContact(ctx context.Context, id uuid.UUID) (*types.Contact, error) {
	var c types.Contact
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, email, linkedin_url FROM contacts WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.LinkedInURL)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &c, nil
}

// GetWorkAuthProfile retrieves the caller's profile fields, or nil when
// absent.
func (db *DB) GetWorkAuthProfile(ctx context.Context, userID uuid.UUID) (*WorkAuthProfile, error) {
	var p WorkAuthProfile
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, display_name, region, track, visa_status, needs_sponsorship
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.DisplayName, &p.Region, &p.Track, &p.VisaStatus, &p.NeedsSponsorship)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}
