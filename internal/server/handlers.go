package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/martin/jobpilot/internal/gate"
	"github.com/martin/jobpilot/internal/kit"
	"github.com/martin/jobpilot/internal/outreach"
	"github.com/martin/jobpilot/internal/ratelimit"
	"github.com/martin/jobpilot/internal/scoring"
	"github.com/martin/jobpilot/internal/types"
)

// handleHealth responds to liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type snapshotRequest struct {
	Text      string  `json:"text" validate:"required,min=1"`
	SourceURL *string `json:"source_url,omitempty" validate:"omitempty,url"`
}

// handleSaveSnapshot captures a new JD snapshot version for a job card.
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	jobCardID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req snapshotRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	card, err := s.store.GetJobCard(r.Context(), jobCardID)
	if err != nil {
		writeError(w, err)
		return
	}
	if card == nil {
		writeError(w, &types.ValidationError{Code: types.CodeNotFound, Message: "job card not found"})
		return
	}

	snapshot, err := s.store.SaveSnapshot(r.Context(), jobCardID, req.Text, req.SourceURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

// handleExtract runs requirement extraction over the latest snapshot.
// Extraction costs no credits but shares the gate's rate limit.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jobCardID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var requirements []types.Requirement
	err = s.gate.Run(r.Context(), gate.Metered{
		UserID: userID,
		Family: ratelimit.FamilyExtract,
	}, func(ctx context.Context) error {
		var exErr error
		requirements, exErr = s.extractor.Extract(ctx, jobCardID)
		return exErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(requirements)})
}

type scanRequest struct {
	JobCardID      uuid.UUID `json:"job_card_id" validate:"required"`
	ResumeID       uuid.UUID `json:"resume_id" validate:"required"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

type scanResponse struct {
	RunID     uuid.UUID            `json:"run_id"`
	Score     float64              `json:"score"`
	ItemCount int                  `json:"item_count"`
	Breakdown types.ScoreBreakdown `json:"breakdown"`
}

// handleScan runs one gated evidence scan: 1 credit, refunded if the scan
// fails.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req scanRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var result *scoring.Result
	err = s.gate.Run(r.Context(), gate.Metered{
		UserID:       userID,
		Family:       ratelimit.FamilyScan,
		Cost:         types.CostScan,
		Reason:       types.ReasonScan,
		OperationKey: clientKey("scan", req.IdempotencyKey, req.JobCardID, req.ResumeID),
	}, func(ctx context.Context) error {
		var scoreErr error
		result, scoreErr = s.scorer.Score(ctx, userID, req.JobCardID, req.ResumeID)
		return scoreErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{
		RunID:     result.Run.ID,
		Score:     result.Run.OverallScore,
		ItemCount: len(result.Items),
		Breakdown: result.Run.Breakdown,
	})
}

func clientKey(operation, idempotencyKey string, ids ...uuid.UUID) string {
	if strings.TrimSpace(idempotencyKey) == "" {
		return ""
	}
	return gate.Key(operation, ids...) + ":" + idempotencyKey
}

type sprintRequest struct {
	JobCardIDs []uuid.UUID `json:"job_card_ids" validate:"required,min=1"`
	ResumeID   uuid.UUID   `json:"resume_id" validate:"required"`
}

// handleSprint runs a batch scan over up to ten job cards.
func (s *Server) handleSprint(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req sprintRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sprint, err := s.sprints.Run(r.Context(), userID, req.ResumeID, req.JobCardIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sprintResponse(sprint))
}

// handleSprintRetry re-runs the failed items of a sprint at no charge.
func (s *Server) handleSprintRetry(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sprintID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	sprint, err := s.sprints.Retry(r.Context(), userID, sprintID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sprintResponse(sprint))
}

func sprintResponse(sprint *types.Sprint) map[string]any {
	return map[string]any{
		"sprint_id": sprint.ID,
		"status":    sprint.Status,
		"results":   sprint.Items,
	}
}

type kitRequest struct {
	JobCardID        uuid.UUID  `json:"job_card_id" validate:"required"`
	ResumeID         uuid.UUID  `json:"resume_id" validate:"required"`
	EvidenceRunID    uuid.UUID  `json:"evidence_run_id" validate:"required"`
	Tone             types.Tone `json:"tone,omitempty"`
	ConfirmOverwrite bool       `json:"confirm_overwrite,omitempty"`
}

type kitResponse struct {
	Kit                 *types.ApplicationKit `json:"kit"`
	ResumeFilename      string                `json:"resume_filename"`
	CoverLetterFilename string                `json:"cover_letter_filename"`
}

// handleKit generates an application kit. Kits are bundled free with a
// completed scan, so the gate carries no cost, only the rate limit.
func (s *Server) handleKit(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req kitRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var result *kit.Result
	err = s.gate.Run(r.Context(), gate.Metered{
		UserID: userID,
		Family: ratelimit.FamilyKit,
	}, func(ctx context.Context) error {
		var genErr error
		result, genErr = s.kits.Generate(ctx, &kit.Request{
			UserID:           userID,
			JobCardID:        req.JobCardID,
			ResumeID:         req.ResumeID,
			EvidenceRunID:    req.EvidenceRunID,
			Tone:             req.Tone,
			ConfirmOverwrite: req.ConfirmOverwrite,
		})
		return genErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kitResponse{
		Kit:                 result.Kit,
		ResumeFilename:      result.ResumeFilename,
		CoverLetterFilename: result.CoverLetterFilename,
	})
}

type outreachRequest struct {
	JobCardID      uuid.UUID  `json:"job_card_id" validate:"required"`
	ContactID      *uuid.UUID `json:"contact_id,omitempty"`
	Tone           types.Tone `json:"tone,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
}

// handleOutreach generates the four-message outreach pack: 1 credit,
// refunded on failure.
func (s *Server) handleOutreach(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req outreachRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var pack *types.OutreachPack
	err = s.gate.Run(r.Context(), gate.Metered{
		UserID:       userID,
		Family:       ratelimit.FamilyOutreach,
		Cost:         types.CostOutreach,
		Reason:       types.ReasonOutreach,
		OperationKey: clientKey("outreach", req.IdempotencyKey, req.JobCardID),
	}, func(ctx context.Context) error {
		var genErr error
		pack, genErr = s.outreach.Generate(ctx, &outreach.Request{
			UserID:    userID,
			JobCardID: req.JobCardID,
			ContactID: req.ContactID,
			Tone:      req.Tone,
		})
		return genErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pack)
}

type sourceRequest struct {
	SourceType types.SourceType `json:"source_type" validate:"required"`
	URL        *string          `json:"url,omitempty" validate:"omitempty,url"`
	PastedText *string          `json:"pasted_text,omitempty"`
}

// handleAddSource stores one personalization source for a job card.
func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	jobCardID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req sourceRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	source, err := s.outreach.AddSource(r.Context(), jobCardID, req.SourceType, req.URL, req.PastedText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, source)
}

// handleListSources lists a job card's personalization sources.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	jobCardID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sources, err := s.store.ListPersonalizationSources(r.Context(), jobCardID)
	if err != nil {
		writeError(w, err)
		return
	}
	if sources == nil {
		sources = []types.PersonalizationSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// handleCreditBalance returns the caller's current balance.
func (s *Server) handleCreditBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.credits.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"balance": balance})
}

// handleCreditLedger returns the caller's newest ledger entries.
func (s *Server) handleCreditLedger(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, &types.ValidationError{
				Code:    types.CodeInvalidInput,
				Message: "limit query parameter must be a non-negative integer",
			})
			return
		}
	}
	entries, err := s.credits.Ledger(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []types.CreditLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetOutreachPack returns the stored pack for a job card.
func (s *Server) handleGetOutreachPack(w http.ResponseWriter, r *http.Request) {
	jobCardID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	pack, err := s.outreach.Pack(r.Context(), jobCardID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pack)
}

// handleScoreHistory returns the score timeline for a (job card, resume)
// pair.
func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	jobCardID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	resumeID, err := uuid.Parse(r.URL.Query().Get("resume_id"))
	if err != nil {
		writeError(w, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: "resume_id query parameter must be a UUID",
		})
		return
	}

	history, err := s.store.ListScoreHistory(r.Context(), jobCardID, resumeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []types.ScoreHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

// decode parses and validates a JSON request body.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("invalid request body: %v", err),
		}
	}
	if err := s.validate.Struct(v); err != nil {
		return &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("invalid request: %v", err),
		}
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("path parameter %q must be a UUID", name),
		}
	}
	return id, nil
}
