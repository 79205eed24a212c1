package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martin/jobpilot/internal/credits"
	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/gate"
	"github.com/martin/jobpilot/internal/kit"
	"github.com/martin/jobpilot/internal/outreach"
	"github.com/martin/jobpilot/internal/ratelimit"
	"github.com/martin/jobpilot/internal/scoring"
	"github.com/martin/jobpilot/internal/types"
)

const testSecret = "test-secret"

type fakeLedger struct {
	balance int
	entries []types.CreditLedgerEntry
}

func (f *fakeLedger) CreditBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	return f.balance, nil
}

func (f *fakeLedger) FindLedgerEntry(ctx context.Context, userID uuid.UUID, operationKey string, reason types.CreditReason) (*types.CreditLedgerEntry, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.Reason == reason && e.OperationKey != nil && *e.OperationKey == operationKey {
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) DebitCredits(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error) {
	if f.balance < amount {
		return nil, db.ErrInsufficientCredits
	}
	f.balance -= amount
	entry := types.CreditLedgerEntry{
		ID: uuid.New(), UserID: userID, Amount: -amount, Reason: reason,
		OperationKey: operationKey, BalanceAfter: f.balance, CreatedAt: time.Now(),
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedger) CreditCredits(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error) {
	f.balance += amount
	entry := types.CreditLedgerEntry{
		ID: uuid.New(), UserID: userID, Amount: amount, Reason: reason,
		OperationKey: operationKey, BalanceAfter: f.balance, CreatedAt: time.Now(),
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedger) ListLedger(ctx context.Context, userID uuid.UUID, limit int) ([]types.CreditLedgerEntry, error) {
	return f.entries, nil
}

type fakeStore struct {
	card    *db.JobCard
	sources []types.PersonalizationSource
	history []types.ScoreHistoryEntry
}

func (f *fakeStore) GetJobCard(ctx context.Context, id uuid.UUID) (*db.JobCard, error) {
	return f.card, nil
}

func (f *fakeStore) SaveSnapshot(ctx context.Context, jobCardID uuid.UUID, text string, sourceURL *string) (*types.JdSnapshot, error) {
	return &types.JdSnapshot{ID: uuid.New(), JobCardID: jobCardID, Version: 1, Text: text, SourceURL: sourceURL}, nil
}

func (f *fakeStore) ListPersonalizationSources(ctx context.Context, jobCardID uuid.UUID) ([]types.PersonalizationSource, error) {
	return f.sources, nil
}

func (f *fakeStore) ListScoreHistory(ctx context.Context, jobCardID, resumeID uuid.UUID) ([]types.ScoreHistoryEntry, error) {
	return f.history, nil
}

type fakeExtractor struct {
	requirements []types.Requirement
	err          error
}

func (f *fakeExtractor) Extract(ctx context.Context, jobCardID uuid.UUID) ([]types.Requirement, error) {
	return f.requirements, f.err
}

type fakeScorer struct {
	result *scoring.Result
	err    error
	calls  int
}

func (f *fakeScorer) Score(ctx context.Context, userID, jobCardID, resumeID uuid.UUID) (*scoring.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeKits struct {
	result *kit.Result
	err    error
}

func (f *fakeKits) Generate(ctx context.Context, req *kit.Request) (*kit.Result, error) {
	return f.result, f.err
}

type fakeOutreach struct {
	pack   *types.OutreachPack
	source *types.PersonalizationSource
	err    error
}

func (f *fakeOutreach) Generate(ctx context.Context, req *outreach.Request) (*types.OutreachPack, error) {
	return f.pack, f.err
}

func (f *fakeOutreach) Pack(ctx context.Context, jobCardID uuid.UUID) (*types.OutreachPack, error) {
	if f.pack == nil {
		return nil, &types.ValidationError{Code: types.CodeNotFound, Message: "no outreach pack for this job card"}
	}
	return f.pack, nil
}

func (f *fakeOutreach) AddSource(ctx context.Context, jobCardID uuid.UUID, sourceType types.SourceType, url, pastedText *string) (*types.PersonalizationSource, error) {
	return f.source, f.err
}

type fakeSprints struct {
	sprint *types.Sprint
	err    error
}

func (f *fakeSprints) Run(ctx context.Context, userID, resumeID uuid.UUID, jobCardIDs []uuid.UUID) (*types.Sprint, error) {
	return f.sprint, f.err
}

func (f *fakeSprints) Retry(ctx context.Context, userID, sprintID uuid.UUID) (*types.Sprint, error) {
	return f.sprint, f.err
}

type testEnv struct {
	handler http.Handler
	ledger  *fakeLedger
	store   *fakeStore
	scorer  *fakeScorer
	userID  uuid.UUID
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	userID := uuid.New()
	ledger := &fakeLedger{balance: 10}
	store := &fakeStore{card: &db.JobCard{ID: uuid.New(), UserID: userID, Company: "Acme", RoleTitle: "Engineer"}}
	scorer := &fakeScorer{result: &scoring.Result{
		Run:   &types.EvidenceRun{ID: uuid.New(), OverallScore: 81.5, Status: types.RunCompleted},
		Items: []types.EvidenceItem{{ID: uuid.New()}, {ID: uuid.New()}},
	}}

	creditSvc := credits.NewService(ledger, nil)
	g := gate.New(creditSvc, ratelimit.NewMemoryLimiter(nil), nil)

	srv := New(0, Deps{
		Store:     store,
		Extractor: &fakeExtractor{requirements: make([]types.Requirement, 4)},
		Scorer:    scorer,
		Kits: &fakeKits{result: &kit.Result{
			Kit:                 &types.ApplicationKit{ID: uuid.New()},
			ResumeFilename:      "Jane_Acme_Resume_2026-08-29.pdf",
			CoverLetterFilename: "Jane_Acme_Cover_Letter_2026-08-29.pdf",
		}},
		Outreach: &fakeOutreach{pack: &types.OutreachPack{ID: uuid.New(), RecruiterEmail: "To: a@b.com\nDear Jane,"}},
		Sprints:  &fakeSprints{sprint: &types.Sprint{ID: uuid.New(), Status: types.RunCompleted}},
		Credits:  creditSvc,
		Gate:     g,
	})

	return &testEnv{
		handler: srv.Routes(NewJWTVerifier(testSecret)),
		ledger:  ledger,
		store:   store,
		scorer:  scorer,
		userID:  userID,
		token:   signToken(t, userID),
	}
}

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthNeedsNoAuth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingAndBadTokens(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: uuid.NewString()})
			signed, _ := token.SignedString([]byte("other-secret"))
			return signed
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/credits/balance", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestExtractReturnsCount(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, fmt.Sprintf("/job-cards/%s/requirements/extract", uuid.New()), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body["count"])
}

func TestExtractMapsPreconditionTo422(t *testing.T) {
	env := newTestEnv(t)
	srv := New(0, Deps{
		Store: env.store,
		Extractor: &fakeExtractor{err: &types.ValidationError{
			Code: types.CodeNoSnapshot, Message: "no snapshot",
		}},
		Credits: credits.NewService(env.ledger, nil),
		Gate:    gate.New(credits.NewService(env.ledger, nil), ratelimit.NewMemoryLimiter(nil), nil),
	})
	handler := srv.Routes(NewJWTVerifier(testSecret))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/job-cards/%s/requirements/extract", uuid.New()), nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.CodeNoSnapshot, body.Code)
}

func TestExtractRateLimited(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/job-cards/%s/requirements/extract", uuid.New())

	limit := ratelimit.DefaultLimits[ratelimit.FamilyExtract].Max
	for i := 0; i < limit; i++ {
		rec := env.request(t, http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.request(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 10, env.ledger.balance, "extraction never touches credits")
}

func TestScanDebitsAndReturnsScore(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/evidence/runs", map[string]any{
		"job_card_id": uuid.New(),
		"resume_id":   uuid.New(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 81.5, body.Score, 0.001)
	assert.Equal(t, 2, body.ItemCount)
	assert.Equal(t, 9, env.ledger.balance)
}

func TestScanRefundsOnFailure(t *testing.T) {
	env := newTestEnv(t)
	env.scorer.result = nil
	env.scorer.err = &types.UpstreamError{Op: "scan", Cause: errors.New("timeout")}

	rec := env.request(t, http.MethodPost, "/evidence/runs", map[string]any{
		"job_card_id": uuid.New(),
		"resume_id":   uuid.New(),
	})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 10, env.ledger.balance)
}

func TestScanInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.balance = 0

	rec := env.request(t, http.MethodPost, "/evidence/runs", map[string]any{
		"job_card_id": uuid.New(),
		"resume_id":   uuid.New(),
	})

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.CodeInsufficientCredits, body.Code)
	assert.Equal(t, 0, env.scorer.calls)
}

func TestScanRateLimitSetsRetryAfter(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"job_card_id": uuid.New(), "resume_id": uuid.New()}

	limit := ratelimit.DefaultLimits[ratelimit.FamilyScan].Max
	for i := 0; i < limit; i++ {
		rec := env.request(t, http.MethodPost, "/evidence/runs", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.request(t, http.MethodPost, "/evidence/runs", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestScanInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/evidence/runs", map[string]any{
		"resume_id": uuid.New(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKitConflictMapsTo409(t *testing.T) {
	env := newTestEnv(t)
	srv := New(0, Deps{
		Store:   env.store,
		Kits:    &fakeKits{err: &types.ConflictError{Message: "kit exists; confirm overwrite"}},
		Credits: credits.NewService(env.ledger, nil),
		Gate:    gate.New(credits.NewService(env.ledger, nil), ratelimit.NewMemoryLimiter(nil), nil),
	})
	handler := srv.Routes(NewJWTVerifier(testSecret))

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{
		"job_card_id":     uuid.New(),
		"resume_id":       uuid.New(),
		"evidence_run_id": uuid.New(),
	}))
	req := httptest.NewRequest(http.MethodPost, "/application-kits", &buf)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	// Kits are free; a conflict moves no credits.
	assert.Equal(t, 10, env.ledger.balance)
}

func TestKitReturnsFilenames(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/application-kits", map[string]any{
		"job_card_id":     uuid.New(),
		"resume_id":       uuid.New(),
		"evidence_run_id": uuid.New(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body kitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Jane_Acme_Resume_2026-08-29.pdf", body.ResumeFilename)
	assert.Equal(t, "Jane_Acme_Cover_Letter_2026-08-29.pdf", body.CoverLetterFilename)
	assert.Equal(t, 10, env.ledger.balance)
}

func TestOutreachDebitsOneCredit(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/outreach/packs", map[string]any{
		"job_card_id": uuid.New(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9, env.ledger.balance)

	var pack types.OutreachPack
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pack))
	assert.NotEmpty(t, pack.RecruiterEmail)
}

func TestSprintReturnsResults(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/evidence/sprints", map[string]any{
		"job_card_ids": []uuid.UUID{uuid.New(), uuid.New()},
		"resume_id":    uuid.New(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(types.RunCompleted), body["status"])
}

func TestSnapshotRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, fmt.Sprintf("/job-cards/%s/snapshot", env.store.card.ID), map[string]any{
		"text": "We are hiring a platform engineer.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var snapshot types.JdSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, 1, snapshot.Version)
}

func TestSnapshotUnknownJobCard(t *testing.T) {
	env := newTestEnv(t)
	env.store.card = nil
	rec := env.request(t, http.MethodPost, fmt.Sprintf("/job-cards/%s/snapshot", uuid.New()), map[string]any{
		"text": "body",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreditBalance(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/credits/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 10, body["balance"])
}

func TestCreditLedger(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"job_card_id": uuid.New(), "resume_id": uuid.New()}
	rec := env.request(t, http.MethodPost, "/evidence/runs", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/credits/ledger?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []types.CreditLedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, -1, entries[0].Amount)
	assert.Equal(t, types.ReasonScan, entries[0].Reason)
}

func TestCreditLedgerRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/credits/ledger?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOutreachPack(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, fmt.Sprintf("/job-cards/%s/outreach-pack", uuid.New()), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pack types.OutreachPack
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pack))
	assert.NotEqual(t, uuid.Nil, pack.ID)
}

func TestListSourcesEmpty(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, fmt.Sprintf("/job-cards/%s/personalization-sources", uuid.New()), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestPathUUIDValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/job-cards/not-a-uuid/requirements/extract", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
