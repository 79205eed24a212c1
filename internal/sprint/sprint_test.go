package sprint

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martin/jobpilot/internal/credits"
	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/gate"
	"github.com/martin/jobpilot/internal/ratelimit"
	"github.com/martin/jobpilot/internal/scoring"
	"github.com/martin/jobpilot/internal/types"
)

type fakeLedger struct {
	mu      sync.Mutex
	balance int
	entries []types.CreditLedgerEntry
}

func (f *fakeLedger) CreditBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) FindLedgerEntry(ctx context.Context, userID uuid.UUID, operationKey string, reason types.CreditReason) (*types.CreditLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.Reason == reason && e.OperationKey != nil && *e.OperationKey == operationKey {
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) DebitCredits(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance < amount {
		return nil, db.ErrInsufficientCredits
	}
	f.balance -= amount
	entry := types.CreditLedgerEntry{
		ID: uuid.New(), UserID: userID, Amount: -amount,
		Reason: reason, OperationKey: operationKey, BalanceAfter: f.balance,
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedger) CreditCredits(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance += amount
	entry := types.CreditLedgerEntry{
		ID: uuid.New(), UserID: userID, Amount: amount,
		Reason: reason, OperationKey: operationKey, BalanceAfter: f.balance,
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedger) ListLedger(ctx context.Context, userID uuid.UUID, limit int) ([]types.CreditLedgerEntry, error) {
	return f.entries, nil
}

type fakeScorer struct {
	mu      sync.Mutex
	failFor map[uuid.UUID]error
	calls   []uuid.UUID
}

func (f *fakeScorer) Score(ctx context.Context, userID, jobCardID, resumeID uuid.UUID) (*scoring.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, jobCardID)
	f.mu.Unlock()
	if err, ok := f.failFor[jobCardID]; ok {
		return nil, err
	}
	return &scoring.Result{
		Run: &types.EvidenceRun{ID: uuid.New(), JobCardID: jobCardID, ResumeID: resumeID, OverallScore: 72.5},
	}, nil
}

type fakeStore struct {
	mu     sync.Mutex
	resume *db.Resume
	sprint *types.Sprint
}

func (f *fakeStore) GetResume(ctx context.Context, id uuid.UUID) (*db.Resume, error) {
	return f.resume, nil
}

func (f *fakeStore) CreateSprint(ctx context.Context, userID, resumeID uuid.UUID, jobCardIDs []uuid.UUID) (*types.Sprint, error) {
	sprint := &types.Sprint{ID: uuid.New(), UserID: userID, ResumeID: resumeID, Status: types.RunPending}
	for _, cardID := range jobCardIDs {
		sprint.Items = append(sprint.Items, types.SprintItem{
			ID: uuid.New(), SprintID: sprint.ID, JobCardID: cardID, Status: types.RunPending,
		})
	}
	f.sprint = sprint
	return sprint, nil
}

func (f *fakeStore) GetSprint(ctx context.Context, sprintID uuid.UUID) (*types.Sprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sprint == nil || f.sprint.ID != sprintID {
		return nil, nil
	}
	copied := *f.sprint
	copied.Items = append([]types.SprintItem(nil), f.sprint.Items...)
	return &copied, nil
}

func (f *fakeStore) CompleteSprintItem(ctx context.Context, itemID, runID uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sprint.Items {
		if f.sprint.Items[i].ID == itemID {
			f.sprint.Items[i].Status = types.RunCompleted
			f.sprint.Items[i].RunID = &runID
			f.sprint.Items[i].OverallScore = &score
			f.sprint.Items[i].ErrorCode = nil
		}
	}
	return nil
}

func (f *fakeStore) FailSprintItem(ctx context.Context, itemID uuid.UUID, code types.ErrorCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	codeStr := string(code)
	for i := range f.sprint.Items {
		if f.sprint.Items[i].ID == itemID {
			f.sprint.Items[i].Status = types.RunFailed
			f.sprint.Items[i].ErrorCode = &codeStr
		}
	}
	return nil
}

func (f *fakeStore) FinishSprint(ctx context.Context, sprintID uuid.UUID, status types.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sprint.Status = status
	return nil
}

func (f *fakeStore) ResetSprintItems(ctx context.Context, sprintID uuid.UUID) ([]types.SprintItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var reset []types.SprintItem
	for i := range f.sprint.Items {
		if f.sprint.Items[i].Status == types.RunFailed {
			f.sprint.Items[i].Status = types.RunPending
			f.sprint.Items[i].ErrorCode = nil
			reset = append(reset, f.sprint.Items[i])
		}
	}
	return reset, nil
}

func newTestService(store *fakeStore, scorer *fakeScorer, ledger *fakeLedger) *Service {
	g := gate.New(credits.NewService(ledger, nil), ratelimit.NewMemoryLimiter(nil), nil)
	return NewService(store, scorer, g, nil)
}

func cardIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestRunAllItemsSucceed(t *testing.T) {
	store := &fakeStore{resume: &db.Resume{ID: uuid.New(), Text: "resume text"}}
	scorer := &fakeScorer{}
	ledger := &fakeLedger{balance: 10}
	svc := newTestService(store, scorer, ledger)

	sprint, err := svc.Run(context.Background(), uuid.New(), store.resume.ID, cardIDs(3))
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, sprint.Status)
	assert.Len(t, sprint.Items, 3)
	for _, item := range sprint.Items {
		assert.Equal(t, types.RunCompleted, item.Status)
		require.NotNil(t, item.RunID)
		require.NotNil(t, item.OverallScore)
		assert.InDelta(t, 72.5, *item.OverallScore, 0.001)
	}
	assert.Equal(t, 5, 10-ledger.balance)
	assert.Len(t, scorer.calls, 3)
}

func TestRunItemsFailIndependently(t *testing.T) {
	store := &fakeStore{resume: &db.Resume{ID: uuid.New(), Text: "resume text"}}
	cards := cardIDs(3)
	scorer := &fakeScorer{failFor: map[uuid.UUID]error{
		cards[1]: &types.ValidationError{Code: types.CodeNoRequirements, Message: "no requirements"},
	}}
	ledger := &fakeLedger{balance: 10}
	svc := newTestService(store, scorer, ledger)

	sprint, err := svc.Run(context.Background(), uuid.New(), store.resume.ID, cards)
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, sprint.Status)
	byCard := make(map[uuid.UUID]types.SprintItem)
	for _, item := range sprint.Items {
		byCard[item.JobCardID] = item
	}
	failed := byCard[cards[1]]
	assert.Equal(t, types.RunFailed, failed.Status)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, string(types.CodeNoRequirements), *failed.ErrorCode)
	assert.Nil(t, failed.RunID)

	assert.Equal(t, types.RunCompleted, byCard[cards[0]].Status)
	assert.Equal(t, types.RunCompleted, byCard[cards[2]].Status)

	// Partial failure keeps the flat fee.
	assert.Equal(t, 5, ledger.balance)
}

func TestRunAllItemsFailRefundsFee(t *testing.T) {
	store := &fakeStore{resume: &db.Resume{ID: uuid.New(), Text: "resume text"}}
	cards := cardIDs(2)
	scorer := &fakeScorer{failFor: map[uuid.UUID]error{
		cards[0]: &types.UpstreamError{Op: "scan", Cause: errors.New("timeout")},
		cards[1]: &types.UpstreamError{Op: "scan", Cause: errors.New("timeout")},
	}}
	ledger := &fakeLedger{balance: 10}
	svc := newTestService(store, scorer, ledger)

	_, err := svc.Run(context.Background(), uuid.New(), store.resume.ID, cards)

	var uErr *types.UpstreamError
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, 10, ledger.balance)
	assert.Equal(t, types.RunFailed, store.sprint.Status)
}

func TestRunValidation(t *testing.T) {
	store := &fakeStore{resume: &db.Resume{ID: uuid.New(), Text: "resume text"}}
	svc := newTestService(store, &fakeScorer{}, &fakeLedger{balance: 10})

	dup := uuid.New()
	tests := []struct {
		name  string
		cards []uuid.UUID
	}{
		{"empty", nil},
		{"too many", cardIDs(types.MaxSprintSize + 1)},
		{"duplicate", []uuid.UUID{dup, dup}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), uuid.New(), store.resume.ID, tt.cards)
			var vErr *types.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, types.CodeInvalidInput, vErr.Code)
		})
	}
}

func TestRunMissingResume(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeScorer{}, &fakeLedger{balance: 10})

	_, err := svc.Run(context.Background(), uuid.New(), uuid.New(), cardIDs(1))
	var vErr *types.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, types.CodeNoResume, vErr.Code)
}

func TestRunInsufficientCredits(t *testing.T) {
	store := &fakeStore{resume: &db.Resume{ID: uuid.New(), Text: "resume text"}}
	scorer := &fakeScorer{}
	svc := newTestService(store, scorer, &fakeLedger{balance: 4})

	_, err := svc.Run(context.Background(), uuid.New(), store.resume.ID, cardIDs(2))

	var qErr *types.QuotaError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, types.CostSprint, qErr.Required)
	assert.Empty(t, scorer.calls)
	assert.Equal(t, types.RunFailed, store.sprint.Status)
}

func TestRetryFailedSubsetIsFree(t *testing.T) {
	store := &fakeStore{resume: &db.Resume{ID: uuid.New(), Text: "resume text"}}
	cards := cardIDs(3)
	scorer := &fakeScorer{failFor: map[uuid.UUID]error{
		cards[2]: &types.UpstreamError{Op: "scan", Cause: errors.New("timeout")},
	}}
	ledger := &fakeLedger{balance: 10}
	svc := newTestService(store, scorer, ledger)
	userID := uuid.New()

	first, err := svc.Run(context.Background(), userID, store.resume.ID, cards)
	require.NoError(t, err)
	assert.Equal(t, 5, ledger.balance)
	callsAfterRun := len(scorer.calls)

	// Clear the failure and retry: only the failed card is re-scored.
	scorer.failFor = nil
	retried, err := svc.Retry(context.Background(), userID, first.ID)
	require.NoError(t, err)

	assert.Equal(t, callsAfterRun+1, len(scorer.calls))
	assert.Equal(t, cards[2], scorer.calls[len(scorer.calls)-1])
	assert.Equal(t, 5, ledger.balance)
	for _, item := range retried.Items {
		assert.Equal(t, types.RunCompleted, item.Status)
	}
}

func TestRetryWithNothingFailed(t *testing.T) {
	store := &fakeStore{resume: &db.Resume{ID: uuid.New(), Text: "resume text"}}
	scorer := &fakeScorer{}
	svc := newTestService(store, scorer, &fakeLedger{balance: 10})
	userID := uuid.New()

	sprint, err := svc.Run(context.Background(), userID, store.resume.ID, cardIDs(2))
	require.NoError(t, err)
	callsAfterRun := len(scorer.calls)

	_, err = svc.Retry(context.Background(), userID, sprint.ID)
	require.NoError(t, err)
	assert.Equal(t, callsAfterRun, len(scorer.calls))
}

func TestRetryUnknownSprint(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeScorer{}, &fakeLedger{balance: 10})

	_, err := svc.Retry(context.Background(), uuid.New(), uuid.New())
	var vErr *types.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, types.CodeNotFound, vErr.Code)
}

func TestRetryWrongUser(t *testing.T) {
	store := &fakeStore{resume: &db.Resume{ID: uuid.New(), Text: "resume text"}}
	svc := newTestService(store, &fakeScorer{}, &fakeLedger{balance: 10})

	sprint, err := svc.Run(context.Background(), uuid.New(), store.resume.ID, cardIDs(1))
	require.NoError(t, err)

	_, err = svc.Retry(context.Background(), uuid.New(), sprint.ID)
	var vErr *types.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, types.CodeNotFound, vErr.Code)
}
