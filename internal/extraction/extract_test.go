package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/llm"
	"github.com/martin/jobpilot/internal/types"
)

type fakeStore struct {
	snapshot *types.JdSnapshot
	saved    []db.NewRequirement
	saveErr  error
}

func (f *fakeStore) LatestSnapshot(ctx context.Context, jobCardID uuid.UUID) (*types.JdSnapshot, error) {
	return f.snapshot, nil
}

func (f *fakeStore) ReplaceRequirements(ctx context.Context, jobCardID uuid.UUID, reqs []db.NewRequirement) ([]types.Requirement, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = reqs
	out := make([]types.Requirement, len(reqs))
	for i, r := range reqs {
		out[i] = types.Requirement{ID: uuid.New(), JobCardID: jobCardID, Type: r.Type, Text: r.Text}
	}
	return out, nil
}

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return f.response, f.err
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return f.response, f.err
}

func (f *fakeLLM) Close() error { return nil }

func snapshotFixture() *types.JdSnapshot {
	return &types.JdSnapshot{
		ID:        uuid.New(),
		JobCardID: uuid.New(),
		Version:   1,
		Text:      "We are hiring a backend engineer with Go and PostgreSQL experience.",
	}
}

func TestExtractHappyPath(t *testing.T) {
	store := &fakeStore{snapshot: snapshotFixture()}
	client := &fakeLLM{response: `[
		{"requirement_type": "skill", "requirement_text": "Go"},
		{"requirement_type": "tool", "requirement_text": "PostgreSQL"},
		{"requirement_type": "eligibility", "requirement_text": "US work authorization"}
	]`}

	svc := NewService(store, client, nil)
	reqs, err := svc.Extract(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, types.RequirementSkill, reqs[0].Type)
	assert.Equal(t, "Go", reqs[0].Text)
	assert.Equal(t, types.RequirementEligibility, reqs[2].Type)
}

func TestExtractNoSnapshot(t *testing.T) {
	store := &fakeStore{snapshot: nil}
	svc := NewService(store, &fakeLLM{}, nil)

	_, err := svc.Extract(context.Background(), uuid.New())
	var vErr *types.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, types.CodeNoSnapshot, vErr.Code)
}

func TestExtractDropsUnknownTypesAndDuplicates(t *testing.T) {
	store := &fakeStore{snapshot: snapshotFixture()}
	client := &fakeLLM{response: `[
		{"requirement_type": "skill", "requirement_text": "Go"},
		{"requirement_type": "certification", "requirement_text": "AWS SAA"},
		{"requirement_type": "skill", "requirement_text": "go"},
		{"requirement_type": "skill", "requirement_text": "   "},
		{"requirement_type": "tool", "requirement_text": "Kubernetes"}
	]`}

	svc := NewService(store, client, nil)
	reqs, err := svc.Extract(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "Go", reqs[0].Text)
	assert.Equal(t, "Kubernetes", reqs[1].Text)
}

func TestExtractZeroValidRequirements(t *testing.T) {
	store := &fakeStore{snapshot: snapshotFixture()}
	client := &fakeLLM{response: `[
		{"requirement_type": "certification", "requirement_text": "AWS SAA"}
	]`}

	svc := NewService(store, client, nil)
	_, err := svc.Extract(context.Background(), uuid.New())
	var vErr *types.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, types.CodeExtractionFailed, vErr.Code)

	// Nothing replaced the prior requirement set.
	assert.Nil(t, store.saved)
}

func TestExtractMalformedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "the model apologizes and cannot help"},
		{"wrong shape", `{"requirements": []}`},
		{"missing field", `[{"requirement_type": "skill"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{snapshot: snapshotFixture()}
			svc := NewService(store, &fakeLLM{response: tt.response}, nil)

			_, err := svc.Extract(context.Background(), uuid.New())
			var vErr *types.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, types.CodeExtractionFailed, vErr.Code)
		})
	}
}

func TestExtractFencedResponse(t *testing.T) {
	store := &fakeStore{snapshot: snapshotFixture()}
	client := &fakeLLM{response: "```json\n[{\"requirement_type\": \"skill\", \"requirement_text\": \"Go\"}]\n```"}

	svc := NewService(store, client, nil)
	reqs, err := svc.Extract(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, reqs, 1)
}

func TestExtractUpstreamFailure(t *testing.T) {
	store := &fakeStore{snapshot: snapshotFixture()}
	client := &fakeLLM{err: errors.New("deadline exceeded")}

	svc := NewService(store, client, nil)
	_, err := svc.Extract(context.Background(), uuid.New())
	var uErr *types.UpstreamError
	require.True(t, errors.As(err, &uErr))
}
