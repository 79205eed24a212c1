package outreach

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/types"
)

type fakeFetcher struct {
	pages map[string]string
	err   error
}

func (f *fakeFetcher) Text(_ context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.pages[url], nil
}

func pastedSource(text string) types.PersonalizationSource {
	return types.PersonalizationSource{SourceType: types.SourceBlogPost, PastedText: &text}
}

func urlSource(url string) types.PersonalizationSource {
	return types.PersonalizationSource{SourceType: types.SourceCompanyNews, URL: &url}
}

func TestBuildPersonalizationBlockHardCap(t *testing.T) {
	long := strings.Repeat("A", 1200)
	block := buildPersonalizationBlock(context.Background(), []types.PersonalizationSource{
		pastedSource(long),
	}, nil, DefaultExcerptCap, zap.NewNop())

	assert.Contains(t, block, strings.Repeat("A", 800))
	assert.NotContains(t, block, strings.Repeat("A", 801))
}

func TestBuildPersonalizationBlockShortTextUntouched(t *testing.T) {
	block := buildPersonalizationBlock(context.Background(), []types.PersonalizationSource{
		pastedSource("The company shipped a new search product last month."),
	}, nil, DefaultExcerptCap, zap.NewNop())

	assert.Equal(t, "Source 1 (blog_post): The company shipped a new search product last month.", block)
}

func TestBuildPersonalizationBlockCapsAtThreeSources(t *testing.T) {
	sources := []types.PersonalizationSource{
		pastedSource("first"),
		pastedSource("second"),
		pastedSource("third"),
		pastedSource("fourth"),
		pastedSource("fifth"),
	}
	block := buildPersonalizationBlock(context.Background(), sources, nil, DefaultExcerptCap, zap.NewNop())

	assert.Contains(t, block, "Source 1")
	assert.Contains(t, block, "Source 3")
	assert.NotContains(t, block, "Source 4")
	assert.NotContains(t, block, "fourth")
	assert.NotContains(t, block, "fifth")
}

func TestBuildPersonalizationBlockFetchesURLs(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/news": "Acme raised a series B.",
	}}
	block := buildPersonalizationBlock(context.Background(), []types.PersonalizationSource{
		urlSource("https://example.com/news"),
	}, fetcher, DefaultExcerptCap, zap.NewNop())

	assert.Equal(t, "Source 1 (company_news): Acme raised a series B.", block)
}

func TestBuildPersonalizationBlockSkipsFailedFetch(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connrefused")}
	block := buildPersonalizationBlock(context.Background(), []types.PersonalizationSource{
		urlSource("https://example.com/down"),
		pastedSource("still usable"),
	}, fetcher, DefaultExcerptCap, zap.NewNop())

	assert.Equal(t, "Source 1 (blog_post): still usable", block)
}

func TestBuildPersonalizationBlockEmpty(t *testing.T) {
	block := buildPersonalizationBlock(context.Background(), nil, nil, DefaultExcerptCap, zap.NewNop())
	assert.Empty(t, block)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "ab", truncateRunes("abcd", 2))
	assert.Equal(t, "héllo", truncateRunes("héllo", 5))
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
}
