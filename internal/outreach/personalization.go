package outreach

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/fetch"
	"github.com/martin/jobpilot/internal/types"
)

// DefaultExcerptCap is the hard per-source excerpt limit in characters.
const DefaultExcerptCap = 800

// maxBlockSources bounds how many sources feed one prompt.
const maxBlockSources = 3

// Fetcher resolves a personalization URL to readable page text.
type Fetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over HTTP and extracts their main text.
type HTTPFetcher struct{}

func (HTTPFetcher) Text(ctx context.Context, url string) (string, error) {
	result, err := fetch.URL(ctx, url, nil)
	if err != nil {
		return "", err
	}
	return fetch.ExtractMainText(result.HTML)
}

// buildPersonalizationBlock renders up to three sources into prompt context.
// Newest sources win, every excerpt is hard-truncated to cap characters, and
// the block only ever reaches the completion prompt, never stored text. URL
// sources that fail to fetch are skipped rather than failing the pack.
func buildPersonalizationBlock(ctx context.Context, sources []types.PersonalizationSource, fetcher Fetcher, limit int, log *zap.Logger) string {
	if limit <= 0 {
		limit = DefaultExcerptCap
	}
	if len(sources) > maxBlockSources {
		sources = sources[:maxBlockSources]
	}

	var b strings.Builder
	n := 0
	for _, src := range sources {
		excerpt := sourceExcerpt(ctx, src, fetcher, log)
		if excerpt == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "Source %d (%s): %s\n", n, src.SourceType, truncateRunes(excerpt, limit))
	}
	return strings.TrimSpace(b.String())
}

func sourceExcerpt(ctx context.Context, src types.PersonalizationSource, fetcher Fetcher, log *zap.Logger) string {
	if src.PastedText != nil && strings.TrimSpace(*src.PastedText) != "" {
		return strings.TrimSpace(*src.PastedText)
	}
	if src.URL == nil || fetcher == nil {
		return ""
	}
	text, err := fetcher.Text(ctx, *src.URL)
	if err != nil {
		log.Warn("personalization source fetch failed",
			zap.String("url", *src.URL),
			zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

// truncateRunes hard-truncates to limit characters with no ellipsis; the
// excerpt is prompt fodder, not display text.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
