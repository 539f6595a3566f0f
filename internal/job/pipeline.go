package job

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

// Fetcher streams raw listings off the source site
type Fetcher interface {
	Fetch(ctx context.Context, target int, known map[string]struct{}) ([]domain.RawListing, domain.FetchStats, error)
}

// URLLister exposes the persisted url set
type URLLister interface {
	ExistingURLs(ctx context.Context) (map[string]struct{}, error)
}

// Normalizer converts raw listings into cleaned entries
type Normalizer interface {
	Normalize(raw domain.RawListing) (domain.CleanedEntry, error)
}

// Deduplicator drops entries already known in-batch or persisted
type Deduplicator interface {
	Filter(ctx context.Context, entries []domain.CleanedEntry) ([]domain.CleanedEntry, int)
	MarkLoaded(ctx context.Context, entries []domain.CleanedEntry)
}

// Loader persists deduplicated entries
type Loader interface {
	Load(ctx context.Context, entries []domain.CleanedEntry) (domain.RunCounts, []domain.CleanedEntry)
}

// Pipeline wires fetch, normalize, dedup and load into one ingestion pass
type Pipeline struct {
	fetcher    Fetcher
	urls       URLLister
	normalizer Normalizer
	dedup      Deduplicator
	loader     Loader
	target     int
}

// NewPipeline assembles the ingestion pipeline
func NewPipeline(fetcher Fetcher, urls URLLister, normalizer Normalizer, dedup Deduplicator, loader Loader, target int) *Pipeline {
	if target <= 0 {
		target = 5000
	}
	return &Pipeline{
		fetcher:    fetcher,
		urls:       urls,
		normalizer: normalizer,
		dedup:      dedup,
		loader:     loader,
		target:     target,
	}
}

// Run executes fetch, normalize, dedup, load and reports aggregate counts.
// Per-page and per-entry failures are counted, never fatal.
func (p *Pipeline) Run(ctx context.Context) (domain.RunCounts, error) {
	known, err := p.urls.ExistingURLs(ctx)
	if err != nil {
		return domain.RunCounts{}, fmt.Errorf("existing urls: %w", err)
	}

	raws, fetchStats, err := p.fetcher.Fetch(ctx, p.target, known)
	if err != nil {
		return domain.RunCounts{}, fmt.Errorf("fetch listings: %w", err)
	}

	counts := domain.RunCounts{
		Fetched: len(raws),
		Failed:  fetchStats.FailedEntries,
	}

	cleaned := make([]domain.CleanedEntry, 0, len(raws))
	for _, raw := range raws {
		entry, err := p.normalizer.Normalize(raw)
		if err != nil {
			counts.Failed++
			log.WithFields(log.Fields{"url": raw.URL, "error": err}).Debug("entry dropped")
			continue
		}
		cleaned = append(cleaned, entry)
	}

	fresh, skipped := p.dedup.Filter(ctx, cleaned)
	counts.Skipped += skipped

	loadCounts, inserted := p.loader.Load(ctx, fresh)
	counts.New += loadCounts.New
	counts.Skipped += loadCounts.Skipped
	counts.Failed += loadCounts.Failed

	p.dedup.MarkLoaded(ctx, inserted)

	return counts, nil
}
