package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/admitdata/gradcafe-etl/internal/dedup"
	"github.com/admitdata/gradcafe-etl/internal/domain"
	"github.com/admitdata/gradcafe-etl/internal/load"
	"github.com/admitdata/gradcafe-etl/internal/normalize"
)

type fakeFetcher struct {
	raws  []domain.RawListing
	stats domain.FetchStats
	err   error
}

func (f *fakeFetcher) Fetch(context.Context, int, map[string]struct{}) ([]domain.RawListing, domain.FetchStats, error) {
	return f.raws, f.stats, f.err
}

// memoryStore backs the url-check, url-list and insert capabilities with
// one map, mimicking the relational table's unique constraint
type memoryStore struct {
	rows map[string]struct{}
}

func newMemoryStore(urls ...string) *memoryStore {
	rows := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		rows[u] = struct{}{}
	}
	return &memoryStore{rows: rows}
}

func (s *memoryStore) URLExists(_ context.Context, url string) (bool, error) {
	_, ok := s.rows[url]
	return ok, nil
}

func (s *memoryStore) ExistingURLs(context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(s.rows))
	for u := range s.rows {
		out[u] = struct{}{}
	}
	return out, nil
}

func (s *memoryStore) Insert(_ context.Context, entry domain.CleanedEntry) (bool, error) {
	if _, ok := s.rows[entry.URL]; ok {
		return false, nil
	}
	s.rows[entry.URL] = struct{}{}
	return true, nil
}

func rawListing(n int) domain.RawListing {
	return domain.RawListing{
		URL:          fmt.Sprintf("https://www.thegradcafe.com/result/%d", n),
		ProgramText:  "Computer Science",
		DecisionText: "Accepted on 29 Jan",
	}
}

func newTestPipeline(fetcher Fetcher, store *memoryStore) *Pipeline {
	return NewPipeline(
		fetcher,
		store,
		normalize.New(),
		dedup.New(store, nil),
		load.New(store, nil),
		100,
	)
}

func TestRunIngestsOnlyUnseenEntries(t *testing.T) {
	// Entry 1 is already persisted; only entry 2 should be ingested
	store := newMemoryStore("https://www.thegradcafe.com/result/1")
	fetcher := &fakeFetcher{raws: []domain.RawListing{rawListing(1), rawListing(2)}}

	counts, err := newTestPipeline(fetcher, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := domain.RunCounts{Fetched: 2, New: 1, Skipped: 1, Failed: 0}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
	if _, ok := store.rows["https://www.thegradcafe.com/result/2"]; !ok {
		t.Error("entry 2 not persisted")
	}
}

func TestRunSecondPassPersistsNothingNew(t *testing.T) {
	store := newMemoryStore()
	fetcher := &fakeFetcher{raws: []domain.RawListing{rawListing(1), rawListing(2)}}
	p := newTestPipeline(fetcher, store)

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.New != 2 {
		t.Fatalf("first run counts = %+v", first)
	}

	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	want := domain.RunCounts{Fetched: 2, New: 0, Skipped: 2, Failed: 0}
	if second != want {
		t.Errorf("second run counts = %+v, want %+v", second, want)
	}
	if len(store.rows) != 2 {
		t.Errorf("rows = %d, want 2", len(store.rows))
	}
}

func TestRunCountsUnparseableEntriesAsFailed(t *testing.T) {
	store := newMemoryStore()
	fetcher := &fakeFetcher{raws: []domain.RawListing{
		rawListing(1),
		{URL: "no-valid-link", ProgramText: "History"},
	}}

	counts, err := newTestPipeline(fetcher, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := domain.RunCounts{Fetched: 2, New: 1, Skipped: 0, Failed: 1}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}

func TestRunCarriesAbandonedPageFailures(t *testing.T) {
	store := newMemoryStore()
	fetcher := &fakeFetcher{
		raws:  []domain.RawListing{rawListing(1)},
		stats: domain.FetchStats{Pages: 1, FailedPages: 1, FailedEntries: 100},
	}

	counts, err := newTestPipeline(fetcher, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if counts.Failed != 100 || counts.New != 1 {
		t.Errorf("counts = %+v, want failed=100 new=1", counts)
	}
}

func TestRunPropagatesFetchError(t *testing.T) {
	store := newMemoryStore()
	fetcher := &fakeFetcher{err: errors.New("context canceled")}

	if _, err := newTestPipeline(fetcher, store).Run(context.Background()); err == nil {
		t.Error("want error from fetch")
	}
}

func TestRunRepeatedURLWithinBatchKeptOnce(t *testing.T) {
	store := newMemoryStore()
	fetcher := &fakeFetcher{raws: []domain.RawListing{rawListing(1), rawListing(1), rawListing(1)}}

	counts, err := newTestPipeline(fetcher, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := domain.RunCounts{Fetched: 3, New: 1, Skipped: 2, Failed: 0}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}
