package dedup

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

// URLChecker is the persisted-store capability the deduplicator needs
type URLChecker interface {
	URLExists(ctx context.Context, url string) (bool, error)
}

// SeenCache is an optional fast-path cache in front of the store check.
// A cache miss is never authoritative; it only short-circuits hits.
type SeenCache interface {
	IsSeen(ctx context.Context, url string) (bool, error)
	MarkSeen(ctx context.Context, url string) error
}

// Deduplicator filters entries whose URL is already known, either within
// the current batch or in the persisted store
type Deduplicator struct {
	store URLChecker
	cache SeenCache
}

// New creates a deduplicator. cache may be nil.
func New(store URLChecker, cache SeenCache) *Deduplicator {
	return &Deduplicator{store: store, cache: cache}
}

// Filter returns the entries not yet known, keeping the first occurrence
// of any URL repeated within the batch, and the count of entries dropped.
// Cache or store lookup errors degrade to "let it through": the store's
// unique constraint is the authoritative backstop.
func (d *Deduplicator) Filter(ctx context.Context, entries []domain.CleanedEntry) ([]domain.CleanedEntry, int) {
	fresh := make([]domain.CleanedEntry, 0, len(entries))
	inBatch := make(map[string]struct{}, len(entries))
	skipped := 0

	for _, entry := range entries {
		if _, ok := inBatch[entry.URL]; ok {
			skipped++
			continue
		}
		inBatch[entry.URL] = struct{}{}

		if d.known(ctx, entry.URL) {
			skipped++
			continue
		}
		fresh = append(fresh, entry)
	}

	return fresh, skipped
}

// MarkLoaded records freshly persisted URLs in the seen cache
func (d *Deduplicator) MarkLoaded(ctx context.Context, entries []domain.CleanedEntry) {
	if d.cache == nil {
		return
	}
	for _, entry := range entries {
		if err := d.cache.MarkSeen(ctx, entry.URL); err != nil {
			log.WithFields(log.Fields{"url": entry.URL, "error": err}).Warn("mark seen failed")
			return
		}
	}
}

func (d *Deduplicator) known(ctx context.Context, url string) bool {
	if d.cache != nil {
		seen, err := d.cache.IsSeen(ctx, url)
		if err != nil {
			log.WithFields(log.Fields{"url": url, "error": err}).Warn("seen cache check failed")
		} else if seen {
			return true
		}
	}

	exists, err := d.store.URLExists(ctx, url)
	if err != nil {
		log.WithFields(log.Fields{"url": url, "error": err}).Warn("store url check failed")
		return false
	}
	return exists
}
