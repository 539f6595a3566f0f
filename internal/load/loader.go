package load

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

// Inserter persists one entry. Implementations return false with a nil
// error when the url already exists (the constraint backstop).
type Inserter interface {
	Insert(ctx context.Context, entry domain.CleanedEntry) (bool, error)
}

// SearchMirror receives newly persisted entries for search indexing
type SearchMirror interface {
	BulkIndex(ctx context.Context, entries []domain.CleanedEntry) error
}

// Loader persists deduplicated entries one row at a time: a failing row
// never rolls back its batch, and duplicates count as skipped, not failed.
type Loader struct {
	inserter Inserter
	mirror   SearchMirror
}

// New creates a loader. mirror may be nil.
func New(inserter Inserter, mirror SearchMirror) *Loader {
	return &Loader{inserter: inserter, mirror: mirror}
}

// Load inserts each entry and reports aggregate counts plus the entries
// actually inserted. Search mirroring is best effort.
func (l *Loader) Load(ctx context.Context, entries []domain.CleanedEntry) (domain.RunCounts, []domain.CleanedEntry) {
	var counts domain.RunCounts
	inserted := make([]domain.CleanedEntry, 0, len(entries))

	for _, entry := range entries {
		ok, err := l.inserter.Insert(ctx, entry)
		switch {
		case err != nil:
			counts.Failed++
			log.WithFields(log.Fields{"url": entry.URL, "error": err}).Warn("insert failed")
		case ok:
			counts.New++
			inserted = append(inserted, entry)
		default:
			// Already present: expected on overlapping runs
			counts.Skipped++
		}
	}

	if l.mirror != nil && len(inserted) > 0 {
		if err := l.mirror.BulkIndex(ctx, inserted); err != nil {
			log.WithField("error", err).Warn("search mirror failed")
		}
	}

	return counts, inserted
}
