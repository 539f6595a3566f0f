package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly/v2"
	log "github.com/sirupsen/logrus"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

// Config holds fetcher configuration
type Config struct {
	BaseURL string
	PerPage int
	// MaxPages caps pagination regardless of target
	MaxPages  int
	UserAgent string
	// RequestDelay is the politeness delay between page requests
	RequestDelay time.Duration
	// MaxRetries bounds retries per page after the first attempt
	MaxRetries     int
	RetryBackoff   time.Duration
	RequestTimeout time.Duration
}

// Fetcher paginates the survey listing and yields raw entry fragments
type Fetcher struct {
	collector *colly.Collector
	cfg       Config
}

// New creates a fetcher for the survey listing pages
func New(cfg Config) *Fetcher {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(cfg.RequestTimeout)

	if cfg.RequestDelay > 0 {
		c.Limit(&colly.LimitRule{
			DomainGlob: "*",
			Delay:      cfg.RequestDelay,
		})
	}

	return &Fetcher{collector: c, cfg: cfg}
}

// Fetch requests successive listing pages until the target minimum entry
// count is reached, the page cap is hit, or a page yields zero entries not
// already in known (end-of-data heuristic). A page that fails all retries
// is skipped and recorded in the stats; it does not abort the run. Entries
// whose URL is in known are still returned so the deduplicator can account
// for them; known only feeds the stop heuristic here.
func (f *Fetcher) Fetch(ctx context.Context, target int, known map[string]struct{}) ([]domain.RawListing, domain.FetchStats, error) {
	var all []domain.RawListing
	var stats domain.FetchStats
	seen := make(map[string]struct{})

	for page := 1; page <= f.cfg.MaxPages && len(all) < target; page++ {
		select {
		case <-ctx.Done():
			return all, stats, ctx.Err()
		default:
		}

		listings, err := f.fetchPage(ctx, page)
		if err != nil {
			stats.FailedPages++
			stats.FailedEntries += f.cfg.PerPage
			log.WithFields(log.Fields{"page": page, "error": err}).
				Warn("page abandoned after retries")
			continue
		}
		stats.Pages++

		newOnPage := 0
		for _, l := range listings {
			if _, dup := seen[l.URL]; dup {
				continue
			}
			seen[l.URL] = struct{}{}
			if _, ok := known[l.URL]; !ok {
				newOnPage++
			}
			all = append(all, l)
		}

		log.WithFields(log.Fields{"page": page, "entries": len(listings), "new": newOnPage, "total": len(all)}).
			Debug("page fetched")

		if len(listings) == 0 || newOnPage == 0 {
			break
		}
	}

	return all, stats, nil
}

// fetchPage fetches and parses one listing page with bounded retries
func (f *Fetcher) fetchPage(ctx context.Context, page int) ([]domain.RawListing, error) {
	url := f.pageURL(page)

	var listings []domain.RawListing
	visit := func() error {
		listings = listings[:0]

		collector := f.collector.Clone()
		var pageErr error

		collector.OnHTML("tbody", func(el *colly.HTMLElement) {
			listings = append(listings, parseListingRows(el.DOM, f.cfg.BaseURL)...)
		})
		collector.OnError(func(r *colly.Response, err error) {
			pageErr = fmt.Errorf("fetch page %d: %w (status: %d)", page, err, r.StatusCode)
		})

		if err := collector.Visit(url); err != nil {
			if pageErr != nil {
				return pageErr
			}
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return pageErr
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.RetryBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(f.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(visit, policy); err != nil {
		return nil, err
	}
	return listings, nil
}

// pageURL builds the survey pagination URL, matching the source's scheme
func (f *Fetcher) pageURL(page int) string {
	if page <= 1 {
		return fmt.Sprintf("%s/survey/?per_page=%d", f.cfg.BaseURL, f.cfg.PerPage)
	}
	return fmt.Sprintf("%s/survey/?per_page=%d&page=%d", f.cfg.BaseURL, f.cfg.PerPage, page)
}
