package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// surveyServer serves scripted listing pages keyed by page number and
// records how often each page was requested
type surveyServer struct {
	*httptest.Server

	mu       sync.Mutex
	pages    map[int]string
	failing  map[int]bool
	requests map[int]int
}

func newSurveyServer(t *testing.T) *surveyServer {
	t.Helper()
	s := &surveyServer{
		pages:    make(map[int]string),
		failing:  make(map[int]bool),
		requests: make(map[int]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/survey/") {
			http.NotFound(w, r)
			return
		}
		page := 1
		if v := r.URL.Query().Get("page"); v != "" {
			page, _ = strconv.Atoi(v)
		}

		s.mu.Lock()
		s.requests[page]++
		body, ok := s.pages[page]
		fail := s.failing[page]
		s.mu.Unlock()

		if fail {
			http.Error(w, "upstream error", http.StatusInternalServerError)
			return
		}
		if !ok {
			body = pageHTML()
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *surveyServer) hits(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[page]
}

func pageHTML(rows ...string) string {
	return fmt.Sprintf(
		"<html><body><table><tbody>%s</tbody></table></body></html>",
		strings.Join(rows, "\n"),
	)
}

func entryRows(id int) string {
	return fmt.Sprintf(`
<tr>
  <td>Johns Hopkins University</td>
  <td><div><span>Computer Science</span><span>PhD</span></div></td>
  <td>January 31, 2026</td>
  <td>Accepted on 29 Jan</td>
  <td><a href="/result/%d">Open options</a></td>
</tr>
<tr class="tw-border-none">
  <td colspan="5">
    <div class="tw-inline-flex">Fall 2026</div>
    <div class="tw-inline-flex">International</div>
    <div class="tw-inline-flex">GPA 3.69</div>
  </td>
</tr>
<tr class="tw-border-none">
  <td colspan="5"><p>Solid fit. GRE 328</p></td>
</tr>`, id)
}

func resultURLOf(s *surveyServer, id int) string {
	return fmt.Sprintf("%s/result/%d", s.URL, id)
}

func newTestFetcher(s *surveyServer, perPage int) *Fetcher {
	return New(Config{
		BaseURL:      s.URL,
		PerPage:      perPage,
		MaxPages:     10,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})
}

func TestFetchParsesEntryFields(t *testing.T) {
	server := newSurveyServer(t)
	server.pages[1] = pageHTML(entryRows(101))

	raws, stats, err := newTestFetcher(server, 1).Fetch(context.Background(), 100, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("raws = %d, want 1", len(raws))
	}
	if stats.Pages == 0 || stats.FailedPages != 0 {
		t.Errorf("stats = %+v", stats)
	}

	raw := raws[0]
	if raw.URL != resultURLOf(server, 101) {
		t.Errorf("url = %q", raw.URL)
	}
	if raw.UniversityText != "Johns Hopkins University" {
		t.Errorf("university = %q", raw.UniversityText)
	}
	if raw.ProgramText != "Computer Science" || raw.DegreeText != "PhD" {
		t.Errorf("program = %q, degree = %q", raw.ProgramText, raw.DegreeText)
	}
	if raw.DateAddedText != "January 31, 2026" {
		t.Errorf("date_added = %q", raw.DateAddedText)
	}
	if raw.DecisionText != "Accepted on 29 Jan" {
		t.Errorf("decision = %q", raw.DecisionText)
	}
	if len(raw.BadgeTexts) != 3 || raw.BadgeTexts[0] != "Fall 2026" {
		t.Errorf("badges = %v", raw.BadgeTexts)
	}
	if raw.CommentText != "Solid fit. GRE 328" {
		t.Errorf("comment = %q", raw.CommentText)
	}
}

func TestFetchStopsWhenPageYieldsNothingNew(t *testing.T) {
	server := newSurveyServer(t)
	server.pages[1] = pageHTML(entryRows(1), entryRows(2))
	server.pages[2] = pageHTML(entryRows(3), entryRows(4))
	server.pages[3] = pageHTML(entryRows(5), entryRows(6))

	known := map[string]struct{}{
		resultURLOf(server, 3): {},
		resultURLOf(server, 4): {},
	}

	raws, stats, err := newTestFetcher(server, 2).Fetch(context.Background(), 100, known)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// Page 2 holds only known entries, so pagination stops there. The
	// known entries are still returned for downstream accounting.
	if len(raws) != 4 {
		t.Errorf("raws = %d, want 4", len(raws))
	}
	if stats.Pages != 2 {
		t.Errorf("pages = %d, want 2", stats.Pages)
	}
	if server.hits(3) != 0 {
		t.Errorf("page 3 requested %d times, want 0", server.hits(3))
	}
}

func TestFetchStopsOnEmptyPage(t *testing.T) {
	server := newSurveyServer(t)
	server.pages[1] = pageHTML(entryRows(1))
	server.pages[2] = pageHTML()

	raws, stats, err := newTestFetcher(server, 1).Fetch(context.Background(), 100, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raws) != 1 || stats.Pages != 2 {
		t.Errorf("raws = %d, stats = %+v", len(raws), stats)
	}
	if server.hits(3) != 0 {
		t.Errorf("page 3 requested %d times, want 0", server.hits(3))
	}
}

func TestFetchStopsAtTarget(t *testing.T) {
	server := newSurveyServer(t)
	server.pages[1] = pageHTML(entryRows(1), entryRows(2))
	server.pages[2] = pageHTML(entryRows(3), entryRows(4))

	raws, _, err := newTestFetcher(server, 2).Fetch(context.Background(), 2, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raws) != 2 {
		t.Errorf("raws = %d, want 2", len(raws))
	}
	if server.hits(2) != 0 {
		t.Errorf("page 2 requested %d times, want 0", server.hits(2))
	}
}

func TestFetchSkipsPageThatFailsAllRetries(t *testing.T) {
	server := newSurveyServer(t)
	server.failing[1] = true
	server.pages[2] = pageHTML(entryRows(1))
	server.pages[3] = pageHTML()

	raws, stats, err := newTestFetcher(server, 2).Fetch(context.Background(), 100, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if stats.FailedPages != 1 {
		t.Errorf("failed_pages = %d, want 1", stats.FailedPages)
	}
	if stats.FailedEntries != 2 {
		t.Errorf("failed_entries = %d, want per-page estimate 2", stats.FailedEntries)
	}
	if len(raws) != 1 || raws[0].URL != resultURLOf(server, 1) {
		t.Errorf("raws = %v, want the entry from page 2", raws)
	}
	// MaxRetries=1 means two attempts on the failing page
	if server.hits(1) != 2 {
		t.Errorf("page 1 requested %d times, want 2", server.hits(1))
	}
}

func TestFetchDropsMalformedRows(t *testing.T) {
	server := newSurveyServer(t)
	server.pages[1] = pageHTML(
		entryRows(1),
		// too few cells, no result link
		`<tr><td>Orphan University</td></tr>`,
	)

	raws, _, err := newTestFetcher(server, 2).Fetch(context.Background(), 100, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raws) != 1 || raws[0].URL != resultURLOf(server, 1) {
		t.Errorf("raws = %v, want only the well-formed entry", raws)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	server := newSurveyServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestFetcher(server, 1).Fetch(ctx, 100, nil)
	if err == nil {
		t.Error("want error for canceled context")
	}
}
