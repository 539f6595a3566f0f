package domain

import "time"

// Status is the decision reported by an applicant
type Status string

const (
	StatusAccepted   Status = "Accepted"
	StatusRejected   Status = "Rejected"
	StatusInterview  Status = "Interview"
	StatusWaitListed Status = "Wait listed"
	StatusUnknown    Status = "Unknown"
)

// Origin classifies the applicant as reported on the survey badge
type Origin string

const (
	OriginInternational Origin = "International"
	OriginAmerican      Origin = "American"
	OriginOther         Origin = "Other"
	OriginUnknown       Origin = "Unknown"
)

// Degree is the program degree type
type Degree string

const (
	DegreePhD     Degree = "PhD"
	DegreeMasters Degree = "Masters"
	DegreeMBA     Degree = "MBA"
	DegreeOther   Degree = "Other"
	DegreeUnknown Degree = "Unknown"
)

// RawListing is one unparsed survey entry as lifted off a listing page.
// The fetcher produces these; the normalizer consumes them once. Raw
// listings are never persisted.
type RawListing struct {
	// URL is the canonical result link and the unique key for the entry
	URL string `json:"url"`

	UniversityText string `json:"university_text"`
	ProgramText    string `json:"program_text"`
	DegreeText     string `json:"degree_text"`
	DateAddedText  string `json:"date_added_text"`
	DecisionText   string `json:"decision_text"`
	// BadgeTexts carries the detail-row badges: term, origin, GPA, GRE
	BadgeTexts  []string `json:"badge_texts,omitempty"`
	CommentText string   `json:"comment_text,omitempty"`
}

// CleanedEntry is a normalized survey entry. Fields whose source text was
// absent or unparseable are nil, never a placeholder value.
type CleanedEntry struct {
	URL        string `json:"url"`
	Program    string `json:"program"`
	University string `json:"university"`

	Status         Status     `json:"applicant_status"`
	AcceptanceDate *time.Time `json:"acceptance_date,omitempty"`
	RejectionDate  *time.Time `json:"rejection_date,omitempty"`

	SemesterYear *string `json:"semester_year,omitempty"`
	Origin       Origin  `json:"origin"`

	GREScore  *float64 `json:"gre_score,omitempty"`
	GREVScore *float64 `json:"gre_v_score,omitempty"`
	GREAW     *float64 `json:"gre_aw,omitempty"`

	Degree   Degree   `json:"degree_type"`
	GPA      *float64 `json:"gpa,omitempty"`
	Comments *string  `json:"comments,omitempty"`

	DateAdded time.Time `json:"date_added"`
}

// PersistedResult is a CleanedEntry with its storage-assigned id.
// Rows are append-only: never mutated or deleted by the pipeline.
type PersistedResult struct {
	ID int64 `json:"id"`
	CleanedEntry
}

// RunCounts summarizes one ingestion run
type RunCounts struct {
	Fetched int `json:"fetched"`
	New     int `json:"new"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add merges other into c
func (c *RunCounts) Add(other RunCounts) {
	c.Fetched += other.Fetched
	c.New += other.New
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}

// FetchStats reports page-level outcomes of a fetch pass
type FetchStats struct {
	Pages       int `json:"pages"`
	FailedPages int `json:"failed_pages"`
	// FailedEntries estimates entries lost to abandoned pages (page size
	// per failed page, since their rows were never parsed)
	FailedEntries int `json:"failed_entries"`
}
