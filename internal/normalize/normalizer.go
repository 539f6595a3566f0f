package normalize

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

// ErrNoURL is returned for listings without a usable result link.
// Such fragments cannot be keyed and are counted as parse failures.
var ErrNoURL = errors.New("listing has no valid url")

// Plausible score ranges. Values outside these are treated as absent.
const (
	greTotalMin  = 260
	greTotalMax  = 340
	greVerbalMin = 130
	greVerbalMax = 170
	greAWMin     = 0
	greAWMax     = 6
	gpaMin       = 0
	// Some institutions report on a 5.0 scale
	gpaMax = 5
)

// Normalizer converts RawListing fragments into CleanedEntry records.
// It is pure: no network or storage access, and normalizing an already
// cleaned entry is a no-op.
type Normalizer struct {
	strip *bluemonday.Policy
}

// New creates a normalizer with a strict HTML-stripping policy
func New() *Normalizer {
	return &Normalizer{strip: bluemonday.StrictPolicy()}
}

// Normalize converts one raw listing into a cleaned entry
func (n *Normalizer) Normalize(raw domain.RawListing) (domain.CleanedEntry, error) {
	url := cleanURL(raw.URL)
	if url == "" {
		return domain.CleanedEntry{}, fmt.Errorf("%w: %q", ErrNoURL, raw.URL)
	}

	entry := domain.CleanedEntry{
		URL:        url,
		University: n.cleanText(raw.UniversityText),
		Program:    n.cleanText(raw.ProgramText),
		Status:     domain.StatusUnknown,
		Origin:     domain.OriginUnknown,
		Degree:     parseDegree(raw.DegreeText),
	}

	if entry.Degree == domain.DegreeUnknown {
		// Degree is sometimes folded into the program span
		entry.Degree = parseDegree(raw.ProgramText)
	}

	entry.DateAdded = parseAddedDate(n.cleanText(raw.DateAddedText))

	status, decided := parseDecision(n.cleanText(raw.DecisionText), entry.DateAdded)
	entry.Status = status
	switch status {
	case domain.StatusAccepted:
		entry.AcceptanceDate = decided
	case domain.StatusRejected:
		entry.RejectionDate = decided
	}

	for _, badge := range raw.BadgeTexts {
		n.applyBadge(&entry, n.cleanText(badge))
	}

	if comment := n.cleanText(raw.CommentText); comment != "" {
		entry.Comments = &comment
		// Scores are often buried in the free-text notes
		n.applyScoresFromText(&entry, comment)
	}

	return entry, nil
}

// CleanEntry re-applies text hygiene and range checks to an entry that is
// already structured. Normalize output is a fixed point of CleanEntry.
func (n *Normalizer) CleanEntry(e domain.CleanedEntry) domain.CleanedEntry {
	e.URL = cleanURL(e.URL)
	e.University = n.cleanText(e.University)
	e.Program = n.cleanText(e.Program)

	if !knownStatus(e.Status) {
		e.Status = domain.StatusUnknown
	}
	if !knownOrigin(e.Origin) {
		e.Origin = domain.OriginUnknown
	}
	if !knownDegree(e.Degree) {
		e.Degree = domain.DegreeUnknown
	}

	e.GREScore = boundTo(e.GREScore, greTotalMin, greTotalMax)
	e.GREVScore = boundTo(e.GREVScore, greVerbalMin, greVerbalMax)
	e.GREAW = boundTo(e.GREAW, greAWMin, greAWMax)
	e.GPA = boundTo(e.GPA, gpaMin, gpaMax)

	if e.Comments != nil {
		if c := n.cleanText(*e.Comments); c != "" {
			e.Comments = &c
		} else {
			e.Comments = nil
		}
	}
	if e.SemesterYear != nil {
		if s := n.cleanText(*e.SemesterYear); s != "" {
			e.SemesterYear = &s
		} else {
			e.SemesterYear = nil
		}
	}

	return e
}

// applyBadge interprets one detail-row badge: term, origin or a score
func (n *Normalizer) applyBadge(entry *domain.CleanedEntry, text string) {
	if text == "" {
		return
	}
	if sem := parseSemester(text); sem != "" {
		if entry.SemesterYear == nil {
			entry.SemesterYear = &sem
		}
		return
	}
	if origin := parseOrigin(text); origin != domain.OriginUnknown {
		if entry.Origin == domain.OriginUnknown {
			entry.Origin = origin
		}
		return
	}
	n.applyScoresFromText(entry, text)
}

// applyScoresFromText fills GRE/GPA fields from free text without
// overwriting values found earlier
func (n *Normalizer) applyScoresFromText(entry *domain.CleanedEntry, text string) {
	if entry.GPA == nil {
		entry.GPA = extractGPA(text)
	}
	if entry.GREVScore == nil {
		entry.GREVScore = extractGREVerbal(text)
	}
	if entry.GREScore == nil {
		entry.GREScore = extractGRETotal(text)
	}
	if entry.GREAW == nil {
		entry.GREAW = extractGREAW(text)
	}
}

var whitespaceRe = regexp.MustCompile(`\s+`)
var punctOnlyRe = regexp.MustCompile(`^[\W_]+$`)

// missingTokens are placeholder strings that mean "no data"
var missingTokens = map[string]struct{}{
	"n/a": {}, "na": {}, "none": {}, "null": {}, "unknown": {},
	"not available": {}, "not applicable": {},
	"-": {}, "—": {}, "--": {}, "tbd": {},
}

// cleanText strips residual markup, collapses whitespace and maps
// placeholder tokens to the empty string. Idempotent.
func (n *Normalizer) cleanText(s string) string {
	s = html.UnescapeString(n.strip.Sanitize(s))
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	if s == "" {
		return ""
	}
	if _, ok := missingTokens[strings.ToLower(s)]; ok {
		return ""
	}
	if punctOnlyRe.MatchString(s) {
		return ""
	}
	return s
}

func cleanURL(s string) string {
	s = whitespaceRe.ReplaceAllString(s, "")
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return ""
	}
	return s
}

// parseDecision maps decision text like "Accepted on 29 Jan" to a status
// and decision date. The year is inferred from the listing's added date.
func parseDecision(text string, added time.Time) (domain.Status, *time.Time) {
	status := parseStatus(text)
	if status == domain.StatusUnknown {
		return status, nil
	}

	m := decisionDateRe.FindStringSubmatch(text)
	if m == nil {
		return status, nil
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return status, nil
	}
	month, ok := monthByName(m[2])
	if !ok {
		return status, nil
	}

	year := added.Year()
	if year == 0 || added.IsZero() {
		year = time.Now().Year()
	}
	// A December decision on a January listing belongs to the prior year
	if added.Month() == time.January && month == time.December {
		year--
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return status, &t
}

var decisionDateRe = regexp.MustCompile(`(?i)on\s+(\d{1,2})\s+([A-Za-z]+)`)

func parseStatus(text string) domain.Status {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "accept"):
		return domain.StatusAccepted
	case strings.Contains(lower, "reject"):
		return domain.StatusRejected
	case strings.Contains(lower, "interview"):
		return domain.StatusInterview
	case strings.Contains(lower, "wait list"), strings.Contains(lower, "waitlist"):
		return domain.StatusWaitListed
	default:
		return domain.StatusUnknown
	}
}

var semesterRe = regexp.MustCompile(`(?i)\b(Fall|Spring|Summer|Winter)\s+(\d{4})\b`)

// parseSemester extracts a term like "Fall 2026", canonicalized
func parseSemester(text string) string {
	m := semesterRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return titleCase(m[1]) + " " + m[2]
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func parseOrigin(text string) domain.Origin {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(lower, "international"):
		return domain.OriginInternational
	case strings.Contains(lower, "american"):
		return domain.OriginAmerican
	case lower == "other":
		return domain.OriginOther
	default:
		return domain.OriginUnknown
	}
}

func parseDegree(text string) domain.Degree {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return domain.DegreeUnknown
	}
	switch {
	case strings.Contains(lower, "phd"), strings.Contains(lower, "ph.d"):
		return domain.DegreePhD
	case strings.Contains(lower, "master"), strings.Contains(lower, " ms"),
		strings.HasPrefix(lower, "ms"), strings.Contains(lower, "m.s"):
		return domain.DegreeMasters
	case strings.Contains(lower, "mba"):
		return domain.DegreeMBA
	case strings.Contains(lower, "mfa"), strings.Contains(lower, "jd"),
		strings.Contains(lower, "edd"), strings.Contains(lower, "psyd"),
		strings.Contains(lower, "other"):
		return domain.DegreeOther
	default:
		return domain.DegreeUnknown
	}
}

var addedDateFormats = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"02/01/2006",
}

// parseAddedDate parses the "Added On" column. Returns the zero time when
// no format matches; absence is not an error.
func parseAddedDate(text string) time.Time {
	for _, format := range addedDateFormats {
		if t, err := time.Parse(format, text); err == nil {
			return t
		}
	}
	return time.Time{}
}

func monthByName(name string) (time.Month, bool) {
	for _, format := range []string{"Jan", "January"} {
		if t, err := time.Parse(format, titleCase(name)); err == nil {
			return t.Month(), true
		}
	}
	return 0, false
}

var (
	gpaRe       = regexp.MustCompile(`(?i)GPA\s*:?\s*(\d\.?\d*)`)
	greTotalRe  = regexp.MustCompile(`(?i)GRE\s*:?\s*(\d{2,3})\b`)
	greVerbalRe = regexp.MustCompile(`(?i)GRE\s*V(?:erbal)?\s*:?\s*(\d{2,3})\b`)
	greAWRe     = regexp.MustCompile(`(?i)(?:GRE\s*)?AW\s*:?\s*(\d\.?\d*)\b`)
)

func extractGPA(text string) *float64 {
	return boundedMatch(gpaRe, text, gpaMin, gpaMax)
}

func extractGRETotal(text string) *float64 {
	return boundedMatch(greTotalRe, text, greTotalMin, greTotalMax)
}

func extractGREVerbal(text string) *float64 {
	return boundedMatch(greVerbalRe, text, greVerbalMin, greVerbalMax)
}

func extractGREAW(text string) *float64 {
	return boundedMatch(greAWRe, text, greAWMin, greAWMax)
}

// boundedMatch extracts the first numeric capture within [min, max].
// Non-numeric or out-of-range text yields nil, never an error.
func boundedMatch(re *regexp.Regexp, text string, min, max float64) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < min || v > max {
		return nil
	}
	return &v
}

func boundTo(v *float64, min, max float64) *float64 {
	if v == nil || *v < min || *v > max {
		return nil
	}
	return v
}

func knownStatus(s domain.Status) bool {
	switch s {
	case domain.StatusAccepted, domain.StatusRejected, domain.StatusInterview,
		domain.StatusWaitListed, domain.StatusUnknown:
		return true
	}
	return false
}

func knownOrigin(o domain.Origin) bool {
	switch o {
	case domain.OriginInternational, domain.OriginAmerican,
		domain.OriginOther, domain.OriginUnknown:
		return true
	}
	return false
}

func knownDegree(d domain.Degree) bool {
	switch d {
	case domain.DegreePhD, domain.DegreeMasters, domain.DegreeMBA,
		domain.DegreeOther, domain.DegreeUnknown:
		return true
	}
	return false
}
