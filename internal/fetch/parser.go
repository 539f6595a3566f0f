package fetch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

var resultLinkRe = regexp.MustCompile(`/result/\d+`)

// parseListingRows walks the listing table body. Each survey entry spans a
// main row plus up to two "tw-border-none" continuation rows: a badge row
// (term, origin, scores) and a comment row.
func parseListingRows(tbody *goquery.Selection, baseURL string) []domain.RawListing {
	rows := tbody.Find("tr")
	total := rows.Length()

	var out []domain.RawListing
	i := 0
	for i < total {
		row := rows.Eq(i)
		if isContinuationRow(row) {
			i++
			continue
		}

		main := row
		var detail, comment *goquery.Selection
		if i+1 < total && isContinuationRow(rows.Eq(i + 1)) {
			detail = rows.Eq(i + 1)
			i++
		}
		if i+1 < total && isContinuationRow(rows.Eq(i + 1)) {
			comment = rows.Eq(i + 1)
			i++
		}

		if listing, ok := parseListing(main, detail, comment, baseURL); ok {
			out = append(out, listing)
		}
		i++
	}
	return out
}

func isContinuationRow(row *goquery.Selection) bool {
	cls, _ := row.Attr("class")
	return strings.Contains(cls, "tw-border-none")
}

// parseListing lifts the raw cell texts for one entry. Returns false when
// the row has no usable result link or too few cells.
func parseListing(main, detail, comment *goquery.Selection, baseURL string) (domain.RawListing, bool) {
	tds := main.Find("td")
	if tds.Length() < 4 {
		return domain.RawListing{}, false
	}

	url := resultURL(main, baseURL)
	if url == "" {
		return domain.RawListing{}, false
	}

	listing := domain.RawListing{
		URL:            url,
		UniversityText: strings.TrimSpace(tds.Eq(0).Text()),
		DateAddedText:  strings.TrimSpace(tds.Eq(2).Text()),
		DecisionText:   strings.TrimSpace(tds.Eq(3).Text()),
	}

	// Program cell holds two spans: program name, then degree type
	spans := tds.Eq(1).Find("span")
	if spans.Length() > 0 {
		listing.ProgramText = strings.TrimSpace(spans.Eq(0).Text())
	} else {
		listing.ProgramText = strings.TrimSpace(tds.Eq(1).Text())
	}
	if spans.Length() >= 2 {
		listing.DegreeText = strings.TrimSpace(spans.Eq(1).Text())
	}

	if detail != nil {
		detail.Find("div.tw-inline-flex").Each(func(_ int, badge *goquery.Selection) {
			if text := strings.TrimSpace(badge.Text()); text != "" {
				listing.BadgeTexts = append(listing.BadgeTexts, text)
			}
		})
	}

	if comment != nil {
		listing.CommentText = strings.TrimSpace(comment.Find("p").First().Text())
	}

	return listing, true
}

func resultURL(main *goquery.Selection, baseURL string) string {
	var url string
	main.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !resultLinkRe.MatchString(href) {
			return true
		}
		if strings.HasPrefix(href, "/") {
			url = baseURL + href
		} else {
			url = href
		}
		return false
	})
	return url
}
