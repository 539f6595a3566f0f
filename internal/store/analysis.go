package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Analysis holds the summary statistics the dashboard reads. Computed
// entirely in SQL over the persisted entries.
type Analysis struct {
	TotalEntries         int      `json:"total_entries"`
	InternationalPercent *float64 `json:"international_percent,omitempty"`
	AverageGPA           *float64 `json:"average_gpa,omitempty"`
	AverageGRE           *float64 `json:"average_gre,omitempty"`
	AverageGREVerbal     *float64 `json:"average_gre_verbal,omitempty"`
	AverageGREAW         *float64 `json:"average_gre_aw,omitempty"`
	FallTermCount        int      `json:"fall_term_count"`
	FallAcceptPercent    *float64 `json:"fall_accept_percent,omitempty"`
	LatestDateAdded      *string  `json:"latest_date_added,omitempty"`
}

// Summary computes the analysis snapshot. The HTTP layer refuses to serve
// it while an ingestion run is active.
func (s *Postgres) Summary(ctx context.Context) (*Analysis, error) {
	a := &Analysis{}

	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName),
	).Scan(&a.TotalEntries); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	scalars := []struct {
		dst   **float64
		query string
	}{
		{&a.InternationalPercent, fmt.Sprintf(
			"SELECT 100.0 * COUNT(*) FILTER (WHERE origin = 'International') / NULLIF(COUNT(*), 0) FROM %s", s.tableName)},
		{&a.AverageGPA, fmt.Sprintf("SELECT AVG(gpa) FROM %s WHERE gpa IS NOT NULL", s.tableName)},
		{&a.AverageGRE, fmt.Sprintf("SELECT AVG(gre_score) FROM %s WHERE gre_score IS NOT NULL", s.tableName)},
		{&a.AverageGREVerbal, fmt.Sprintf("SELECT AVG(gre_v_score) FROM %s WHERE gre_v_score IS NOT NULL", s.tableName)},
		{&a.AverageGREAW, fmt.Sprintf("SELECT AVG(gre_aw) FROM %s WHERE gre_aw IS NOT NULL", s.tableName)},
		{&a.FallAcceptPercent, fmt.Sprintf(
			"SELECT 100.0 * COUNT(*) FILTER (WHERE status = 'Accepted') / NULLIF(COUNT(*), 0) FROM %s WHERE semester_year LIKE 'Fall %%'", s.tableName)},
	}
	for _, q := range scalars {
		if err := s.scanNullFloat(ctx, q.query, q.dst); err != nil {
			return nil, err
		}
	}

	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE semester_year LIKE 'Fall %%'", s.tableName),
	).Scan(&a.FallTermCount); err != nil {
		return nil, fmt.Errorf("count fall term: %w", err)
	}

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT MAX(date_added)::text FROM %s", s.tableName),
	).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest date added: %w", err)
	}
	if latest.Valid {
		a.LatestDateAdded = &latest.String
	}

	return a, nil
}

func (s *Postgres) scanNullFloat(ctx context.Context, query string, dst **float64) error {
	var v sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return fmt.Errorf("summary scalar: %w", err)
	}
	if v.Valid {
		f := v.Float64
		*dst = &f
	}
	return nil
}
