package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

// Postgres persists cleaned entries into a single relational table with a
// unique constraint on url. Ingestion is append-only.
type Postgres struct {
	db        *sql.DB
	tableName string
}

// NewPostgres opens a connection and ensures the table exists
func NewPostgres(connStr, tableName string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Postgres{db: db, tableName: tableName}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensure table: %w", err)
	}
	return s, nil
}

// ensureTable creates the results table if it doesn't exist
func (s *Postgres) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			program TEXT,
			university TEXT,
			status TEXT,
			acceptance_date DATE,
			rejection_date DATE,
			semester_year TEXT,
			origin TEXT,
			gre_score DOUBLE PRECISION,
			gre_v_score DOUBLE PRECISION,
			gre_aw DOUBLE PRECISION,
			degree TEXT,
			gpa DOUBLE PRECISION,
			comments TEXT,
			date_added DATE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, s.tableName)

	_, err := s.db.Exec(query)
	return err
}

// Insert persists one entry. Returns false with a nil error when the url
// already exists; the unique constraint is the idempotency backstop.
func (s *Postgres) Insert(ctx context.Context, e domain.CleanedEntry) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			url, program, university, status,
			acceptance_date, rejection_date, semester_year, origin,
			gre_score, gre_v_score, gre_aw, degree, gpa, comments, date_added
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (url) DO NOTHING
	`, s.tableName)

	res, err := s.db.ExecContext(ctx, query,
		e.URL, e.Program, e.University, string(e.Status),
		e.AcceptanceDate, e.RejectionDate, e.SemesterYear, string(e.Origin),
		e.GREScore, e.GREVScore, e.GREAW, string(e.Degree), e.GPA, e.Comments, nullableDate(e.DateAdded),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert entry: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

// URLExists reports whether an entry with this url is already persisted
func (s *Postgres) URLExists(ctx context.Context, url string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE url = $1)", s.tableName)

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("url exists: %w", err)
	}
	return exists, nil
}

// ExistingURLs returns the set of urls already persisted
func (s *Postgres) ExistingURLs(ctx context.Context) (map[string]struct{}, error) {
	query := fmt.Sprintf("SELECT url FROM %s", s.tableName)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select urls: %w", err)
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls[url] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return urls, nil
}

// Close closes the database connection
func (s *Postgres) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// nullableDate maps the zero time to NULL
func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
