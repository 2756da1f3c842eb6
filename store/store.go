// Package store persists comparison reports and the page snapshots they
// were computed from in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a report or snapshot does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the fidelity database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path, applies pragmas and the
// schema.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := openDB(path, append([]Option{WithMkdirAll()}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// OpenMemory opens an in-memory database. All queries share one
// connection since each ":memory:" connection is a separate database.
func OpenMemory() (*Store, error) {
	db, err := openDB(":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Report is a stored comparison. Body holds the full JSON report; the
// other fields are indexed projections of it.
type Report struct {
	ID                string          `json:"id"`
	FileKey           string          `json:"fileKey"`
	FrameName         string          `json:"frameName"`
	PageURL           string          `json:"pageUrl"`
	Similarity        *float64        `json:"similarity,omitempty"`
	ContentSimilarity *float64        `json:"contentSimilarity,omitempty"`
	MismatchCount     int             `json:"mismatchCount"`
	Body              json.RawMessage `json:"body,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Snapshot is the page markup a report was computed from.
type Snapshot struct {
	ReportID   string    `json:"reportId"`
	PageURL    string    `json:"pageUrl"`
	Title      string    `json:"title"`
	HTML       string    `json:"html"`
	Markdown   string    `json:"markdown"`
	CapturedAt time.Time `json:"capturedAt"`
}

// ListFilter narrows ListReports. Zero values mean no filter.
type ListFilter struct {
	FileKey string
	Limit   int
}

// SaveReport inserts or replaces a report.
func (s *Store) SaveReport(ctx context.Context, r *Report) error {
	if r.ID == "" {
		return fmt.Errorf("store: save report: empty id")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return runTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO reports
				(id, file_key, frame_name, page_url, similarity, content_similarity, mismatch_count, body, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.FileKey, r.FrameName, r.PageURL,
			nullFloat(r.Similarity), nullFloat(r.ContentSimilarity),
			r.MismatchCount, string(r.Body), r.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("store: save report: %w", err)
		}
		return nil
	})
}

// GetReport returns the report with the given id, including its body.
func (s *Store) GetReport(ctx context.Context, id string) (*Report, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, file_key, frame_name, page_url, similarity, content_similarity, mismatch_count, body, created_at
		FROM reports WHERE id = ?`, id)

	var r Report
	var sim, csim sql.NullFloat64
	var body string
	var created int64
	err := row.Scan(&r.ID, &r.FileKey, &r.FrameName, &r.PageURL, &sim, &csim, &r.MismatchCount, &body, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get report: %w", err)
	}
	r.Similarity = floatPtr(sim)
	r.ContentSimilarity = floatPtr(csim)
	r.Body = json.RawMessage(body)
	r.CreatedAt = time.UnixMilli(created)
	return &r, nil
}

// ListReports returns report summaries, newest first, without bodies.
func (s *Store) ListReports(ctx context.Context, f ListFilter) ([]*Report, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	q := `SELECT id, file_key, frame_name, page_url, similarity, content_similarity, mismatch_count, created_at FROM reports`
	var args []any
	if f.FileKey != "" {
		q += ` WHERE file_key = ?`
		args = append(args, f.FileKey)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list reports: %w", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		var r Report
		var sim, csim sql.NullFloat64
		var created int64
		if err := rows.Scan(&r.ID, &r.FileKey, &r.FrameName, &r.PageURL, &sim, &csim, &r.MismatchCount, &created); err != nil {
			return nil, fmt.Errorf("store: scan report: %w", err)
		}
		r.Similarity = floatPtr(sim)
		r.ContentSimilarity = floatPtr(csim)
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteReport removes a report and its snapshot.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	return runTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("store: delete report: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: delete report: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SaveSnapshot stores the page snapshot of an existing report.
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now()
	}
	return runTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO snapshots (report_id, page_url, title, html, markdown, captured_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snap.ReportID, snap.PageURL, snap.Title, snap.HTML, snap.Markdown, snap.CapturedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("store: save snapshot: %w", err)
		}
		return nil
	})
}

// GetSnapshot returns the snapshot stored for reportID.
func (s *Store) GetSnapshot(ctx context.Context, reportID string) (*Snapshot, error) {
	var snap Snapshot
	var captured int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT report_id, page_url, title, html, markdown, captured_at
		FROM snapshots WHERE report_id = ?`, reportID).
		Scan(&snap.ReportID, &snap.PageURL, &snap.Title, &snap.HTML, &snap.Markdown, &captured)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get snapshot: %w", err)
	}
	snap.CapturedAt = time.UnixMilli(captured)
	return &snap, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
