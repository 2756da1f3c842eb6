// Package audit records every API and MCP endpoint call in SQLite: which
// operation ran, over which transport, with what arguments, how long it
// took and whether it failed.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/fidelity/idgen"
	"github.com/hazyhaar/fidelity/kit"
)

// Schema is the DDL for the audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id    TEXT PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    endpoint    TEXT NOT NULL,
    transport   TEXT NOT NULL,
    trace_id    TEXT NOT NULL DEFAULT '',
    parameters  TEXT NOT NULL DEFAULT '{}',
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_endpoint ON audit_log(endpoint, timestamp DESC);
`

// maxParams truncates stored parameters; diff inputs can be whole pages.
const maxParams = 4096

// Entry is one endpoint call.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Endpoint   string    `json:"endpoint"`
	Transport  string    `json:"transport"`
	TraceID    string    `json:"traceId,omitempty"`
	Parameters string    `json:"parameters"`
	Status     string    `json:"status"` // "success" or "error"
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
}

// Filter narrows Query. Zero values mean no filter.
type Filter struct {
	Endpoint string
	Status   string
	Limit    int // default 100
}

// Logger persists entries asynchronously in batches.
type Logger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Entry
	stop  chan struct{}
	done  chan struct{}
	flush time.Duration
}

// Option configures a Logger.
type Option func(*Logger)

// WithFlushInterval sets how often queued entries are written. Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(l *Logger) { l.flush = d }
}

// New creates the audit table if needed and starts the flush loop.
// Recommended bufferSize: 1000.
func New(db *sql.DB, bufferSize int, opts ...Option) (*Logger, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}
	l := &Logger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *Entry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		flush: 5 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l, nil
}

// Log inserts an entry synchronously.
func (l *Logger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	return l.insert(ctx, l.db, e)
}

// LogAsync queues an entry. Falls back to a synchronous insert when the
// buffer is full.
func (l *Logger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	select {
	case l.ch <- e:
	default:
		slog.Warn("audit: buffer full, sync fallback", "endpoint", e.Endpoint)
		if err := l.insert(context.Background(), l.db, e); err != nil {
			slog.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// Middleware records every call of the wrapped endpoint.
func (l *Logger) Middleware(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			e := &Entry{
				Endpoint:   name,
				Transport:  kit.GetTransport(ctx),
				TraceID:    kit.GetTraceID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if b, merr := json.Marshal(req); merr == nil {
				e.Parameters = params(b)
			}
			if err != nil {
				e.Status = "error"
				e.Error = err.Error()
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}

// params keeps p as is when it fits, otherwise stores a valid JSON object
// holding its prefix cut at a rune boundary.
func params(p []byte) string {
	if len(p) <= maxParams {
		return string(p)
	}
	n := maxParams
	for n > 0 && !utf8.RuneStart(p[n]) {
		n--
	}
	b, _ := json.Marshal(struct {
		Truncated bool   `json:"truncated"`
		Size      int    `json:"size"`
		Prefix    string `json:"prefix"`
	}{true, len(p), string(p[:n])})
	return string(b)
}

// Query returns entries, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	q := `SELECT entry_id, timestamp, endpoint, transport, trace_id, parameters, status, error, duration_ms
		FROM audit_log WHERE 1=1`
	var args []any
	if f.Endpoint != "" {
		q += " AND endpoint = ?"
		args = append(args, f.Endpoint)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Endpoint, &e.Transport, &e.TraceID,
			&e.Parameters, &e.Status, &e.Error, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retention.
func (l *Logger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := l.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush loop.
func (l *Logger) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

func (l *Logger) fillDefaults(e *Entry) {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (l *Logger) insert(ctx context.Context, db execer, e *Entry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO audit_log
		(entry_id, timestamp, endpoint, transport, trace_id, parameters, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixMilli(), e.Endpoint, e.Transport, e.TraceID,
		e.Parameters, e.Status, e.Error, e.DurationMs)
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", e.ID, err)
	}
	return nil
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(l.flush)
	defer ticker.Stop()
	batch := make([]*Entry, 0, 100)

	write := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			slog.Error("audit: begin tx", "error", err)
			return
		}
		for _, e := range batch {
			if err := l.insert(ctx, tx, e); err != nil {
				slog.Error("audit: flush", "error", err)
			}
		}
		if err := tx.Commit(); err != nil {
			slog.Error("audit: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					write()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				write()
			}
		case <-ticker.C:
			write()
		}
	}
}
