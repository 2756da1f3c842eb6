package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/fidelity/kit"
	"github.com/hazyhaar/fidelity/store"
)

func newLogger(t *testing.T) *Logger {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	l, err := New(st.DB, 16, WithFlushInterval(time.Hour))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestLog_Sync(t *testing.T) {
	l := newLogger(t)
	defer l.Close()
	ctx := context.Background()

	e := &Entry{Endpoint: "fidelity_diff_text", Error: "boom"}
	if err := l.Log(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.ID == "" || e.Status != "error" || e.Transport != "http" || e.Parameters != "{}" {
		t.Fatalf("defaults not filled: %+v", e)
	}

	got, err := l.Query(ctx, Filter{Endpoint: "fidelity_diff_text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Error != "boom" || got[0].ID != e.ID {
		t.Fatalf("got %+v", got)
	}
}

func TestLogAsync_DrainedOnClose(t *testing.T) {
	l := newLogger(t)
	for i := 0; i < 5; i++ {
		l.LogAsync(&Entry{Endpoint: "compare"})
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := l.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("entries = %d, want 5", len(got))
	}
}

func TestMiddleware(t *testing.T) {
	l := newLogger(t)
	errFail := errors.New("frame not found")

	ep := l.Middleware("compare")(func(_ context.Context, req any) (any, error) {
		if req.(map[string]string)["frame"] == "missing" {
			return nil, errFail
		}
		return "ok", nil
	})

	ctx := kit.WithTraceID(kit.WithTransport(context.Background(), "mcp"), "t-1")
	if _, err := ep(ctx, map[string]string{"frame": "Landing"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ep(ctx, map[string]string{"frame": "missing"}); !errors.Is(err, errFail) {
		t.Fatalf("err = %v", err)
	}
	l.Close()

	failed, err := l.Query(context.Background(), Filter{Status: "error"})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed entries = %d, want 1", len(failed))
	}
	e := failed[0]
	if e.Endpoint != "compare" || e.Transport != "mcp" || e.TraceID != "t-1" {
		t.Errorf("entry = %+v", e)
	}
	if e.Parameters != `{"frame":"missing"}` || e.Error != "frame not found" {
		t.Errorf("entry = %+v", e)
	}
}

func TestCleanup(t *testing.T) {
	l := newLogger(t)
	defer l.Close()
	ctx := context.Background()

	l.Log(ctx, &Entry{Endpoint: "old", Timestamp: time.Now().Add(-48 * time.Hour)})
	l.Log(ctx, &Entry{Endpoint: "new"})

	n, err := l.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
}

func TestMiddleware_TruncatesLargeParameters(t *testing.T) {
	l := newLogger(t)
	ep := l.Middleware("fidelity_diff_text")(func(context.Context, any) (any, error) {
		return nil, nil
	})
	// Two-byte runes put the cut in the middle of one.
	big := map[string]string{"a": "x" + strings.Repeat("é", maxParams)}
	if _, err := ep(context.Background(), big); err != nil {
		t.Fatal(err)
	}
	l.Close()

	got, err := l.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("entries = %d", len(got))
	}
	p := got[0].Parameters
	if !json.Valid([]byte(p)) {
		t.Fatalf("parameters are not valid JSON: %.80q", p)
	}
	var stored struct {
		Truncated bool   `json:"truncated"`
		Prefix    string `json:"prefix"`
	}
	if err := json.Unmarshal([]byte(p), &stored); err != nil {
		t.Fatal(err)
	}
	if !stored.Truncated {
		t.Error("truncated flag not set")
	}
	if strings.ContainsRune(stored.Prefix, '\uFFFD') {
		t.Error("prefix was cut inside a rune")
	}
	if !strings.HasPrefix(stored.Prefix, `{"a":"xé`) {
		t.Errorf("prefix = %.40q", stored.Prefix)
	}
}
