package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestChildSpansShareTrace(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, child := StartChildSpan(ctx, "evaluate")
			child.SetAttr("worker", i)
			child.End()
		}()
	}
	wg.Wait()
	root.End()

	children := root.Children()
	if len(children) != 4 {
		t.Fatalf("children = %d, want 4", len(children))
	}
	for _, c := range children {
		if c.TraceID != "req-1" {
			t.Errorf("child trace id = %q", c.TraceID)
		}
	}
	if SpanFromContext(ctx) != root {
		t.Error("context does not carry the root span")
	}
}

func TestStartSpanGeneratesTraceID(t *testing.T) {
	_, a := StartSpan(context.Background(), "crawl", "")
	_, b := StartChildSpan(context.Background(), "orphan")
	if a.TraceID == "" || b.TraceID == "" || a.TraceID == b.TraceID {
		t.Errorf("trace ids = %q, %q", a.TraceID, b.TraceID)
	}
}

func TestLogWritesTreeAtDebug(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-2")
	root.SetAttr("query", "лиса")
	_, child := StartChildSpan(ctx, "evaluate")
	child.SetAttr("site", "http://a.test")
	child.End()
	root.End()

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if buf.Len() != 0 {
		t.Fatalf("spans logged above debug level: %s", buf.String())
	}

	root.Log(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d records, want 2:\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["span"] != "evaluate" || rec["depth"] != float64(1) || rec["trace_id"] != "req-2" || rec["site"] != "http://a.test" {
		t.Errorf("child record = %v", rec)
	}
}
