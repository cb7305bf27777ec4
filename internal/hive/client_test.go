package hive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recorded struct {
	method string
	path   string
	query  string
	ua     string
	body   map[string]any
}

func newTestHive(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, ua: r.Header.Get("User-Agent")}
		if r.Body != nil && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		calls = append(calls, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "agent-1", "Agent One", 5*time.Second), &calls
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestQuickJoin(t *testing.T) {
	c, calls := newTestHive(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true})
	})

	ack, err := c.QuickJoin(context.Background(), "zkp, lattices")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ack.Success {
		t.Error("expected success")
	}
	got := (*calls)[0]
	if got.method != http.MethodPost || got.path != "/quick-join" {
		t.Fatalf("unexpected call %s %s", got.method, got.path)
	}
	if got.ua != "hive-agent/agent-1" {
		t.Errorf("User-Agent = %q", got.ua)
	}
	if got.body["agentId"] != "agent-1" || got.body["role"] != "researcher" || got.body["interests"] != "zkp, lattices" {
		t.Errorf("unexpected body: %v", got.body)
	}
	caps, _ := got.body["capabilities"].([]any)
	if len(caps) != 3 {
		t.Errorf("capabilities = %v", caps)
	}
}

func TestRankAndQueries(t *testing.T) {
	c, calls := newTestHive(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agent-rank":
			writeJSON(w, map[string]any{"rank": "SENIOR", "contributions": 7})
		case "/latest-papers":
			writeJSON(w, []map[string]any{{"id": "p1", "title": "Lattices"}, {"id": "p2", "title": "STARKs"}})
		case "/agents":
			writeJSON(w, []map[string]any{{"id": "a2", "name": "Other"}})
		case "/wheel":
			writeJSON(w, map[string]any{"results": []any{}})
		case "/hive-status":
			writeJSON(w, map[string]any{"agents": 12})
		case "/silicon":
			_, _ = w.Write([]byte("# briefing"))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	rank, err := c.Rank(ctx)
	if err != nil || rank.Rank != "SENIOR" || rank.Contributions != 7 {
		t.Fatalf("rank = %+v, %v", rank, err)
	}
	if (*calls)[0].query != "agent=agent-1" {
		t.Errorf("rank query = %q", (*calls)[0].query)
	}

	papers, err := c.LatestPapers(ctx, 3)
	if err != nil || len(papers) != 2 || papers[1].Title != "STARKs" {
		t.Fatalf("papers = %+v, %v", papers, err)
	}
	if (*calls)[1].query != "limit=3" {
		t.Errorf("latest query = %q", (*calls)[1].query)
	}

	if _, err := c.Agents(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if (*calls)[2].query != "" {
		t.Errorf("agents without interest should have no query, got %q", (*calls)[2].query)
	}
	if _, err := c.Agents(ctx, "crypto"); err != nil {
		t.Fatal(err)
	}
	if (*calls)[3].query != "interest=crypto" {
		t.Errorf("agents query = %q", (*calls)[3].query)
	}

	if _, err := c.SearchPapers(ctx, "post quantum"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix((*calls)[4].query, "query=post") {
		t.Errorf("search query = %q", (*calls)[4].query)
	}

	st, err := c.Status(ctx)
	if err != nil || st["agents"].(float64) != 12 {
		t.Fatalf("status = %v, %v", st, err)
	}

	text, err := c.Silicon(ctx)
	if err != nil || text != "# briefing" {
		t.Fatalf("silicon = %q, %v", text, err)
	}
}

func TestMempool_NonListIsEmpty(t *testing.T) {
	c, _ := newTestHive(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"error": "warming up"})
	})
	papers, err := c.Mempool(context.Background(), 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if papers == nil || len(papers) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", papers)
	}
}

func TestValidatePaper_RoundsScore(t *testing.T) {
	c, calls := newTestHive(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true})
	})
	if _, err := c.ValidatePaper(context.Background(), "p9", true, 0.87654); err != nil {
		t.Fatal(err)
	}
	body := (*calls)[0].body
	if body["paperId"] != "p9" || body["result"] != true || body["occam_score"] != 0.877 {
		t.Errorf("unexpected body %v", body)
	}
}

func TestChatAndHeartbeat(t *testing.T) {
	c, calls := newTestHive(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true})
	})
	ctx := context.Background()
	if _, err := c.Chat(ctx, "hello hive"); err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat(ctx, "inv-crypto"); err != nil {
		t.Fatal(err)
	}
	if (*calls)[0].body["message"] != "hello hive" || (*calls)[0].body["sender"] != "agent-1" {
		t.Errorf("chat body %v", (*calls)[0].body)
	}
	if (*calls)[1].body["message"] != "HEARTBEAT: agent-1|inv-crypto" {
		t.Errorf("heartbeat body %v", (*calls)[1].body)
	}
}

func TestPublishPaper_StatusError(t *testing.T) {
	c, _ := newTestHive(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate title", http.StatusConflict)
	})
	_, err := c.PublishPaper(context.Background(), Paper{Title: "t", Content: "c"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode() != http.StatusConflict || se.Path != "/publish-paper" || !strings.Contains(se.Body, "duplicate") {
		t.Errorf("unexpected status error %+v", se)
	}
}
