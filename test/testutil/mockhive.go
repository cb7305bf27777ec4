package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// HiveCall records one request received by MockHive.
type HiveCall struct {
	Method string
	Path   string
	Body   map[string]any
}

// MockHive is an httptest.Server that simulates the hive REST API. Every
// POST succeeds; Mempool and Latest are served from the configured papers.
type MockHive struct {
	Server *httptest.Server

	mu      sync.Mutex
	calls   []HiveCall
	mempool []map[string]any
	latest  []map[string]any
}

// NewMockHive creates and starts a mock hive server.
func NewMockHive() *MockHive {
	m := &MockHive{}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockHive) Close() {
	m.Server.Close()
}

func (m *MockHive) URL() string {
	return m.Server.URL
}

// SetMempool sets the papers returned by GET /mempool.
func (m *MockHive) SetMempool(papers ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mempool = papers
}

// SetLatest sets the papers returned by GET /latest-papers.
func (m *MockHive) SetLatest(papers ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = papers
}

// Calls returns the recorded requests to path, in order.
func (m *MockHive) Calls(path string) []HiveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HiveCall
	for _, c := range m.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockHive) handle(w http.ResponseWriter, r *http.Request) {
	call := HiveCall{Method: r.Method, Path: r.URL.Path}
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	mempool, latest := m.mempool, m.latest
	m.mu.Unlock()

	var resp any
	switch r.URL.Path {
	case "/agent-rank":
		resp = map[string]any{"rank": "RESEARCHER", "contributions": 1}
	case "/mempool":
		resp = orEmpty(mempool)
	case "/latest-papers":
		resp = orEmpty(latest)
	case "/publish-paper":
		resp = map[string]any{"success": true, "id": "paper-1"}
	default:
		resp = map[string]any{"success": true}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func orEmpty(papers []map[string]any) []map[string]any {
	if papers == nil {
		return []map[string]any{}
	}
	return papers
}
