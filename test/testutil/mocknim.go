package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Reply is one scripted upstream response. A zero Status means 200.
type Reply struct {
	Status  int
	Content string
}

// MockNIM is an httptest.Server that simulates an OpenAI-style
// /v1/chat/completions endpoint. Replies are served from Script in order;
// once the script runs out every call gets Default.
type MockNIM struct {
	Server *httptest.Server

	mu      sync.Mutex
	script  []Reply
	def     Reply
	calls   int
	auths   []string
	lastReq map[string]any
}

// NewMockNIM creates and starts a mock completion server.
func NewMockNIM(def Reply, script ...Reply) *MockNIM {
	m := &MockNIM{script: script, def: def}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockNIM) Close() {
	m.Server.Close()
}

// BaseURL returns the API base URL (without /chat/completions).
func (m *MockNIM) BaseURL() string {
	return m.Server.URL + "/v1"
}

// Calls returns the number of completion requests received.
func (m *MockNIM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Credentials returns the bearer credential of each request, in order.
func (m *MockNIM) Credentials() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.auths...)
}

// LastRequest returns the most recent decoded request body.
func (m *MockNIM) LastRequest() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

func (m *MockNIM) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.calls++
	m.auths = append(m.auths, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	m.lastReq = body
	reply := m.def
	if len(m.script) > 0 {
		reply = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	if reply.Status != 0 && reply.Status != http.StatusOK {
		http.Error(w, http.StatusText(reply.Status), reply.Status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "cmpl-mock",
		"object": "chat.completion",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply.Content},
				"finish_reason": "stop",
			},
		},
	})
}
