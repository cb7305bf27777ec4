package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	apierrors "github.com/zhengjr9/hive-agent/internal/errors"
)

// scriptedTransport answers attempt i with script(i) and records the
// credentials it was called with.
type scriptedTransport struct {
	script   func(attempt int) (Outcome, error)
	creds    []string
	payloads []Payload
}

func (s *scriptedTransport) Attempt(_ context.Context, credential string, payload Payload) (Outcome, error) {
	i := len(s.creds)
	s.creds = append(s.creds, credential)
	s.payloads = append(s.payloads, payload)
	return s.script(i)
}

type sleepRecorder struct {
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *sleepRecorder) total() time.Duration {
	var sum time.Duration
	for _, d := range r.sleeps {
		sum += d
	}
	return sum
}

func newTestClient(creds []string, tr Attempter, rec *sleepRecorder) *Client {
	return New(Config{Model: "test-model", Credentials: creds},
		WithTransport(tr), WithSleep(rec.sleep))
}

func userRequest(text string) Request {
	return NewRequest(System("you are a test"), User(text))
}

func TestComplete_EmptyPoolFailsWithoutNetwork(t *testing.T) {
	tr := &scriptedTransport{script: func(int) (Outcome, error) {
		t.Fatal("transport must not be called")
		return Outcome{}, nil
	}}
	rec := &sleepRecorder{}
	c := newTestClient(nil, tr, rec)
	if c.PoolSize() != 0 {
		t.Fatalf("PoolSize = %d", c.PoolSize())
	}

	_, err := c.Complete(context.Background(), userRequest("hi"))
	if !errors.Is(err, apierrors.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	if len(tr.creds) != 0 || len(rec.sleeps) != 0 {
		t.Errorf("expected no attempts and no sleeps, got %d / %d", len(tr.creds), len(rec.sleeps))
	}
}

func TestClient_PoolSizeCountsEveryCredential(t *testing.T) {
	c := newTestClient([]string{"a", "b", "a"}, &scriptedTransport{}, &sleepRecorder{})
	if c.PoolSize() != 3 {
		t.Errorf("PoolSize = %d, want 3", c.PoolSize())
	}
}

func TestComplete_RejectsInvalidRequests(t *testing.T) {
	tr := &scriptedTransport{script: func(int) (Outcome, error) { return successOutcome("x"), nil }}
	c := newTestClient([]string{"a"}, tr, &sleepRecorder{})

	if _, err := c.Complete(context.Background(), Request{}); !errors.Is(err, apierrors.ErrEmptyMessages) {
		t.Errorf("empty messages: got %v", err)
	}
	req := userRequest("hi")
	req.Temperature = 2.5
	if _, err := c.Complete(context.Background(), req); !errors.Is(err, apierrors.ErrInvalidOptions) {
		t.Errorf("temperature 2.5: got %v", err)
	}
	if len(tr.creds) != 0 {
		t.Errorf("expected no attempts, got %d", len(tr.creds))
	}
}

func TestComplete_RateLimitedThenSuccessOnLastAttempt(t *testing.T) {
	for n := 1; n <= 4; n++ {
		budget := 2 * n
		tr := &scriptedTransport{script: func(i int) (Outcome, error) {
			if i < budget-1 {
				return Outcome{Kind: OutcomeRateLimited, StatusCode: 429, Err: apierrors.ErrRateLimited}, nil
			}
			return successOutcome("finally"), nil
		}}
		rec := &sleepRecorder{}
		creds := []string{"a", "b", "c", "d"}[:n]
		c := newTestClient(creds, tr, rec)

		got, err := c.Complete(context.Background(), userRequest("hi"))
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if got != "finally" {
			t.Errorf("n=%d: got %q", n, got)
		}
		if len(tr.creds) != budget {
			t.Errorf("n=%d: attempts = %d, want %d", n, len(tr.creds), budget)
		}

		var want time.Duration
		for i := 0; i < budget-1; i++ {
			want += 10 * time.Second * time.Duration(i+1)
		}
		if rec.total() != want {
			t.Errorf("n=%d: total sleep = %v, want %v", n, rec.total(), want)
		}
	}
}

func TestComplete_AlwaysFailingExhaustsBudgetExactly(t *testing.T) {
	for n := 1; n <= 4; n++ {
		cause := &StatusError{Code: 503, Body: "unavailable"}
		tr := &scriptedTransport{script: func(int) (Outcome, error) {
			return Outcome{Kind: OutcomeFailure, StatusCode: 503, Err: cause}, nil
		}}
		rec := &sleepRecorder{}
		creds := []string{"a", "b", "c", "d"}[:n]
		c := newTestClient(creds, tr, rec)

		_, err := c.Complete(context.Background(), userRequest("hi"))
		if !errors.Is(err, apierrors.ErrUpstreamExhausted) {
			t.Fatalf("n=%d: expected ErrUpstreamExhausted, got %v", n, err)
		}
		var exhausted *apierrors.UpstreamExhaustedError
		if !errors.As(err, &exhausted) || exhausted.Attempts != 2*n {
			t.Errorf("n=%d: expected attempts %d in error, got %+v", n, 2*n, exhausted)
		}
		var status *StatusError
		if !errors.As(err, &status) || status.Code != 503 {
			t.Errorf("n=%d: last cause not preserved: %v", n, err)
		}
		if len(tr.creds) != 2*n {
			t.Errorf("n=%d: attempts = %d, want %d", n, len(tr.creds), 2*n)
		}
		if len(rec.sleeps) != 2*n-1 {
			t.Errorf("n=%d: sleeps = %d, want %d", n, len(rec.sleeps), 2*n-1)
		}
		for _, d := range rec.sleeps {
			if d != 2*time.Second {
				t.Errorf("n=%d: unexpected sleep %v", n, d)
			}
		}
	}
}

func TestComplete_AllRateLimitedEndsInUpstreamExhausted(t *testing.T) {
	tr := &scriptedTransport{script: func(int) (Outcome, error) {
		return Outcome{Kind: OutcomeRateLimited, StatusCode: 429, Err: apierrors.ErrRateLimited}, nil
	}}
	rec := &sleepRecorder{}
	c := newTestClient([]string{"a", "b"}, tr, rec)

	_, err := c.Complete(context.Background(), userRequest("hi"))
	if !errors.Is(err, apierrors.ErrUpstreamExhausted) || !errors.Is(err, apierrors.ErrRateLimited) {
		t.Fatalf("expected exhausted rate limit, got %v", err)
	}
	if errors.Is(err, apierrors.ErrRetriesExhausted) {
		t.Errorf("fallback path must not be reached")
	}
	if len(tr.creds) != 4 || len(rec.sleeps) != 3 {
		t.Errorf("attempts=%d sleeps=%d, want 4 and 3", len(tr.creds), len(rec.sleeps))
	}
}

func TestComplete_LocalErrorIsRetried(t *testing.T) {
	tr := &scriptedTransport{script: func(i int) (Outcome, error) {
		if i == 0 {
			return Outcome{}, errors.New("build request: bad url")
		}
		return successOutcome("recovered"), nil
	}}
	c := newTestClient([]string{"a"}, tr, &sleepRecorder{})

	got, err := c.Complete(context.Background(), userRequest("hi"))
	if err != nil || got != "recovered" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestComplete_ThreeCredentialScenario(t *testing.T) {
	tr := &scriptedTransport{script: func(i int) (Outcome, error) {
		if i < 2 {
			return Outcome{Kind: OutcomeRateLimited, StatusCode: 429, Err: apierrors.ErrRateLimited}, nil
		}
		return successOutcome("ok"), nil
	}}
	rec := &sleepRecorder{}
	c := newTestClient([]string{"A", "B", "C"}, tr, rec)

	got, err := c.Complete(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if strings.Join(tr.creds, ",") != "A,B,C" {
		t.Errorf("credentials tried = %v, want A,B,C", tr.creds)
	}
	if rec.total() != 30*time.Second {
		t.Errorf("total sleep = %v, want 30s", rec.total())
	}
}

func TestComplete_CursorPersistsAcrossCalls(t *testing.T) {
	tr := &scriptedTransport{script: func(int) (Outcome, error) { return successOutcome("ok"), nil }}
	c := newTestClient([]string{"A", "B", "C"}, tr, &sleepRecorder{})

	for i := 0; i < 4; i++ {
		if _, err := c.Complete(context.Background(), userRequest("hi")); err != nil {
			t.Fatal(err)
		}
	}
	if strings.Join(tr.creds, ",") != "A,B,C,A" {
		t.Errorf("credentials = %v", tr.creds)
	}
}

func TestComplete_PayloadOptions(t *testing.T) {
	tr := &scriptedTransport{script: func(int) (Outcome, error) { return successOutcome("ok"), nil }}
	c := New(Config{Model: "big", FastModel: "small", Credentials: []string{"a"}},
		WithTransport(tr), WithSleep((&sleepRecorder{}).sleep))

	req := userRequest("hi")
	req.MaxTokens = 0
	req.Temperature = 0
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	req.Fast = true
	req.MaxTokens = 250
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	first, second := tr.payloads[0], tr.payloads[1]
	if first.Model != "big" || first.MaxTokens != DefaultMaxTokens || first.Temperature != 0 || first.Stream {
		t.Errorf("unexpected first payload: %+v", first)
	}
	if second.Model != "small" || second.MaxTokens != 250 {
		t.Errorf("unexpected second payload: %+v", second)
	}
	if len(first.Messages) != 2 || first.Messages[0].Role != RoleSystem {
		t.Errorf("messages not forwarded in order: %+v", first.Messages)
	}
}

func TestComplete_CanceledDuringBackoff(t *testing.T) {
	tr := &scriptedTransport{script: func(int) (Outcome, error) {
		return Outcome{Kind: OutcomeRateLimited, StatusCode: 429, Err: apierrors.ErrRateLimited}, nil
	}}
	c := New(Config{Credentials: []string{"a", "b"}}, WithTransport(tr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Complete(ctx, userRequest("hi"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(tr.creds) != 1 {
		t.Errorf("expected one attempt before abort, got %d", len(tr.creds))
	}
}

func TestComplete_CountsAttemptMetrics(t *testing.T) {
	tr := &scriptedTransport{script: func(i int) (Outcome, error) {
		if i == 0 {
			return Outcome{Kind: OutcomeRateLimited, StatusCode: 429, Err: apierrors.ErrRateLimited}, nil
		}
		return successOutcome("ok"), nil
	}}
	c := newTestClient([]string{"a", "b"}, tr, &sleepRecorder{})

	rateBefore := testutil.ToFloat64(AttemptsTotal.WithLabelValues("rate_limited"))
	okBefore := testutil.ToFloat64(CompletionsTotal.WithLabelValues("success"))
	if _, err := c.Complete(context.Background(), userRequest("hi")); err != nil {
		t.Fatal(err)
	}
	if d := testutil.ToFloat64(AttemptsTotal.WithLabelValues("rate_limited")) - rateBefore; d != 1 {
		t.Errorf("rate_limited attempts delta = %v", d)
	}
	if d := testutil.ToFloat64(CompletionsTotal.WithLabelValues("success")) - okBefore; d != 1 {
		t.Errorf("success completions delta = %v", d)
	}
}

// --- HTTP transport ---

func TestComplete_HTTPTrimsContentAndSendsBearer(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hello world  \n"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1", Model: "m", Credentials: []string{"nvapi-1"}})
	got, err := c.Complete(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
	if gotAuth != "Bearer nvapi-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "m" || gotBody["stream"] != false || gotBody["max_tokens"].(float64) != DefaultMaxTokens {
		t.Errorf("unexpected body: %v", gotBody)
	}
}

func TestComplete_HTTPMalformedBodyRespectsBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant"}}]}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := New(Config{BaseURL: srv.URL, Credentials: []string{"a", "b", "c"}}, WithSleep(rec.sleep))
	_, err := c.Complete(context.Background(), userRequest("hi"))
	if !errors.Is(err, apierrors.ErrUpstreamExhausted) || !errors.Is(err, apierrors.ErrMalformedResponse) {
		t.Fatalf("expected exhausted malformed response, got %v", err)
	}
	if calls.Load() != 6 {
		t.Errorf("calls = %d, want 6", calls.Load())
	}
}
