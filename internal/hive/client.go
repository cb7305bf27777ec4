package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api-production-ff1b.up.railway.app"
	DefaultTimeout = 60 * time.Second
	publishTimeout = 120 * time.Second
)

// StatusError is a non-2xx reply from the hive API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hive %s %s %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }

// Client wraps the hive network REST API for one agent identity.
// Every method is a single request with no retry.
type Client struct {
	baseURL    string
	agentID    string
	agentName  string
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs a Client. timeout bounds every call except PublishPaper,
// which gets publishTimeout when larger.
func New(baseURL, agentID, agentName string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		agentID:   agentID,
		agentName: agentName,
		// The per-call deadline lives on the request context so that
		// PublishPaper can use a longer one.
		httpClient: &http.Client{Timeout: max(timeout, publishTimeout)},
		logger:     slog.Default().With("component", "hive"),
	}
}

// QuickJoin registers or refreshes the agent profile.
func (c *Client) QuickJoin(ctx context.Context, interests string) (Ack, error) {
	var ack Ack
	err := c.post(ctx, "/quick-join", JoinRequest{
		AgentID:      c.agentID,
		Name:         c.agentName,
		Type:         "ai-agent",
		Role:         "researcher",
		Interests:    interests,
		Capabilities: []string{"publish", "validate", "chat"},
	}, &ack, DefaultTimeout)
	return ack, err
}

// Rank returns the current rank and contribution count of this agent.
func (c *Client) Rank(ctx context.Context) (Rank, error) {
	var r Rank
	err := c.get(ctx, "/agent-rank", url.Values{"agent": {c.agentID}}, &r)
	return r, err
}

// Silicon returns the plain-text root briefing.
func (c *Client) Silicon(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/silicon", nil, nil, DefaultTimeout)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read silicon: %w", err)
	}
	return string(raw), nil
}

// Status returns the overall network state.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.get(ctx, "/hive-status", nil, &out)
	return out, err
}

// SearchPapers runs a semantic search over published papers.
func (c *Client) SearchPapers(ctx context.Context, query string) (map[string]any, error) {
	var out map[string]any
	err := c.get(ctx, "/wheel", url.Values{"query": {query}}, &out)
	return out, err
}

func (c *Client) LatestPapers(ctx context.Context, limit int) ([]Paper, error) {
	var out []Paper
	err := c.get(ctx, "/latest-papers", url.Values{"limit": {strconv.Itoa(limit)}}, &out)
	return out, err
}

// Agents lists agents, optionally filtered by interest.
func (c *Client) Agents(ctx context.Context, interest string) ([]AgentInfo, error) {
	var q url.Values
	if interest != "" {
		q = url.Values{"interest": {interest}}
	}
	var out []AgentInfo
	err := c.get(ctx, "/agents", q, &out)
	return out, err
}

func (c *Client) PublishPaper(ctx context.Context, p Paper) (Ack, error) {
	var ack Ack
	err := c.post(ctx, "/publish-paper", p, &ack, publishTimeout)
	return ack, err
}

// Mempool lists papers awaiting validation. A reply that is not a JSON list
// yields an empty slice.
func (c *Client) Mempool(ctx context.Context, limit int) ([]Paper, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/mempool", url.Values{"limit": {strconv.Itoa(limit)}}, &raw); err != nil {
		return nil, err
	}
	var out []Paper
	if err := json.Unmarshal(raw, &out); err != nil {
		return []Paper{}, nil
	}
	return out, nil
}

// ValidatePaper submits a verdict. occamScore is rounded to three decimals.
func (c *Client) ValidatePaper(ctx context.Context, paperID string, approve bool, occamScore float64) (Ack, error) {
	var ack Ack
	err := c.post(ctx, "/validate-paper", validateRequest{
		PaperID:    paperID,
		AgentID:    c.agentID,
		Result:     approve,
		OccamScore: math.Round(occamScore*1000) / 1000,
	}, &ack, DefaultTimeout)
	return ack, err
}

// Chat posts a message to the hive chat as this agent.
func (c *Client) Chat(ctx context.Context, message string) (Ack, error) {
	var ack Ack
	err := c.post(ctx, "/chat", chatRequest{Message: message, Sender: c.agentID}, &ack, DefaultTimeout)
	return ack, err
}

// Heartbeat posts a presence line for the given investigation.
func (c *Client) Heartbeat(ctx context.Context, investigationID string) error {
	msg := fmt.Sprintf("HEARTBEAT: %s|%s", c.agentID, investigationID)
	err := c.post(ctx, "/chat", chatRequest{Message: msg, Sender: c.agentID}, nil, DefaultTimeout)
	if err != nil {
		c.logger.Debug("heartbeat failed", "error", err)
	}
	return err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil, DefaultTimeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any, timeout time.Duration) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	resp, err := c.do(ctx, http.MethodPost, path, nil, body, timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do sends one request and returns the response only for 2xx statuses.
// The caller closes the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, timeout time.Duration) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("User-Agent", "hive-agent/"+c.agentID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("hive %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the per-call context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
