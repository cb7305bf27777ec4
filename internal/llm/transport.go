package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apierrors "github.com/zhengjr9/hive-agent/internal/errors"
)

const (
	DefaultBaseURL = "https://integrate.api.nvidia.com/v1"
	DefaultTimeout = 120 * time.Second

	// maxErrorBody caps how much of a failed response is kept in the error.
	maxErrorBody = 4 << 10
)

// StatusError is a non-2xx, non-429 upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nim %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }

// HTTPTransport performs one chat-completions exchange per call.
type HTTPTransport struct {
	// endpoint is the full chat completions URL,
	// e.g. "https://integrate.api.nvidia.com/v1/chat/completions".
	// A base URL without the suffix gets it appended.
	endpoint   string
	httpClient *http.Client
}

// NewHTTPTransport constructs a transport with a per-attempt timeout and an
// optional proxy URL. An empty proxyURL uses the environment proxy.
func NewHTTPTransport(baseURL string, timeout time.Duration, proxyURL string) *HTTPTransport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/chat/completions") {
		endpoint += "/chat/completions"
	}

	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &HTTPTransport{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Endpoint returns the resolved completions URL.
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

// Attempt POSTs payload once using credential. Upstream failures come back as
// an Outcome; the error return is reserved for requests that could not be
// built at all.
func (t *HTTPTransport) Attempt(ctx context.Context, credential string, payload Payload) (Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credential)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return Outcome{Kind: OutcomeFailure, Err: fmt.Errorf("nim request: %w", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return Outcome{Kind: OutcomeRateLimited, StatusCode: resp.StatusCode, Err: apierrors.ErrRateLimited}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Outcome{
			Kind:       OutcomeFailure,
			StatusCode: resp.StatusCode,
			Err:        &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))},
		}, nil
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return malformed(resp.StatusCode, fmt.Errorf("decode response: %w", err)), nil
	}
	if len(result.Choices) == 0 {
		return malformed(resp.StatusCode, fmt.Errorf("no choices")), nil
	}
	content := result.Choices[0].Message.Content
	if content == nil {
		return malformed(resp.StatusCode, fmt.Errorf("choices[0].message.content missing")), nil
	}
	out := successOutcome(*content)
	if out.Text == "" {
		return malformed(resp.StatusCode, fmt.Errorf("empty content")), nil
	}
	out.StatusCode = resp.StatusCode
	return out, nil
}

func malformed(status int, cause error) Outcome {
	return Outcome{
		Kind:       OutcomeFailure,
		StatusCode: status,
		Err:        fmt.Errorf("%w: %w", apierrors.ErrMalformedResponse, cause),
	}
}
