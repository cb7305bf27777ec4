package llm

import "strings"

// Message roles accepted by the completion endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0.7
)

// Message is one role-tagged entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single logical completion call.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// Fast asks for the lower-latency model when one is configured.
	Fast bool
}

// NewRequest returns a Request with the default generation options.
func NewRequest(messages ...Message) Request {
	return Request{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// System and User are shorthands for building message lists.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: RoleUser, Content: content} }

// Payload is the JSON body POSTed to /chat/completions.
type Payload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// chatResponse holds the part of the completion response we read.
// Content is a pointer so a missing field can be told apart from "".
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OutcomeKind classifies a single HTTP attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failure"
	}
}

// Outcome is the classified result of one attempt.
type Outcome struct {
	Kind       OutcomeKind
	Text       string
	StatusCode int
	Err        error
}

func successOutcome(text string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Text: strings.TrimSpace(text), StatusCode: 200}
}
