// Package a2a exposes the agent's persona over the A2A protocol. Each
// invocation is answered with one blocking completion from the credential
// pool.
package a2a

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/hive-agent/internal/llm"
)

// Completer is satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// AgentConfig holds the configuration for the A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Completer answers each invocation.
	Completer Completer
	// SystemPrompt is sent ahead of the caller's text.
	SystemPrompt string
}

// New returns an agent.Agent whose Run sends the caller's text through the
// completer and yields the reply as a single final event.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2a agent: Name must not be empty")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("a2a agent: Completer must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	logger := slog.Default().With("component", "a2a")
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			query := extractQuery(ctx.UserContent())
			if query == "" {
				yield(newEvent(ctx, cfg.Name, "(empty input)"), nil)
				return
			}

			var msgs []llm.Message
			if cfg.SystemPrompt != "" {
				msgs = append(msgs, llm.System(cfg.SystemPrompt))
			}
			msgs = append(msgs, llm.User(query))

			answer, err := cfg.Completer.Complete(ctx, llm.NewRequest(msgs...))
			if err != nil {
				logger.Warn("completion failed", "invocation_id", ctx.InvocationID(), "error", err)
				yield(nil, fmt.Errorf("completion failed: %w", err))
				return
			}
			yield(newEvent(ctx, cfg.Name, answer), nil)
		}
	}
}

// newEvent builds a final (non-partial) event so IsFinalResponse() is true
// and the runner closes the invocation.
func newEvent(ctx agent.InvocationContext, author, text string) *session.Event {
	ev := session.NewEvent(ctx.InvocationID())
	ev.Author = author
	ev.Branch = ctx.Branch()
	ev.LLMResponse = model.LLMResponse{
		Content: textContent(text),
		Partial: false,
	}
	return ev
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
