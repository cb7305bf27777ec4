package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zhengjr9/hive-agent/internal/llm"
)

// ToRequest converts an OpenAI chat completions request into an llm.Request.
// Streaming is not supported.
func ToRequest(r *http.Request) (llm.Request, error) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return llm.Request{}, fmt.Errorf("decode body: %w", err)
	}
	if req.Stream {
		return llm.Request{}, fmt.Errorf("streaming is not supported")
	}
	if len(req.Messages) == 0 {
		return llm.Request{}, fmt.Errorf("messages must not be empty")
	}

	msgs := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return llm.Request{}, fmt.Errorf("unsupported role %q", m.Role)
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	out := llm.NewRequest(msgs...)
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	return out, nil
}

// WriteResponse encodes completion text as an OpenAI ChatCompletionResponse.
func WriteResponse(w http.ResponseWriter, text, model string) error {
	out := ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      Message{Role: llm.RoleAssistant, Content: text},
				FinishReason: "stop",
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}
