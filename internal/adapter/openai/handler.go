package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/zhengjr9/hive-agent/internal/errors"
	"github.com/zhengjr9/hive-agent/internal/llm"
)

// Completer is satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Handler serves POST /v1/chat/completions from the rotating credential pool.
type Handler struct {
	client  Completer
	model   string
	timeout time.Duration
}

// NewHandler constructs a Handler. model is echoed in responses.
func NewHandler(client Completer, model string, timeout time.Duration) *Handler {
	return &Handler{client: client, model: model, timeout: timeout}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := ToRequest(r)
	if err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	text, err := h.client.Complete(ctx, req)
	if err != nil {
		writeCompletionError(w, err)
		return
	}
	if err := WriteResponse(w, text, h.model); err != nil {
		apierrors.WriteJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

func writeCompletionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apierrors.ErrNoCredentials):
		apierrors.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, apierrors.ErrEmptyMessages), errors.Is(err, apierrors.ErrInvalidOptions):
		apierrors.WriteJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		apierrors.WriteJSONError(w, http.StatusGatewayTimeout, "upstream timeout")
	default:
		apierrors.WriteJSONError(w, http.StatusBadGateway, "upstream error: "+err.Error())
	}
}
