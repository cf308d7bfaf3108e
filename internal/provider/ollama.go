package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
)

// OllamaProvider dispatches prompts to a local Ollama instance over its
// HTTP chat API, used for the helper agent when USE_LOCAL_HELPER_AGENT
// is set.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message   ollamaChatMessage `json:"message"`
	Done      bool              `json:"done"`
	EvalCount int               `json:"eval_count"`
	Error     string            `json:"error,omitempty"`
}

// NewOllamaProvider builds a Provider that talks to baseURL's /api/chat endpoint.
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: DefaultDispatchTimeout,
		},
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Execute(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.model,
		Stream:   false,
		Messages: []ollamaChatMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInvariantViolation, "marshal ollama request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/chat", p.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindTransientIO, "build ollama request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.KindProviderFailure, "ollama request to %s failed", p.baseURL)
	}
	defer resp.Body.Close()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindProviderFailure, "decode ollama response")
	}
	if chatResp.Error != "" {
		return nil, apperrors.New(apperrors.KindProviderFailure, chatResp.Error)
	}

	return &Result{
		Stdout:    chatResp.Message.Content,
		RawOutput: chatResp.Message.Content,
		ExitCode:  0,
		Usage:     &Usage{OutputTokens: chatResp.EvalCount},
	}, nil
}
