package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaLLM implements LLMClient against a local Ollama server (/api/chat).
type OllamaLLM struct {
	Model            string
	StructuredOutput bool
	client           *api.Client
	logger           *zap.Logger
}

func NewOllamaLLMFromConfig(cfg *LLMSettings, logger *zap.Logger) (*OllamaLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	// api.NewClient wants the server root, not the OpenAI-compatible /v1 path.
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/v1")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url %q: %w", base, err)
	}

	return &OllamaLLM{
		Model:            cfg.Model,
		StructuredOutput: cfg.StructuredOutput,
		client:           api.NewClient(parsed, &http.Client{Timeout: cfg.Timeout}),
		logger:           logger.With(zap.String("provider", "ollama"), zap.String("model", cfg.Model)),
	}, nil
}

func (o *OllamaLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    o.Model,
		Messages: []api.Message{{Role: "user", Content: prompt.User}},
		Stream:   &stream,
		Options: map[string]any{
			"temperature": prompt.temperature(),
			"num_predict": prompt.maxTokens(),
		},
	}
	if o.StructuredOutput && prompt.Schema != nil {
		format, err := json.Marshal(prompt.Schema.Definition)
		if err != nil {
			return "", fmt.Errorf("encode %s schema: %w", prompt.Schema.Name, err)
		}
		req.Format = format
	}

	log := o.logger.With(zap.String("kind", prompt.Kind))
	log.Debug("sending chat request", zap.Int("prompt_bytes", len(prompt.User)))

	var resp api.ChatResponse
	start := time.Now()
	err := o.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	elapsed := time.Since(start)
	observeCall("ollama", o.Model, prompt.Kind, elapsed.Seconds(), err)
	if err != nil {
		log.Error("chat request failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", fmt.Errorf("%w: ollama: %w", ErrCompletion, err)
	}

	observeTokens("ollama", o.Model, resp.PromptEvalCount, resp.EvalCount)
	if resp.Message.Content == "" {
		log.Warn("chat response has empty content")
	}
	log.Info("chat response received",
		zap.Duration("elapsed", elapsed),
		zap.Int("response_chars", len(resp.Message.Content)),
		zap.Int("prompt_tokens", resp.PromptEvalCount),
		zap.Int("completion_tokens", resp.EvalCount),
	)
	return resp.Message.Content, nil
}
