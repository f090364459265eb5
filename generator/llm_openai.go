package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
type OpenAILLM struct {
	Provider         string
	Model            string
	StructuredOutput bool
	client           openai.Client
	logger           *zap.Logger
}

func NewOpenAILLMFromConfig(cfg *LLMSettings, logger *zap.Logger) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; set llm.api_key or OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	return &OpenAILLM{
		Provider:         provider,
		Model:            cfg.Model,
		StructuredOutput: cfg.StructuredOutput,
		client:           openai.NewClient(opts...),
		logger:           logger.With(zap.String("provider", provider), zap.String("model", cfg.Model)),
	}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt.User),
		},
		MaxTokens:   openai.Int(int64(prompt.maxTokens())),
		Temperature: openai.Float(prompt.temperature()),
	}
	if o.StructuredOutput && prompt.Schema != nil {
		params.ResponseFormat = o.responseFormat(prompt.Schema)
	}

	log := o.logger.With(zap.String("kind", prompt.Kind))
	log.Debug("sending completion request",
		zap.Int("prompt_bytes", len(prompt.User)),
		zap.Int("max_tokens", prompt.maxTokens()),
		zap.Float64("temperature", prompt.temperature()),
		zap.Bool("json_schema", params.ResponseFormat.OfJSONSchema != nil),
		zap.Bool("json_object", params.ResponseFormat.OfJSONObject != nil),
	)

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("openai: empty choices")
	}
	observeCall(o.Provider, o.Model, prompt.Kind, elapsed.Seconds(), err)
	if err != nil {
		log.Error("completion request failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", fmt.Errorf("%w: %s: %w", ErrCompletion, o.Provider, err)
	}

	promptTokens := int(resp.Usage.PromptTokens)
	if promptTokens == 0 {
		promptTokens = estimateTokens(o.Model, prompt.User)
	}
	observeTokens(o.Provider, o.Model, promptTokens, int(resp.Usage.CompletionTokens))

	content := resp.Choices[0].Message.Content
	if content == "" {
		log.Warn("completion returned empty content")
	}
	log.Info("completion received",
		zap.Duration("elapsed", elapsed),
		zap.Int("response_chars", len(content)),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return content, nil
}

// responseFormat uses strict json_schema where the model accepts it and
// json_object mode otherwise.
func (o *OpenAILLM) responseFormat(schema *Schema) openai.ChatCompletionNewParamsResponseFormatUnion {
	if !supportsJSONSchema(o.Provider, o.Model) {
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        schema.Name,
				Description: openai.String(schema.Description),
				Schema:      schema.Definition,
				Strict:      openai.Bool(true),
			},
		},
	}
}

// Model families with Structured Outputs support on the OpenAI API.
var jsonSchemaModels = []string{"gpt-4o", "chatgpt-4o", "gpt-4.1", "gpt-4.5", "gpt-5", "o1", "o3", "o4"}

func supportsJSONSchema(provider, model string) bool {
	if provider != "openai" {
		return false
	}
	m := strings.ToLower(model)
	// The first gpt-4o snapshots predate Structured Outputs.
	if m == "gpt-4o-2024-05-13" || strings.HasPrefix(m, "o1-preview") || strings.HasPrefix(m, "o1-mini") {
		return false
	}
	for _, prefix := range jsonSchemaModels {
		if m == prefix || strings.HasPrefix(m, prefix+"-") {
			return true
		}
	}
	return false
}
