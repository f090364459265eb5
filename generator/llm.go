package generator

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultMaxTokens is the completion budget used when a prompt does not set one.
	DefaultMaxTokens = 3000
	// DefaultTemperature is used when a prompt leaves Temperature nil.
	DefaultTemperature = 0.2
)

// ErrCompletion wraps every transport or provider failure of a model call.
var ErrCompletion = errors.New("text completion failed")

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider         string
	Model            string
	APIKey           string
	BaseURL          string
	MaxRetries       int
	Timeout          time.Duration
	StructuredOutput bool
}
