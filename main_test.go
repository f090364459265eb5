package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bedtime_story_generator/config"
	"bedtime_story_generator/generator"
)

func TestBuildLLM(t *testing.T) {
	base := config.Default().LLM

	tests := []struct {
		name    string
		mutate  func(*config.LLMConfig)
		want    any
		wantErr string
	}{
		{name: "openai", mutate: func(c *config.LLMConfig) { c.APIKey = "sk" }, want: &generator.OpenAILLM{}},
		{name: "openai without key", mutate: func(c *config.LLMConfig) { c.APIKey = "" }, wantErr: "api key"},
		{name: "deepseek needs base url", mutate: func(c *config.LLMConfig) { c.Provider = "deepseek"; c.APIKey = "sk" }, wantErr: "base_url"},
		{name: "deepseek", mutate: func(c *config.LLMConfig) {
			c.Provider, c.APIKey, c.BaseURL = "deepseek", "sk", "https://api.deepseek.com/v1"
		}, want: &generator.OpenAILLM{}},
		{name: "ollama", mutate: func(c *config.LLMConfig) { c.Provider, c.Model = "ollama", "llama3" }, want: &generator.OllamaLLM{}},
		{name: "mock", mutate: func(c *config.LLMConfig) { c.Provider = "mock" }, want: generator.MockLLM{}},
		{name: "unknown", mutate: func(c *config.LLMConfig) { c.Provider = "bard" }, wantErr: "not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			llm, err := buildLLM(c, zap.NewNop())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, llm)
		})
	}
}

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	got, err := prompt(strings.NewReader("  a sleepy fox \r\nignored\n"), &out, "What? ")
	require.NoError(t, err)
	assert.Equal(t, "  a sleepy fox ", got, "request is passed through verbatim")
	assert.Equal(t, "What? ", out.String())

	got, err = prompt(strings.NewReader("no newline"), &out, "")
	require.NoError(t, err)
	assert.Equal(t, "no newline", got)
}

func TestPresent(t *testing.T) {
	res := &generator.Result{
		Request: "a sleepy fox",
		Story:   "The fox slept.",
		Card:    generator.ReflectionCard{Questions: []string{"Q?"}, Affirmation: "I am calm."},
	}

	var text bytes.Buffer
	require.NoError(t, present(&text, res, "text"))
	assert.Contains(t, text.String(), "Your Bedtime Story\nThe fox slept.")

	var md bytes.Buffer
	require.NoError(t, present(&md, res, "markdown"))
	assert.True(t, strings.HasPrefix(md.String(), "# A Bedtime Story: a sleepy fox"))

	var page bytes.Buffer
	require.NoError(t, present(&page, res, "html"))
	assert.Contains(t, page.String(), "<!DOCTYPE html>")

	var js bytes.Buffer
	require.NoError(t, present(&js, res, "json"))
	var decoded generator.Result
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "The fox slept.", decoded.Story)

	assert.Error(t, present(&bytes.Buffer{}, res, "pdf"))
}

func TestTellCommand_MockProvider(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BEDTIME_LLM_PROVIDER", "mock")
	t.Setenv("BEDTIME_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("a sleepy fox\n"))
	rootCmd.SetArgs([]string{"tell"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	got := out.String()
	assert.Contains(t, got, "Welcome to the Bedtime Story Generator!")
	assert.Contains(t, got, "What kind of story would you like tonight? ")
	assert.Contains(t, got, "a sleepy fox")
	assert.Contains(t, got, "Judge Feedback (for debugging)")
	assert.Contains(t, got, "Affirmation:\nI am kind, calm, and ready to rest.")
}

func TestTellCommand_ArgsPassedVerbatim(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BEDTIME_LLM_PROVIDER", "mock")
	t.Setenv("BEDTIME_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"tell", "--format", "json", "  a sleepy", "fox  "})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		tellFormat = "text"
	})

	require.NoError(t, rootCmd.Execute())
	got := out.String()
	assert.NotContains(t, got, "Welcome to the Bedtime Story Generator!")

	start := strings.Index(got, "{")
	require.GreaterOrEqual(t, start, 0)
	var res generator.Result
	require.NoError(t, json.Unmarshal([]byte(got[start:]), &res))
	assert.Equal(t, generator.Request("  a sleepy fox  "), res.Request)
}
