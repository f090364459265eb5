package generator

import (
	"context"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	switch prompt.Kind {
	case "judge":
		return `Here is my evaluation:
{
  "scores": {"age": 5, "tone": 5, "structure": 4, "engagement": 4, "clarity": 5},
  "needs_revision": false,
  "notes": "Gentle and age-appropriate.",
  "revision_instructions": "",
  "revised_story": ""
}`, nil
	case "reflection":
		return `{
  "questions": [
    "Who did the little friend help along the way?",
    "How do you think they felt at the end?",
    "What would you whisper to the moon tonight?"
  ],
  "affirmation": "I am kind, calm, and ready to rest."
}`, nil
	}

	var sb strings.Builder
	sb.WriteString("Once upon a time, in a quiet valley where the grass hummed softly, ")
	sb.WriteString("there lived a small friend who wanted one thing: ")
	sb.WriteString(mockSubject(prompt.User))
	sb.WriteString(".\n\nAll day they wondered and wandered, sharing berries with a shy rabbit ")
	sb.WriteString("and helping a lost beetle find its way home.\n\n")
	sb.WriteString("When the stars came out one by one, the valley grew still, ")
	sb.WriteString("and our friend curled up, warm and safe, and drifted off to sleep.")
	return sb.String(), nil
}

// mockSubject pulls the quoted request out of a story prompt.
func mockSubject(p string) string {
	const marker = "User request:\n\""
	i := strings.Index(p, marker)
	if i < 0 {
		return "a gentle adventure"
	}
	rest := p[i+len(marker):]
	if j := strings.Index(rest, "\"\n"); j >= 0 {
		rest = rest[:j]
	}
	if rest = strings.TrimSpace(rest); rest == "" {
		return "a gentle adventure"
	}
	return rest
}
