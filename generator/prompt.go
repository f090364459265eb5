package generator

import (
	"fmt"
	"strings"
)

// Temperatures per pipeline step.
const (
	storyTemperature      = 0.8
	judgeTemperature      = 0.3
	reflectionTemperature = 0.4
)

// Prompt is one fully rendered completion request.
type Prompt struct {
	// Kind names the pipeline step, used for logs and metrics.
	Kind        string
	User        string
	MaxTokens   int
	Temperature *float64
	// Schema asks for schema-constrained output where the provider supports it.
	Schema *Schema
}

// Schema is a named JSON schema for structured output.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

func (p Prompt) maxTokens() int {
	if p.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return p.MaxTokens
}

func (p Prompt) temperature() float64 {
	if p.Temperature == nil {
		return DefaultTemperature
	}
	return *p.Temperature
}

func temp(v float64) *float64 { return &v }

// BuildStoryPrompt renders the storyteller template around the user's request.
func BuildStoryPrompt(req Request, maxTokens int) Prompt {
	var sb strings.Builder
	sb.WriteString("You are a warm, imaginative children's storyteller.\n")
	sb.WriteString("Write a calming bedtime story appropriate for ages 5-10.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Soft, gentle tone.\n")
	sb.WriteString("- 400-700 words.\n")
	sb.WriteString("- Clear beginning → middle → end.\n")
	sb.WriteString("- No fear, violence, or intense danger.\n")
	sb.WriteString("- Include a small lesson (kindness, bravery, curiosity).\n")
	sb.WriteString("- End with a calm, soothing paragraph.\n\n")
	sb.WriteString("User request:\n")
	sb.WriteString(fmt.Sprintf("\"%s\"\n\n", req))
	sb.WriteString("Write the story now:\n")

	return Prompt{
		Kind:        "story",
		User:        sb.String(),
		MaxTokens:   maxTokens,
		Temperature: temp(storyTemperature),
	}
}

// BuildJudgePrompt renders the rubric template for one draft.
func BuildJudgePrompt(story string, maxTokens int) Prompt {
	var sb strings.Builder
	sb.WriteString("You are a children's story quality judge.\n\n")
	sb.WriteString("Evaluate this story for ages 5-10:\n\n")
	sb.WriteString(`"""` + story + `"""` + "\n\n")
	sb.WriteString("Return ONLY a JSON object with this format:\n")
	sb.WriteString(`{
  "scores": {
      "age": 1-5,
      "tone": 1-5,
      "structure": 1-5,
      "engagement": 1-5,
      "clarity": 1-5
  },
  "needs_revision": true/false,
  "notes": "short explanation",
  "revision_instructions": "specific, concise edits",
  "revised_story": "a revised version that fixes the issues"
}
`)

	return Prompt{
		Kind:        "judge",
		User:        sb.String(),
		MaxTokens:   maxTokens,
		Temperature: temp(judgeTemperature),
		Schema:      judgeSchema,
	}
}

// BuildReflectionPrompt renders the reflection-card template for the final story.
func BuildReflectionPrompt(story string, maxTokens int) Prompt {
	var sb strings.Builder
	sb.WriteString("Create a 'Reflection Card' for the following bedtime story:\n\n")
	sb.WriteString(`"""` + story + `"""` + "\n\n")
	sb.WriteString("Return ONLY a JSON object like this:\n")
	sb.WriteString(`{
  "questions": [
      "Question 1...",
      "Question 2...",
      "Question 3..."
  ],
  "affirmation": "A positive bedtime affirmation starting with 'I am...'"
}
`)

	return Prompt{
		Kind:        "reflection",
		User:        sb.String(),
		MaxTokens:   maxTokens,
		Temperature: temp(reflectionTemperature),
		Schema:      reflectionSchema,
	}
}

var scoreProperty = map[string]any{"type": "integer"}

var judgeSchema = &Schema{
	Name:        "story_judgement",
	Description: "Rubric scores and an optional revision of a bedtime story",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scores": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"age":        scoreProperty,
					"tone":       scoreProperty,
					"structure":  scoreProperty,
					"engagement": scoreProperty,
					"clarity":    scoreProperty,
				},
				"required":             []string{"age", "tone", "structure", "engagement", "clarity"},
				"additionalProperties": false,
			},
			"needs_revision":        map[string]any{"type": "boolean"},
			"notes":                 map[string]any{"type": "string"},
			"revision_instructions": map[string]any{"type": "string"},
			"revised_story":         map[string]any{"type": "string"},
		},
		"required":             []string{"scores", "needs_revision", "notes", "revision_instructions", "revised_story"},
		"additionalProperties": false,
	},
}

var reflectionSchema = &Schema{
	Name:        "reflection_card",
	Description: "Three reflective questions and an affirmation for after the story",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"affirmation": map[string]any{"type": "string"},
		},
		"required":             []string{"questions", "affirmation"},
		"additionalProperties": false,
	},
}
