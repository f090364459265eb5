package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// JudgeParseErrorNote is the notes text of the judge fallback record.
const JudgeParseErrorNote = "JSON parse error — using original story."

// FallbackAffirmation is used when the reflection card cannot be parsed.
const FallbackAffirmation = "I am safe, loved, and ready for sweet dreams."

// FallbackQuestions returns the generic reflection questions.
func FallbackQuestions() []string {
	return []string{
		"What part of the story did you like most?",
		"How did the main character show kindness or courage?",
		"If you were in the story, what would you do?",
	}
}

var errNoJSONObject = errors.New("no JSON object in model output")

// extractJSONObject returns the text from the first '{' to the last '}'.
func extractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", errNoJSONObject
	}
	return raw[start : end+1], nil
}

func decodeJSONObject(raw string, v any) error {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(obj), v)
}

// ParseJudge decodes a judge response. On failure it returns the fallback
// record, which keeps story unchanged, together with the parse error.
func ParseJudge(raw, story string) (JudgeResult, error) {
	var res JudgeResult
	if err := decodeJSONObject(raw, &res); err != nil {
		return fallbackJudge(story), err
	}
	res.ParseFailed = false
	return res, nil
}

// UnmarshalJSON accepts scores written as integers, floats or numeric
// strings. Floats are rounded.
func (s *Scores) UnmarshalJSON(data []byte) error {
	var raw struct {
		Age        looseInt `json:"age"`
		Tone       looseInt `json:"tone"`
		Structure  looseInt `json:"structure"`
		Engagement looseInt `json:"engagement"`
		Clarity    looseInt `json:"clarity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Scores{
		Age:        int(raw.Age),
		Tone:       int(raw.Tone),
		Structure:  int(raw.Structure),
		Engagement: int(raw.Engagement),
		Clarity:    int(raw.Clarity),
	}
	return nil
}

// UnmarshalJSON accepts needs_revision as a bool, a "true"/"false" string
// or 0/1.
func (j *JudgeResult) UnmarshalJSON(data []byte) error {
	type plain JudgeResult
	aux := struct {
		*plain
		NeedsRevision looseBool `json:"needs_revision"`
	}{plain: (*plain)(j)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	j.NeedsRevision = bool(aux.NeedsRevision)
	return nil
}

type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("score %s is not a number", data)
	}
	*n = looseInt(math.Round(f))
	return nil
}

type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.TrimSpace(strings.Trim(string(data), `"`)))
	if s == "" || bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("needs_revision %s is not a boolean", data)
	}
	*b = looseBool(v)
	return nil
}

func fallbackJudge(story string) JudgeResult {
	return JudgeResult{
		Scores:               Scores{},
		NeedsRevision:        false,
		Notes:                JudgeParseErrorNote,
		RevisionInstructions: "",
		RevisedStory:         story,
		ParseFailed:          true,
	}
}

// ParseReflection decodes a reflection-card response. On failure it returns
// the fallback card with the parse error. Missing parts of a parsed card are
// filled from the fallback.
func ParseReflection(raw string) (ReflectionCard, error) {
	var card ReflectionCard
	if err := decodeJSONObject(raw, &card); err != nil {
		return fallbackCard(), err
	}

	questions := make([]string, 0, len(card.Questions))
	for _, q := range card.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		questions = FallbackQuestions()
	}
	card.Questions = questions
	card.Affirmation = strings.TrimSpace(card.Affirmation)
	if card.Affirmation == "" {
		card.Affirmation = FallbackAffirmation
	}
	return card, nil
}

func fallbackCard() ReflectionCard {
	return ReflectionCard{
		Questions:   FallbackQuestions(),
		Affirmation: FallbackAffirmation,
	}
}

// excerpt shortens model output for log fields.
func excerpt(s string, limit int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit]) + "…"
}
