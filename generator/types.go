package generator

import "time"

// Request is the free-text description of the story a child asked for.
type Request string

// Scores are the rubric sub-scores, 1-5 each. Zero means the judge gave none.
type Scores struct {
	Age        int `json:"age,omitempty"`
	Tone       int `json:"tone,omitempty"`
	Structure  int `json:"structure,omitempty"`
	Engagement int `json:"engagement,omitempty"`
	Clarity    int `json:"clarity,omitempty"`
}

// Empty reports whether no sub-score was set.
func (s Scores) Empty() bool {
	return s == Scores{}
}

// Average of the scores that were given, or 0.
func (s Scores) Average() float64 {
	sum, n := 0, 0
	for _, v := range []int{s.Age, s.Tone, s.Structure, s.Engagement, s.Clarity} {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// JudgeResult is the judge's evaluation of one draft.
type JudgeResult struct {
	Scores               Scores `json:"scores"`
	NeedsRevision        bool   `json:"needs_revision"`
	Notes                string `json:"notes"`
	RevisionInstructions string `json:"revision_instructions"`
	RevisedStory         string `json:"revised_story"`
	// ParseFailed marks a fallback record substituted for unparseable output.
	ParseFailed bool `json:"parse_failed,omitempty"`
}

// ReflectionCard holds the after-story questions and affirmation.
type ReflectionCard struct {
	Questions   []string `json:"questions"`
	Affirmation string   `json:"affirmation"`
}

// Round records one judge call of the critique loop.
type Round struct {
	Number int         `json:"number"`
	Draft  string      `json:"draft"`
	Judge  JudgeResult `json:"judge"`
}

// Result is everything one pipeline run produced.
type Result struct {
	ID         string         `json:"id,omitempty"`
	Request    Request        `json:"request"`
	FirstDraft string         `json:"first_draft"`
	Story      string         `json:"story"`
	Judge      JudgeResult    `json:"judge"`
	Rounds     []Round        `json:"rounds"`
	Card       ReflectionCard `json:"reflection_card"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration_ns"`
}

// Revised reports whether the final story differs from the first draft.
func (r *Result) Revised() bool {
	return r.Story != r.FirstDraft
}
