package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxRounds is the judge-call limit of the critique loop.
const DefaultMaxRounds = 2

// Options tune an Agent.
type Options struct {
	// MaxRounds bounds the judge calls after the first draft. Zero skips judging.
	MaxRounds int
	// MaxTokens is the completion budget per call; 0 uses DefaultMaxTokens.
	MaxTokens int
}

// DefaultOptions returns the stock loop settings.
func DefaultOptions() Options {
	return Options{MaxRounds: DefaultMaxRounds, MaxTokens: DefaultMaxTokens}
}

// Agent 负责生成故事、评审修订并生成反思卡片。
type Agent struct {
	llm    LLMClient
	opts   Options
	logger *zap.Logger
}

func NewAgent(llm LLMClient, opts Options, logger *zap.Logger) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if opts.MaxRounds < 0 {
		opts.MaxRounds = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{llm: llm, opts: opts, logger: logger}, nil
}

// GenerateStory writes the first draft for req.
func (a *Agent) GenerateStory(ctx context.Context, req Request) (string, error) {
	raw, err := a.llm.Complete(ctx, BuildStoryPrompt(req, a.opts.MaxTokens))
	if err != nil {
		return "", fmt.Errorf("generate story: %w", err)
	}
	story := strings.TrimSpace(raw)
	a.logger.Debug("draft generated", zap.Int("words", len(strings.Fields(story))))
	return story, nil
}

// JudgeStory scores story against the rubric. Unparseable output yields the
// fallback record rather than an error; only model-call failures are returned.
func (a *Agent) JudgeStory(ctx context.Context, story string) (JudgeResult, error) {
	raw, err := a.llm.Complete(ctx, BuildJudgePrompt(story, a.opts.MaxTokens))
	if err != nil {
		return JudgeResult{}, fmt.Errorf("judge story: %w", err)
	}
	res, perr := ParseJudge(raw, story)
	if perr != nil {
		parseFailuresTotal.WithLabelValues("judge").Inc()
		a.logger.Warn("judge output not parseable, keeping current story",
			zap.Error(perr),
			zap.String("raw", excerpt(raw, 200)),
		)
	}
	return res, nil
}

// Refine runs the critique loop on draft. It makes at most MaxRounds judge
// calls and stops at the first one that does not ask for a revision.
func (a *Agent) Refine(ctx context.Context, draft string) (string, JudgeResult, []Round, error) {
	story := draft
	if a.opts.MaxRounds == 0 {
		a.logger.Info("judging disabled, returning first draft")
		revisionRounds.Observe(0)
		return story, JudgeResult{}, nil, nil
	}

	var (
		judge  JudgeResult
		rounds []Round
	)
	for i := 1; i <= a.opts.MaxRounds; i++ {
		var err error
		judge, err = a.JudgeStory(ctx, story)
		if err != nil {
			return "", JudgeResult{}, rounds, err
		}
		rounds = append(rounds, Round{Number: i, Draft: story, Judge: judge})
		a.logger.Info("judge round finished",
			zap.Int("round", i),
			zap.Bool("needs_revision", judge.NeedsRevision),
			zap.Float64("avg_score", judge.Scores.Average()),
		)
		if !judge.NeedsRevision {
			break
		}
		if revised := strings.TrimSpace(judge.RevisedStory); revised != "" {
			story = revised
		}
	}
	revisionRounds.Observe(float64(len(rounds)))
	return story, judge, rounds, nil
}

// RefineStory generates a draft for req and runs it through the critique loop.
func (a *Agent) RefineStory(ctx context.Context, req Request) (string, JudgeResult, []Round, error) {
	draft, err := a.GenerateStory(ctx, req)
	if err != nil {
		return "", JudgeResult{}, nil, err
	}
	return a.Refine(ctx, draft)
}

// ReflectionCard builds the questions and affirmation for story.
func (a *Agent) ReflectionCard(ctx context.Context, story string) (ReflectionCard, error) {
	raw, err := a.llm.Complete(ctx, BuildReflectionPrompt(story, a.opts.MaxTokens))
	if err != nil {
		return ReflectionCard{}, fmt.Errorf("reflection card: %w", err)
	}
	card, perr := ParseReflection(raw)
	if perr != nil {
		parseFailuresTotal.WithLabelValues("reflection").Inc()
		a.logger.Warn("reflection output not parseable, using generic card",
			zap.Error(perr),
			zap.String("raw", excerpt(raw, 200)),
		)
	}
	return card, nil
}

// Run drives one full pipeline: draft, critique loop, reflection card.
func (a *Agent) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{Request: req, StartedAt: time.Now()}

	draft, err := a.GenerateStory(ctx, req)
	if err != nil {
		storiesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	res.FirstDraft = draft

	res.Story, res.Judge, res.Rounds, err = a.Refine(ctx, draft)
	if err != nil {
		storiesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	res.Card, err = a.ReflectionCard(ctx, res.Story)
	if err != nil {
		storiesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	res.Duration = time.Since(res.StartedAt)
	storiesTotal.WithLabelValues("success").Inc()
	a.logger.Info("story ready",
		zap.Int("rounds", len(res.Rounds)),
		zap.Bool("revised", res.Revised()),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}
