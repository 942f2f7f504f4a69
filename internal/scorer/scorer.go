// Package scorer evaluates a normalized report record question by
// question against the LLM service and aggregates the per-report result.
package scorer

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scienceon/tutor-batch/internal/cost"
	"github.com/scienceon/tutor-batch/internal/imaging"
	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/pkg/clova"
)

// Image-description placeholders persisted in place of a failed vision
// sub-call. The main evaluation call proceeds with these verbatim.
const (
	placeholderNoImageURL    = "(이미지 URL이 없습니다.)"
	placeholderEmptyAnalysis = "(이미지 분석 결과를 가져오지 못했습니다.)"
	placeholderAnalysisError = "(이미지 분석 중 오류가 발생했습니다.)"
)

const answerOmitted = "(생략)"

// Config tunes the retry policy and context window.
type Config struct {
	// MaxQPMRetries bounds retries of request-rate rejections and of
	// transient call errors, which share the same counter.
	MaxQPMRetries int `yaml:"max_qpm_retries" mapstructure:"max_qpm_retries"`
	// BaseBackoff is the first QPM wait; each retry doubles it.
	BaseBackoff time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	// MaxTPMRetries bounds token-rate rejections on their own counter.
	MaxTPMRetries int `yaml:"max_tpm_retries" mapstructure:"max_tpm_retries"`
	// TPMFallbackWait applies when the rejection carries no reset hint.
	TPMFallbackWait time.Duration `yaml:"tpm_fallback_wait" mapstructure:"tpm_fallback_wait"`
	// PriorWindow is how many preceding question evaluations are fed
	// forward as context.
	PriorWindow int `yaml:"prior_window" mapstructure:"prior_window"`
}

// DefaultConfig returns the production retry policy.
func DefaultConfig() Config {
	return Config{
		MaxQPMRetries:   5,
		BaseBackoff:     2 * time.Second,
		MaxTPMRetries:   4,
		TPMFallbackWait: 60 * time.Second,
		PriorWindow:     2,
	}
}

// Option configures the Scorer.
type Option func(*Scorer)

// WithSleep overrides the wait function used between retries.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Scorer) {
		s.sleep = sleep
	}
}

// Scorer drives the per-record evaluation loop.
type Scorer struct {
	llm    clova.Client
	images *imaging.Preparer
	costs  *cost.Calculator
	cfg    Config
	sleep  func(time.Duration)
}

// New creates a Scorer.
func New(llm clova.Client, images *imaging.Preparer, costs *cost.Calculator, cfg Config, opts ...Option) *Scorer {
	s := &Scorer{
		llm:    llm,
		images: images,
		costs:  costs,
		cfg:    cfg,
		sleep:  time.Sleep,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// callOutcome is one settled completion with its accounting.
type callOutcome struct {
	Response     string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CostKRW      float64
	Seconds      float64
	RateLimit    clova.RateLimitInfo
}

// EvaluateRecord scores every populated slot strictly in key order, then
// synthesizes the cross-question feedback. Any exhausted call fails the
// whole record; the caller turns that into an error artifact.
func (s *Scorer) EvaluateRecord(ctx context.Context, rec *model.Record) (*model.EvaluationResult, error) {
	reportID := rec.Header.ReportID

	responses := make(map[string]*string, len(rec.Slots)+1)
	for _, slot := range rec.Slots {
		responses[slot.Key.String()] = nil
	}

	result := &model.EvaluationResult{
		ReportID:     reportID,
		RegistrantID: rec.Header.RegistrantID,
		StudentID:    rec.Header.StudentID,
		Responses:    responses,
		ModifiedAt:   rec.Header.ModifiedAt,
	}

	var prior []priorItem
	var results []questionResult

	for _, slot := range rec.Slots {
		keyName := reportID + "_" + slot.Key.String()
		zap.L().Debug("scorer: evaluating question",
			zap.String("report_id", reportID), zap.String("key", slot.Key.String()))

		var msgs []clova.Message
		switch slot.Type {
		case model.AnswerText:
			msgs = textMessages(rec.Header, slot, prior)
		case model.AnswerImage:
			msgs = imageMessages(rec.Header, slot, prior, s.describeImage(ctx, keyName, slot.ImageURL))
		case model.AnswerTable:
			msgs = tableMessages(rec.Header, slot, prior)
		case model.AnswerAnalysis:
			msgs = analysisMessages(rec.Header, slot, prior, func(imageURL string) string {
				return s.describeImage(ctx, keyName, imageURL)
			})
		default:
			// Unanswered slots keep their nil response entry.
			continue
		}

		outcome, err := s.call(ctx, keyName, msgs)
		if err != nil {
			return nil, err
		}

		if outcome.Response != "" {
			text := outcome.Response
			responses[slot.Key.String()] = &text
		}

		prior = append(prior, priorItem{
			Question: questionLabel(slot),
			Answer:   answerSummary(slot),
			Result:   outcome.Response,
		})
		if len(prior) > s.cfg.PriorWindow {
			prior = prior[len(prior)-s.cfg.PriorWindow:]
		}

		results = append(results, questionResult{
			Key:      slot.Key,
			Title:    slot.Title,
			Question: slot.Question,
			Response: outcome.Response,
		})
		accumulate(result, outcome)
	}

	feedback, err := s.call(ctx, reportID+"_FEEDBACK", feedbackMessages(rec.Header, results))
	if err != nil {
		return nil, err
	}
	accumulate(result, feedback)
	text := feedback.Response
	responses[model.FeedbackKey] = &text

	result.TotalCostKRW = round(result.TotalCostKRW, 8)
	result.TotalTimeSeconds = round(result.TotalTimeSeconds, 4)
	result.CreatedAt = time.Now().Format("2006-01-02T15:04:05")
	return result, nil
}

func accumulate(res *model.EvaluationResult, o *callOutcome) {
	res.TotalInputTokens += o.InputTokens
	res.TotalOutputTokens += o.OutputTokens
	res.TotalTokens += o.TotalTokens
	res.TotalCostKRW += o.CostKRW
	res.TotalTimeSeconds += o.Seconds
}

func questionLabel(slot model.QuestionSlot) string {
	if slot.Question != "" {
		return slot.Question
	}
	return slot.Title
}

// answerSummary condenses the scored answer for the prior-context window.
// Image and analysis payloads are elided rather than replayed.
func answerSummary(slot model.QuestionSlot) string {
	switch slot.Type {
	case model.AnswerText:
		return strings.TrimSpace(slot.Answer)
	case model.AnswerTable:
		return strings.TrimSpace(slot.TableText)
	case model.AnswerImage, model.AnswerAnalysis:
		return answerOmitted
	}
	return ""
}

// describeImage runs the vision sub-call for one image reference. It never
// fails the evaluation: every failure mode degrades to a placeholder that
// the main call proceeds with.
func (s *Scorer) describeImage(ctx context.Context, keyName, imageURL string) string {
	if imageURL == "" {
		return placeholderNoImageURL
	}

	src, err := s.images.Prepare(ctx, imageURL)
	if err != nil {
		zap.L().Warn("scorer: image preparation failed",
			zap.String("key", keyName), zap.Error(err))
		return placeholderAnalysisError
	}

	var part clova.ContentPart
	if src.Kind == imaging.KindDataURI {
		part = clova.DataURIPart(src.Value)
	} else {
		part = clova.ImagePart(src.Value)
	}

	outcome, err := s.call(ctx, keyName+"_IMGANALS", imageAnalysisMessages(part))
	if err != nil {
		zap.L().Warn("scorer: image analysis call failed",
			zap.String("key", keyName), zap.Error(err))
		return placeholderAnalysisError
	}
	text := strings.TrimSpace(outcome.Response)
	if text == "" {
		return placeholderEmptyAnalysis
	}
	return text
}

// call performs one completion with the rate-limit retry policy. Request-
// rate (QPM) rejections back off exponentially from BaseBackoff; token-
// rate (TPM) rejections wait out the server's reset hint on a separate
// counter; transient errors share the QPM counter. An unknown rate-limit
// subcode is fatal immediately.
func (s *Scorer) call(ctx context.Context, keyName string, msgs []clova.Message) (*callOutcome, error) {
	s.preflightTokens(ctx, keyName, msgs)

	retriesQPM := 0
	retriesTPM := 0
	for {
		if retriesQPM > 0 {
			wait := s.cfg.BaseBackoff << (retriesQPM - 1)
			zap.L().Debug("scorer: backing off",
				zap.String("key", keyName), zap.Int("retry", retriesQPM), zap.Duration("wait", wait))
			s.sleep(wait)
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "scorer: %s canceled", keyName)
		}

		res, err := s.llm.ChatCompletion(ctx, msgs)
		if err == nil {
			return &callOutcome{
				Response:     CleanResponse(res.Content),
				InputTokens:  res.Usage.PromptTokens,
				OutputTokens: res.Usage.CompletionTokens,
				TotalTokens:  res.Usage.TotalTokens,
				CostKRW:      s.costs.Completion(res.Usage.PromptTokens, res.Usage.CompletionTokens),
				Seconds:      round(res.Elapsed.Seconds(), 4),
				RateLimit:    res.RateLimit,
			}, nil
		}

		if rle, ok := clova.AsRateLimit(err); ok {
			switch rle.Scope {
			case clova.ScopeQPM:
				if retriesQPM >= s.cfg.MaxQPMRetries {
					return nil, eris.Wrapf(err, "scorer: %s request-rate retries exhausted after %d attempts", keyName, s.cfg.MaxQPMRetries)
				}
				retriesQPM++
				continue
			case clova.ScopeTPM:
				if retriesTPM >= s.cfg.MaxTPMRetries {
					return nil, eris.Wrapf(err, "scorer: %s token-rate retries exhausted after %d attempts", keyName, s.cfg.MaxTPMRetries)
				}
				retriesTPM++
				wait := s.cfg.TPMFallbackWait
				if secs, ok := rle.ResetSeconds(); ok {
					wait = time.Duration(secs * float64(time.Second))
				}
				zap.L().Debug("scorer: token quota exhausted, waiting for reset",
					zap.String("key", keyName), zap.Int("retry", retriesTPM), zap.Duration("wait", wait))
				s.sleep(wait)
				continue
			default:
				return nil, eris.Wrapf(err, "scorer: %s rejected with unknown rate-limit code", keyName)
			}
		}

		if retriesQPM >= s.cfg.MaxQPMRetries {
			return nil, eris.Wrapf(err, "scorer: %s retries exhausted after %d attempts", keyName, s.cfg.MaxQPMRetries)
		}
		retriesQPM++
		zap.L().Warn("scorer: call failed, retrying",
			zap.String("key", keyName), zap.Int("retry", retriesQPM), zap.Error(err))
	}
}

// preflightTokens logs the prompt's token count; it never blocks scoring.
func (s *Scorer) preflightTokens(ctx context.Context, keyName string, msgs []clova.Message) {
	n, err := s.llm.CountTokens(ctx, msgs)
	if err != nil {
		zap.L().Debug("scorer: token preflight failed", zap.String("key", keyName), zap.Error(err))
		return
	}
	zap.L().Debug("scorer: prompt tokens", zap.String("key", keyName), zap.Int("input_tokens", n))
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
