package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/extract"
	"github.com/nhle/inbox-companion/internal/llm"
	"github.com/nhle/inbox-companion/internal/logging"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/priority"
	"github.com/nhle/inbox-companion/internal/store"
)

// KindSummarize is the job kind that analyzes messages with the model.
const KindSummarize = "summarize"

// Analyzer produces a validated analysis for one message.
type Analyzer interface {
	Analyze(ctx context.Context, req llm.Request) (*llm.Analysis, error)
}

// Summarizer analyzes one message per call and writes the result, or the
// failure, back to the store.
type Summarizer struct {
	store    store.Store
	analyzer Analyzer
	logger   *zap.Logger
}

// NewSummarizer creates the summarize job handler.
func NewSummarizer(s store.Store, a Analyzer, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		store:    s,
		analyzer: a,
		logger:   logging.OrNop(logger).Named("summarize"),
	}
}

// Handle skips the message when a valid cached analysis exists for its
// current body and opts.Force is unset. Otherwise it calls the model,
// derives priority and stores analysis and labels together. A failed
// attempt is recorded as the message's last error.
func (s *Summarizer) Handle(ctx context.Context, id int64, opts Options) (Outcome, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return OutcomeError, err
	}

	text, hash, err := s.bodyOf(ctx, msg)
	if err != nil {
		return OutcomeError, err
	}

	if !opts.Force {
		prev, err := s.store.GetAnalysis(ctx, id)
		switch {
		case err == nil && prev.ValidFor(hash):
			return OutcomeSkipped, nil
		case err != nil && !apperr.IsNotFound(err):
			return OutcomeError, err
		}
	}

	memory, err := s.store.ListMemoryItems(ctx, false)
	if err != nil {
		s.logger.Warn("loading memory items", zap.Error(err))
		memory = nil
	}

	a, err := s.analyzer.Analyze(ctx, llm.Request{
		Subject:   msg.Subject,
		FromName:  msg.FromName,
		FromEmail: msg.FromEmail,
		Date:      msg.Date,
		Body:      text,
		Model:     opts.Model,
		Memory:    memory,
	})
	if err != nil {
		return OutcomeError, s.fail(ctx, id, err)
	}

	analysis := model.MessageAnalysis{
		MessageID:        id,
		BodyHash:         hash,
		Version:          model.AnalysisVersion,
		Lang:             a.Lang,
		Bullets:          a.Bullets,
		KeyActions:       a.KeyActions,
		Urgency:          a.Urgency,
		Importance:       a.Importance,
		Priority:         priority.Score(a.Urgency, a.Importance),
		Confidence:       a.Confidence,
		Truncated:        a.Truncated,
		Model:            a.Model,
		PromptTokens:     a.PromptTokens,
		CompletionTokens: a.CompletionTokens,
		Notes:            a.Notes,
	}
	if err := s.store.UpsertAnalysis(ctx, id, analysis, a.Labels); err != nil {
		if apperr.IsIntegrity(err) {
			s.logger.Error("storing analysis failed", zap.Int64("message_id", id), zap.Error(err))
		}
		return OutcomeError, s.fail(ctx, id, err)
	}
	return OutcomeOK, nil
}

// bodyOf returns the text to analyze and its hash. Messages stored
// without a body fall back to their preview.
func (s *Summarizer) bodyOf(ctx context.Context, msg *model.Message) (string, string, error) {
	body, err := s.store.GetMessageBody(ctx, msg.ID)
	switch {
	case err == nil:
		return body.Text, body.ContentHash, nil
	case apperr.IsNotFound(err):
		return msg.BodyPreview, extract.Hash(msg.BodyPreview), nil
	default:
		return "", "", err
	}
}

// fail records cause as the message's last error and returns it.
func (s *Summarizer) fail(ctx context.Context, id int64, cause error) error {
	if err := s.store.RecordAnalysisFailure(ctx, id, apperr.Message(cause)); err != nil {
		return fmt.Errorf("%w (recording failure: %v)", cause, err)
	}
	return cause
}
