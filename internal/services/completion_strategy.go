package services

import (
	"log/slog"

	"github.com/SAP-F-2025/progress-service/internal/models"
)

const (
	// VideoCompletionRatio is the watched fraction at which a video block
	// counts as finished.
	VideoCompletionRatio = 0.9

	// DefaultMinReadSeconds applies to text-like blocks whose payload does
	// not override min_read_seconds.
	DefaultMinReadSeconds = 10
)

// InteractionSignal carries the client-reported interaction state from one
// heartbeat. All fields are optional; absent values read as zero.
type InteractionSignal map[string]interface{}

func (s InteractionSignal) Float(key string) float64 {
	if s == nil {
		return 0
	}
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (s InteractionSignal) Bool(key string) bool {
	if s == nil {
		return false
	}
	v, _ := s[key].(bool)
	return v
}

// CompletionStrategy decides whether a block counts as finished given the
// learner's accumulated time and the latest interaction signal. Strategies
// never un-complete a block; callers OR the verdict into existing state.
type CompletionStrategy interface {
	Evaluate(block *models.ContentBlock, signal InteractionSignal, accumulatedSeconds int) bool
}

type strategyFunc func(block *models.ContentBlock, signal InteractionSignal, accumulatedSeconds int) bool

func (f strategyFunc) Evaluate(block *models.ContentBlock, signal InteractionSignal, accumulatedSeconds int) bool {
	return f(block, signal, accumulatedSeconds)
}

// StrategyResolver maps block types to their completion rule.
type StrategyResolver struct {
	logger *slog.Logger
}

func NewStrategyResolver(logger *slog.Logger) *StrategyResolver {
	return &StrategyResolver{logger: logger}
}

// Evaluate applies the per-type rule for block. Unknown types never
// auto-complete from a heartbeat.
func (r *StrategyResolver) Evaluate(block *models.ContentBlock, signal InteractionSignal, accumulatedSeconds int) bool {
	switch block.Type {
	case models.BlockVideo:
		return r.evaluateVideo(block, signal)
	case models.BlockQuiz:
		// Quiz completion is decided by the attempt engine's pass result;
		// heartbeats only accumulate time.
		return false
	case models.BlockRichText, models.BlockPDF, models.BlockDocx, models.BlockFile, models.BlockAudio:
		return r.evaluateTimed(block, signal, accumulatedSeconds)
	default:
		r.logger.Warn("no completion rule for block type", "block_id", block.ID, "type", block.Type)
		return false
	}
}

func (r *StrategyResolver) evaluateVideo(block *models.ContentBlock, signal InteractionSignal) bool {
	duration := float64(block.Duration)
	if duration <= 0 {
		duration = float64(block.PayloadInt("duration"))
	}
	if duration <= 0 {
		// Unmeasurable duration fails open so bad metadata cannot block
		// the learner. The warning is the audit trail for content fixes.
		r.logger.Warn("video block has no usable duration, marking complete",
			"block_id", block.ID)
		return true
	}
	return signal.Float("video_timestamp")/duration >= VideoCompletionRatio
}

func (r *StrategyResolver) evaluateTimed(block *models.ContentBlock, signal InteractionSignal, accumulatedSeconds int) bool {
	if signal.Bool("read_complete") {
		return true
	}
	minRead := block.PayloadInt("min_read_seconds")
	if minRead <= 0 {
		minRead = DefaultMinReadSeconds
	}
	return accumulatedSeconds >= minRead
}
