package services

import (
	"log/slog"
	"testing"

	"github.com/SAP-F-2025/progress-service/internal/models"
	"gorm.io/datatypes"
)

func testResolver() *StrategyResolver {
	return NewStrategyResolver(slog.Default())
}

func TestStrategyResolver_Video(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		payload  string
		signal   InteractionSignal
		want     bool
	}{
		{
			name:     "below threshold",
			duration: 100,
			signal:   InteractionSignal{"video_timestamp": float64(89)},
			want:     false,
		},
		{
			name:     "at threshold",
			duration: 100,
			signal:   InteractionSignal{"video_timestamp": float64(90)},
			want:     true,
		},
		{
			name:    "duration from payload",
			payload: `{"duration": 200}`,
			signal:  InteractionSignal{"video_timestamp": float64(180)},
			want:    true,
		},
		{
			name:   "unmeasurable duration fails open",
			signal: InteractionSignal{},
			want:   true,
		},
		{
			name:     "no signal",
			duration: 100,
			signal:   nil,
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := &models.ContentBlock{
				Type:     models.BlockVideo,
				Duration: tt.duration,
			}
			if tt.payload != "" {
				block.Payload = datatypes.JSON(tt.payload)
			}
			if got := testResolver().Evaluate(block, tt.signal, 0); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStrategyResolver_TextLike(t *testing.T) {
	tests := []struct {
		name        string
		blockType   models.BlockType
		payload     string
		signal      InteractionSignal
		accumulated int
		want        bool
	}{
		{
			name:      "read complete flag",
			blockType: models.BlockRichText,
			signal:    InteractionSignal{"read_complete": true},
			want:      true,
		},
		{
			name:        "default threshold reached",
			blockType:   models.BlockRichText,
			accumulated: 10,
			want:        true,
		},
		{
			name:        "default threshold not reached",
			blockType:   models.BlockPDF,
			accumulated: 9,
			want:        false,
		},
		{
			name:        "payload overrides threshold",
			blockType:   models.BlockDocx,
			payload:     `{"min_read_seconds": 60}`,
			accumulated: 45,
			want:        false,
		},
		{
			name:        "file treated as timed",
			blockType:   models.BlockFile,
			accumulated: 12,
			want:        true,
		},
		{
			name:        "audio treated as timed",
			blockType:   models.BlockAudio,
			accumulated: 3,
			want:        false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := &models.ContentBlock{Type: tt.blockType}
			if tt.payload != "" {
				block.Payload = datatypes.JSON(tt.payload)
			}
			if got := testResolver().Evaluate(block, tt.signal, tt.accumulated); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStrategyResolver_Quiz(t *testing.T) {
	block := &models.ContentBlock{Type: models.BlockQuiz}
	// Even an explicit-looking signal never completes a quiz block here.
	signal := InteractionSignal{"read_complete": true, "video_timestamp": float64(9999)}
	if testResolver().Evaluate(block, signal, 100000) {
		t.Error("quiz block must not complete from heartbeat evaluation")
	}
}
