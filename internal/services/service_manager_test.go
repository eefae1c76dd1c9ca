package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/validator"
)

func TestServiceManager_Lifecycle(t *testing.T) {
	logger := slog.Default()
	sm := NewServiceManager(nil, nil, logger, validator.New(), events.NewMockEventPublisher(logger), nil, nil)

	if err := sm.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if sm.Progress() == nil {
		t.Error("Progress() returned nil after Initialize")
	}
	if sm.Aggregation() == nil {
		t.Error("Aggregation() returned nil after Initialize")
	}
	if sm.Attempt() == nil {
		t.Error("Attempt() returned nil after Initialize")
	}
	if sm.Report() == nil {
		t.Error("Report() returned nil after Initialize")
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := sm.Initialize(context.Background()); err == nil {
		t.Error("Initialize() after Shutdown must fail")
	}
}

func TestServiceManager_PanicsBeforeInitialize(t *testing.T) {
	sm := NewServiceManager(nil, nil, slog.Default(), validator.New(), nil, nil, nil)
	defer func() {
		if recover() == nil {
			t.Error("expected panic when accessing services before Initialize")
		}
	}()
	sm.Progress()
}
