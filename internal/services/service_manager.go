package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SAP-F-2025/progress-service/internal/cache"
	"github.com/SAP-F-2025/progress-service/internal/events"
	"github.com/SAP-F-2025/progress-service/internal/repositories"
	"github.com/SAP-F-2025/progress-service/internal/validator"
	"gorm.io/gorm"
)

// ServiceManager wires and owns every service instance. Services are built
// once during Initialize and shared; getters panic when called before that.
type ServiceManager struct {
	mu sync.RWMutex

	repo         repositories.Repository
	db           *gorm.DB
	logger       *slog.Logger
	validator    *validator.Validator
	publisher    events.EventPublisher
	cacheManager *cache.CacheManager
	config       *ServiceManagerConfig

	progressService    ProgressService
	aggregationService AggregationService
	attemptService     AttemptService
	reportService      ReportService

	initialized bool
	shutdown    bool
}

type ServiceManagerConfig struct {
	Progress    ProgressServiceConfig
	Aggregation AggregationServiceConfig
	Attempt     AttemptServiceConfig
}

type ProgressServiceConfig struct {
	// EnableEvents toggles activity/aggregation event emission; disabled in
	// some test setups.
	EnableEvents bool
}

type AggregationServiceConfig struct {
	// Worker retry budget for transient storage failures.
	MaxRetries int
}

type AttemptServiceConfig struct {
	EnableEvents bool
}

func DefaultServiceManagerConfig() *ServiceManagerConfig {
	return &ServiceManagerConfig{
		Progress:    ProgressServiceConfig{EnableEvents: true},
		Aggregation: AggregationServiceConfig{MaxRetries: 5},
		Attempt:     AttemptServiceConfig{EnableEvents: true},
	}
}

func NewServiceManager(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	cacheManager *cache.CacheManager,
	config *ServiceManagerConfig,
) *ServiceManager {
	if config == nil {
		config = DefaultServiceManagerConfig()
	}
	return &ServiceManager{
		repo:         repo,
		db:           db,
		logger:       logger,
		validator:    validator,
		publisher:    publisher,
		cacheManager: cacheManager,
		config:       config,
	}
}

func (sm *ServiceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if sm.shutdown {
		return fmt.Errorf("service manager has been shut down")
	}

	progressPublisher := sm.publisher
	if !sm.config.Progress.EnableEvents {
		progressPublisher = nil
	}
	attemptPublisher := sm.publisher
	if !sm.config.Attempt.EnableEvents {
		attemptPublisher = nil
	}

	sm.aggregationService = NewAggregationService(sm.repo, sm.db, sm.logger, sm.publisher, sm.cacheManager)
	sm.progressService = NewProgressService(sm.repo, sm.db, sm.logger, sm.validator, progressPublisher, sm.cacheManager, sm.aggregationService)
	sm.attemptService = NewAttemptService(sm.repo, sm.db, sm.logger, sm.validator, attemptPublisher, sm.cacheManager)
	sm.reportService = NewReportService(sm.repo, sm.db, sm.logger)

	sm.initialized = true
	sm.logger.Info("service manager initialized")
	return nil
}

func (sm *ServiceManager) Progress() ProgressService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.progressService
}

func (sm *ServiceManager) Aggregation() AggregationService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.aggregationService
}

func (sm *ServiceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.attemptService
}

func (sm *ServiceManager) Report() ReportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.reportService
}

// Config exposes the effective configuration, mainly so the worker can share
// the aggregation retry budget.
func (sm *ServiceManager) Config() *ServiceManagerConfig {
	return sm.config
}

func (sm *ServiceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager has been shut down")
	}
	return sm.repo.Ping(ctx)
}

func (sm *ServiceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.shutdown {
		return nil
	}
	sm.shutdown = true
	sm.initialized = false

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("failed to close event publisher", "error", err)
		}
	}
	sm.logger.Info("service manager shut down")
	return nil
}

// CreateProductionServiceManager builds a manager with the default
// production configuration.
func CreateProductionServiceManager(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	cacheManager *cache.CacheManager,
) *ServiceManager {
	return NewServiceManager(repo, db, logger, validator, publisher, cacheManager, DefaultServiceManagerConfig())
}

// CreateDevelopmentServiceManager builds a manager suited to local runs: a
// lower retry budget so failures surface quickly.
func CreateDevelopmentServiceManager(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	cacheManager *cache.CacheManager,
) *ServiceManager {
	config := DefaultServiceManagerConfig()
	config.Aggregation.MaxRetries = 1
	return NewServiceManager(repo, db, logger, validator, publisher, cacheManager, config)
}
