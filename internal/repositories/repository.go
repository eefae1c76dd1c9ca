package repositories

import "context"

// Repository interface tổng hợp tất cả các repository interfaces
type Repository interface {
	// Content tree (read-only, owned by the authoring service)
	ContentTree() ContentTreeRepository

	// Enrollment domain
	Enrollment() EnrollmentRepository

	// Progress domain
	BlockProgress() BlockProgressRepository
	Completion() CompletionRepository

	// Quiz attempt domain
	Quiz() QuizRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// User domain (read-only for progress service)
	User() UserRepository

	// Reporting domain
	Report() ReportRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
