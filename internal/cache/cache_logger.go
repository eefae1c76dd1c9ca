package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// BatchInvalidate invalidates multiple patterns in batch
func BatchInvalidate(ctx context.Context, helper *CacheHelper, patterns []string) error {
	var lastErr error
	for _, pattern := range patterns {
		if err := helper.InvalidatePattern(ctx, pattern); err != nil {
			lastErr = err
			slog.ErrorContext(ctx, "Failed to invalidate pattern in batch",
				"error", err,
				"pattern", pattern)
		}
	}
	return lastErr
}

// InvalidateProgressCache invalidates a learner's progress views for a
// course using pipeline deletes where possible
func InvalidateProgressCache(ctx context.Context, cm *CacheManager, userID string, courseID uint) {
	// Delete specific keys using single call
	SafeDelete(ctx, cm.Progress,
		fmt.Sprintf("user:%s:course:%d", userID, courseID),
		fmt.Sprintf("user:%s:course:%d:resume", userID, courseID))

	// Invalidate patterns
	SafeDelete(ctx, cm.Enrollment, fmt.Sprintf("user:%s:course:%d", userID, courseID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("course:%d:*", courseID))
}

// InvalidateQuizAttemptCache invalidates cached attempt state after a
// submission, grade, or reset
func InvalidateQuizAttemptCache(ctx context.Context, cm *CacheManager, userID string, quizID uint) {
	SafeDelete(ctx, cm.Quiz, fmt.Sprintf("attempts:user:%s:quiz:%d", userID, quizID))
	SafeInvalidatePattern(ctx, cm.Quiz, fmt.Sprintf("attempt:*:user:%s:*", userID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("quiz:%d:*", quizID))
}
