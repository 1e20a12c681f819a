package booklib

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Task types for refresh units.
const (
	// TaskTypeWeeklyRecommendations identifies the weekly recommendation refresh.
	TaskTypeWeeklyRecommendations = "weekly_recommendations"
	// TaskTypeBookCache identifies a per-book cache refresh.
	TaskTypeBookCache = "book_cache"
)

// keyDateLayout is the calendar-date component of a task key.
const keyDateLayout = "2006-01-02"

// DeriveTaskKey returns the deterministic identifier for one logical unit of
// work on a given calendar day. Two calls with identical task type, params
// and day yield the identical key; any difference in any of the three yields
// a different key. Derivation is pure and has no side effects.
func DeriveTaskKey(taskType, params string, day time.Time) string {
	sum := sha256.Sum256([]byte(taskType + ":" + params + ":" + day.Format(keyDateLayout)))
	return hex.EncodeToString(sum[:])
}
