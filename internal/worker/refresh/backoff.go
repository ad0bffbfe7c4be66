package refresh

import (
	"sync"
	"time"
)

const (
	// initialBackoff は連続失敗時の指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（24時間）。
	maxBackoff = 24 * time.Hour
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大24時間。
func CalculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

type backoffEntry struct {
	failures    int
	nextAttempt time.Time
}

// backoffTracker はプロフィールごとの連続失敗回数と次回試行時刻を保持する。
// 状態はプロセス内のみで、ワーカー再起動でリセットされる。
type backoffTracker struct {
	mu      sync.Mutex
	entries map[string]*backoffEntry
}

func newBackoffTracker() *backoffTracker {
	return &backoffTracker{entries: make(map[string]*backoffEntry)}
}

// ready はnow時点でuserIDを再取り込みしてよい場合にtrueを返す。
func (b *backoffTracker) ready(userID string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[userID]
	return !ok || !now.Before(e.nextAttempt)
}

// recordFailure は失敗を記録し、次回試行までの遅延を返す。
func (b *backoffTracker) recordFailure(userID string, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[userID]
	if !ok {
		e = &backoffEntry{}
		b.entries[userID] = e
	}
	e.failures++
	delay := CalculateBackoff(e.failures)
	e.nextAttempt = now.Add(delay)
	return delay
}

// recordSuccess はuserIDのバックオフ状態をリセットする。
func (b *backoffTracker) recordSuccess(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, userID)
}

// failures はuserIDの連続失敗回数を返す。
func (b *backoffTracker) failures(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[userID]; ok {
		return e.failures
	}
	return 0
}
