package util

import (
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	roundCount uint64
	randLock   sync.Mutex
	rng        = rand.New(rand.NewSource(rand.Int63()))
)

// IncrementRoundCount is called once per world round by the scheduler.
func IncrementRoundCount() uint64 {
	return atomic.AddUint64(&roundCount, 1)
}

func GetRoundCount() uint64 {
	return atomic.LoadUint64(&roundCount)
}

// Rand returns a number in [0, n). Returns 0 when n < 1.
func Rand(n int) int {
	if n < 1 {
		return 0
	}
	randLock.Lock()
	defer randLock.Unlock()
	return rng.Intn(n)
}

// SeedRand is used by tests that need repeatable rolls.
func SeedRand(seed int64) {
	randLock.Lock()
	rng = rand.New(rand.NewSource(seed))
	randLock.Unlock()
}

func FilePath(pathParts ...string) string {
	return filepath.FromSlash(strings.Join(pathParts, ``))
}

// Truncate cuts a string to max bytes without splitting a rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !isRuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
