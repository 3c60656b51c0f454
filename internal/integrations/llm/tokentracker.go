package llm

import (
	"sync"
	"time"

	"github.com/GoMudEngine/palaver/internal/mudlog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

// Cost per 1K tokens for different models
var modelCosts = map[string]struct{ Input, Output float64 }{
	`gpt-4.1-nano`: {0.0001, 0.0004},
	`gpt-4.1-mini`: {0.0004, 0.0016},
	`gpt-4o-mini`:  {0.00015, 0.0006},
	`gpt-4o`:       {0.0025, 0.01},
}

const trackedSpeakers = 512

// TokenUsage holds token usage stats for a speaker
type TokenUsage struct {
	TotalCalls   int
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // In dollars
	LastUsed     time.Time
}

// TokenTracker keeps usage for the most recently active speakers.
type TokenTracker struct {
	lock      sync.Mutex
	usage     *lru.Cache[string, *TokenUsage]
	total     TokenUsage
	tokenizer *tiktoken.Tiktoken
}

// NewTokenTracker counts with tiktoken when useTiktoken is set and the
// encoding can be loaded, otherwise it estimates from text length.
func NewTokenTracker(useTiktoken bool) *TokenTracker {
	cache, err := lru.New[string, *TokenUsage](trackedSpeakers)
	if err != nil {
		panic(err)
	}

	t := &TokenTracker{usage: cache}

	if useTiktoken {
		enc, err := tiktoken.GetEncoding(`cl100k_base`)
		if err != nil {
			mudlog.Warn("LLM", "tokenizer", "tiktoken", "error", err, "info", "falling back to estimates")
		} else {
			t.tokenizer = enc
		}
	}

	return t
}

// Count returns the number of tokens in text.
func (t *TokenTracker) Count(text string) int {
	if t.tokenizer != nil {
		return len(t.tokenizer.Encode(text, nil, nil))
	}
	return EstimateTokenCount(text)
}

func (t *TokenTracker) Record(speaker string, model string, inputTokens, outputTokens int) {
	cost := 0.0
	if c, ok := modelCosts[model]; ok {
		cost = float64(inputTokens)*c.Input/1000.0 + float64(outputTokens)*c.Output/1000.0
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	usage, ok := t.usage.Get(speaker)
	if !ok {
		usage = &TokenUsage{}
		t.usage.Add(speaker, usage)
	}

	for _, u := range []*TokenUsage{usage, &t.total} {
		u.TotalCalls++
		u.InputTokens += inputTokens
		u.OutputTokens += outputTokens
		u.TotalCost += cost
		u.LastUsed = time.Now()
	}
}

// Usage returns a copy of the speaker's usage.
func (t *TokenTracker) Usage(speaker string) TokenUsage {
	t.lock.Lock()
	defer t.lock.Unlock()

	if usage, ok := t.usage.Peek(speaker); ok {
		return *usage
	}
	return TokenUsage{}
}

func (t *TokenTracker) Total() TokenUsage {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.total
}

// EstimateTokenCount gives a rough estimate of token count based on text length
func EstimateTokenCount(text string) int {
	// Rough estimate: 1 token is about 4 characters in English
	return (len(text) + 3) / 4
}
