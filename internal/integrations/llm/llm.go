// Package llm talks to Ollama or an OpenAI compatible service to produce NPC
// dialogue, choose speakers, write memories and spot intents.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/prompts"
)

const (
	RequestFailureBackoffSeconds = 30
)

var (
	ErrDisabled = errors.New("LLM integration is disabled")
	ErrBackoff  = errors.New("LLM service is in backoff")
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

// ollamaChunk is a whole response, or one line of a streamed one.
type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	Error           string `json:"error,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// MemoryWriter stores what a character remembers.
type MemoryWriter interface {
	AddMemory(ctx context.Context, owner string, content string, significance int) error
}

// Characters is what the client needs to know about the cast.
type Characters interface {
	Relationships(npcName string) []string
	Personality(name string) string
	IsGeneric(name string) bool
	Farewell(name string) string
	Greeting(name string) string
}

type Options struct {
	Config     configs.IntegrationsLLM
	Prompts    *prompts.Prompts
	Characters Characters
	Memory     MemoryWriter
	HTTPClient *http.Client
	// OnIntent receives every recognized intent other than NONE.
	OnIntent func(Intent)
}

type Client struct {
	cfg        configs.IntegrationsLLM
	prompts    *prompts.Prompts
	characters Characters
	memory     MemoryWriter
	http       *http.Client
	onIntent   func(Intent)
	tokens     *TokenTracker

	waitMutex sync.RWMutex
	waitUntil time.Time
}

func New(opts Options) *Client {
	c := &Client{
		cfg:        opts.Config,
		prompts:    opts.Prompts,
		characters: opts.Characters,
		memory:     opts.Memory,
		http:       opts.HTTPClient,
		onIntent:   opts.OnIntent,
	}

	if c.prompts == nil {
		c.prompts = prompts.New()
	}
	if c.characters == nil {
		c.characters = noCharacters{}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.cfg.TimeoutDuration()}
	}
	c.tokens = NewTokenTracker(c.cfg.Tokenizer == `tiktoken`)

	mudlog.Info("LLM", "provider", string(c.cfg.Provider), "model", string(c.cfg.Model), "enabled", bool(c.cfg.Enabled))

	return c
}

func (c *Client) Tokens() *TokenTracker {
	return c.tokens
}

func (c *Client) isOpenAI() bool {
	return strings.EqualFold(string(c.cfg.Provider), `openai`) ||
		strings.Contains(string(c.cfg.BaseURL), `api.openai.com`)
}

// complete sends one chat exchange and returns the reply text. speaker is
// who the tokens are billed to.
func (c *Client) complete(ctx context.Context, speaker string, model string, messages []chatMessage, streaming bool) (string, error) {
	if !c.cfg.Enabled {
		return ``, ErrDisabled
	}
	if c.isRequestBackoff() {
		return ``, ErrBackoff
	}

	if model == `` {
		model = string(c.cfg.Model)
	}

	start := time.Now()

	var (
		text         string
		inputTokens  int
		outputTokens int
		err          error
	)

	if c.isOpenAI() {
		text, inputTokens, outputTokens, err = c.callOpenAI(ctx, model, messages)
	} else {
		text, inputTokens, outputTokens, err = c.callOllama(ctx, model, messages, streaming)
	}

	if err != nil {
		return ``, err
	}

	if inputTokens == 0 {
		for _, m := range messages {
			inputTokens += c.tokens.Count(m.Content)
		}
	}
	if outputTokens == 0 {
		outputTokens = c.tokens.Count(text)
	}
	c.tokens.Record(speaker, model, inputTokens, outputTokens)

	mudlog.Debug("LLM", "speaker", speaker, "model", model, "took", time.Since(start), "in", inputTokens, "out", outputTokens)

	return strings.TrimSpace(text), nil
}

func (c *Client) post(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := string(c.cfg.APIKey); key != `` {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.doRequestBackoff()
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		resp.Body.Close()
		c.doRequestBackoff()
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(snippet))
	}

	return resp, nil
}

func (c *Client) callOllama(ctx context.Context, model string, messages []chatMessage, streaming bool) (string, int, int, error) {
	payload := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   streaming,
	}
	payload.Options.Temperature = float64(c.cfg.Temperature)
	payload.Options.NumPredict = int(c.cfg.MaxTokens)

	url := strings.TrimSuffix(string(c.cfg.BaseURL), "/")
	if !strings.HasSuffix(url, "/api/chat") {
		url += "/api/chat"
	}

	resp, err := c.post(ctx, url, payload)
	if err != nil {
		return ``, 0, 0, err
	}
	defer resp.Body.Close()

	return parseOllama(resp.Body)
}

// parseOllama reads either a single JSON body or a line-delimited stream,
// concatenating message content until a chunk says it is done.
func parseOllama(r io.Reader) (string, int, int, error) {
	var (
		full    strings.Builder
		in, out int
		chunks  int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == `` {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			mudlog.Warn("LLM", "error", "undecodable stream line", "line", line)
			continue
		}
		chunks++

		if chunk.Error != `` {
			return ``, 0, 0, fmt.Errorf("ollama error: %s", chunk.Error)
		}

		full.WriteString(chunk.Message.Content)

		if chunk.Done {
			in, out = chunk.PromptEvalCount, chunk.EvalCount
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return ``, 0, 0, fmt.Errorf("reading response: %w", err)
	}
	if chunks == 0 {
		return ``, 0, 0, errors.New("empty response from ollama")
	}

	return full.String(), in, out, nil
}

func (c *Client) callOpenAI(ctx context.Context, model string, messages []chatMessage) (string, int, int, error) {
	payload := openAIRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float64(c.cfg.Temperature),
		MaxTokens:   int(c.cfg.MaxTokens),
	}

	url := strings.TrimSuffix(string(c.cfg.BaseURL), "/")
	if !strings.HasSuffix(url, "/chat/completions") {
		url += "/chat/completions"
	}

	resp, err := c.post(ctx, url, payload)
	if err != nil {
		return ``, 0, 0, err
	}
	defer resp.Body.Close()

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ``, 0, 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != `` {
		return ``, 0, 0, fmt.Errorf("openai error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return ``, 0, 0, errors.New("no choices in response")
	}

	return parsed.Choices[0].Message.Content, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, nil
}

// Returns true if requests are in a penalty box
func (c *Client) isRequestBackoff() bool {
	c.waitMutex.RLock()
	defer c.waitMutex.RUnlock()
	return c.waitUntil.After(time.Now())
}

// Sets a time for requests to resume
func (c *Client) doRequestBackoff() {
	c.waitMutex.Lock()
	c.waitUntil = time.Now().Add(RequestFailureBackoffSeconds * time.Second)
	c.waitMutex.Unlock()
	mudlog.Warn("LLM", "backoff", fmt.Sprintf("%ds", RequestFailureBackoffSeconds))
}

func (c *Client) resetBackoff() {
	c.waitMutex.Lock()
	c.waitUntil = time.Time{}
	c.waitMutex.Unlock()
}

type noCharacters struct{}

func (noCharacters) Relationships(string) []string { return nil }
func (noCharacters) Personality(string) string      { return `` }
func (noCharacters) IsGeneric(string) bool          { return false }
func (noCharacters) Farewell(string) string         { return `` }
func (noCharacters) Greeting(string) string         { return `` }
