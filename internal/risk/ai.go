package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// AIVerdict is the parsed JSON response from the chat endpoint.
type AIVerdict struct {
	Decision   string  `json:"decision"` // "ban" or "keep"
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Client talks to an OpenAI-compatible chat completion endpoint to get a
// ban/keep verdict for a feature vector.
type Client struct {
	client       *openai.Client
	model        string
	customPrompt string
	logger       zerolog.Logger

	mu             sync.Mutex
	consecFailures int
	cooldownUntil  time.Time
	cooldown       time.Duration
	failureLimit   int
}

// NewClient builds an AI-ban chat client against baseURL using apiKey.
func NewClient(baseURL, apiKey, model, customPrompt string, cooldown time.Duration, failureLimit int, logger zerolog.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		customPrompt: customPrompt,
		logger:       logger,
		cooldown:     cooldown,
		failureLimit: failureLimit,
	}
}

// Healthy reports whether the client is outside its failure cooldown.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().After(c.cooldownUntil)
}

// ResetAPIHealth clears any active cooldown.
func (c *Client) ResetAPIHealth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecFailures = 0
	c.cooldownUntil = time.Time{}
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecFailures++
	if c.consecFailures >= c.failureLimit {
		c.cooldownUntil = time.Now().Add(c.cooldown)
		c.logger.Warn().Int("consecutive_failures", c.consecFailures).Msg("AI-ban API paused: failure cooldown engaged")
	}
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecFailures = 0
}

// Assess sends the feature vector and returns the parsed verdict.
func (c *Client) Assess(ctx context.Context, f *Features) (*AIVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prompt := buildPrompt(f, c.customPrompt)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are an abuse-detection assistant. Respond with strict JSON only: {\"decision\":\"ban\"|\"keep\",\"confidence\":0..1,\"reason\":\"...\"}."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("ai-ban chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.recordFailure()
		return nil, fmt.Errorf("ai-ban chat completion returned no choices")
	}

	var verdict AIVerdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("parse ai-ban verdict: %w", err)
	}

	c.recordSuccess()
	return &verdict, nil
}

func buildPrompt(f *Features, customPrompt string) string {
	prompt := fmt.Sprintf(
		"User %s (id=%d): requests/min=%.2f, unique_ips=%d, unique_tokens=%d, failure_rate=%.2f, empty_rate=%.2f, ip_switch_flags=%v, checkin_flags=%v.",
		f.Username, f.UserID, f.RequestsPerMinute, f.UniqueIPs, f.UniqueTokens, f.FailureRate, f.EmptyRate, f.IPSwitchFlags, f.CheckinFlags)
	if customPrompt != "" {
		prompt = customPrompt + "\n\n" + prompt
	}
	return prompt
}
