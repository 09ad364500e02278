package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dotsetgreg/rumi/pkg/logger"
)

// maxAnalysisMessages bounds how many of the newest messages are sent for
// personality analysis.
const maxAnalysisMessages = 50

// ClientConfig configures OpenAIClient. BaseURL selects any
// OpenAI-compatible endpoint such as Groq.
type ClientConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	SummaryTemperature  float32
	AnalysisTemperature float32
	SummaryMaxTokens    int
	AnalysisMaxTokens   int
	ChatTemperature     float32
	RuminateTemperature float32
	ChatMaxTokens       int
	RequestTimeout      time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
}

// OpenAIClient implements Summarizer, Analyzer and Responder over the chat
// completions API.
type OpenAIClient struct {
	client *openai.Client
	cfg    ClientConfig
}

var (
	_ Summarizer = (*OpenAIClient)(nil)
	_ Analyzer   = (*OpenAIClient)(nil)
	_ Responder  = (*OpenAIClient)(nil)
)

func NewOpenAIClient(cfg ClientConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("ai api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ai model is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	return &OpenAIClient{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, lines []string, windowLabel, previousContext string) (string, error) {
	out, err := c.complete(ctx, "summarize", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: summaryUserPrompt(lines, windowLabel, previousContext)},
	}, c.cfg.SummaryTemperature, c.cfg.SummaryMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *OpenAIClient) Analyze(ctx context.Context, messages []string, displayName string) (Analysis, error) {
	if len(messages) == 0 {
		return Analysis{Notes: noMessagesNotes, Topics: []string{}, Style: unknownStyle}, nil
	}
	if len(messages) > maxAnalysisMessages {
		messages = messages[len(messages)-maxAnalysisMessages:]
	}
	out, err := c.complete(ctx, "analyze", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: analysisUserPrompt(messages, displayName)},
	}, c.cfg.AnalysisTemperature, c.cfg.AnalysisMaxTokens)
	if err != nil {
		return Analysis{}, err
	}
	return ParseAnalysis(out), nil
}

func (c *OpenAIClient) Respond(ctx context.Context, prompt string, profile *UserContext, contextLines []string, persona string) (string, error) {
	out, err := c.complete(ctx, "respond", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: personaOrDefault(persona) + chatSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: chatUserPrompt(prompt, profile, contextLines)},
	}, c.cfg.ChatTemperature, c.cfg.ChatMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *OpenAIClient) Ruminate(ctx context.Context, style, spark string, contextLines []string, broaderContext, persona string) (string, error) {
	out, err := c.complete(ctx, "ruminate", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: ruminateSystemPrompt(persona, style)},
		{Role: openai.ChatMessageRoleUser, Content: ruminateUserPrompt(spark, contextLines, broaderContext)},
	}, c.cfg.RuminateTemperature, c.cfg.ChatMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *OpenAIClient) complete(ctx context.Context, op string, msgs []openai.ChatCompletionMessage, temperature float32, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			logger.WarnCF("ai", "Retrying completion", map[string]any{
				"op":       op,
				"attempt":  attempt + 1,
				"delay_ms": delay.Milliseconds(),
				"error":    lastErr.Error(),
			})
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("%s: %w", op, ctx.Err())
			case <-timer.C:
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if !retryable(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("no choices returned")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("%s: %w", op, lastErr)
}

// retryable reports rate limits, server errors and transport failures.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
