package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/camuig/bbma-trader/internal/logger"
)

// DeepSeekClient classifies headlines through the OpenAI-compatible DeepSeek API.
type DeepSeekClient struct {
	client  *openai.Client
	model   string
	symbol  string
	timeout time.Duration
	logger  *logger.Logger
}

func NewDeepSeekClient(apiKey, baseURL, model, symbol string, timeout time.Duration, log *logger.Logger) *DeepSeekClient {
	ocfg := openai.DefaultConfig(apiKey)
	ocfg.BaseURL = baseURL

	return &DeepSeekClient{
		client:  openai.NewClientWithConfig(ocfg),
		model:   model,
		symbol:  symbol,
		timeout: timeout,
		logger:  log.With("component", "deepseek"),
	}
}

// HighImpact implements news.Classifier.
func (d *DeepSeekClient) HighImpact(ctx context.Context, headlines []string) ([]int, error) {
	if len(headlines) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.logger.Info("sending headlines to DeepSeek", "count", len(headlines))

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(d.symbol, headlines)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("deepseek API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("deepseek returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	d.logger.Debug("AI raw response", "content", raw)

	v, err := ParseVerdict(raw)
	if err != nil {
		return nil, fmt.Errorf("parse AI response: %w", err)
	}

	var out []int
	for _, i := range v.HighImpact {
		if i >= 0 && i < len(headlines) {
			out = append(out, i)
		}
	}
	if len(out) > 0 {
		d.logger.Info("high-impact headlines flagged", "count", len(out), "reasoning", v.Reasoning)
	}
	return out, nil
}
