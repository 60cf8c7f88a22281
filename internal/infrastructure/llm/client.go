// Package llm 封装对 OpenAI 协议兼容端点的访问
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"

	"fiction-ai-api/internal/config"
	"fiction-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("llm")

// Provider 生成能力抽象，生成层只依赖这个接口
type Provider interface {
	// Available API Key 缺失时返回 false，调用方据此走降级路径
	Available() bool
	// Complete 一次性补全，返回完整文本
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// StreamComplete 流式补全，每个增量调用一次 onDelta，返回拼接后的完整文本
	StreamComplete(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string)) (string, error)
}

// Client go-openai 客户端封装
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	available   bool
}

var _ Provider = (*Client)(nil)

// NewClient 创建 LLM 客户端；API Key 为空时客户端可创建但不可用
func NewClient(cfg *config.LLMConfig) *Client {
	c := &Client{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		available:   cfg.APIKey != "",
	}
	if !c.available {
		return c
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	c.client = openai.NewClientWithConfig(clientConfig)
	return c
}

// Available 生成能力是否可用
func (c *Client) Available() bool {
	return c.available
}

// ErrUnavailable 未配置 API Key
var ErrUnavailable = errors.New("llm not configured")

// Complete 一次性补全
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Complete")
	defer span.End()

	if !c.available {
		return "", ErrUnavailable
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	metrics.LLMCallDuration.WithLabelValues("complete").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.LLMCallTotal.WithLabelValues("complete", "error").Inc()
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMCallTotal.WithLabelValues("complete", "empty").Inc()
		return "", errors.New("empty completion response")
	}

	metrics.LLMCallTotal.WithLabelValues("complete", "ok").Inc()
	return resp.Choices[0].Message.Content, nil
}

// StreamComplete 流式补全。onDelta 在每个非空增量上同步回调。
func (c *Client) StreamComplete(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string)) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.StreamComplete")
	defer span.End()

	if !c.available {
		return "", ErrUnavailable
	}

	start := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		span.RecordError(err)
		metrics.LLMCallTotal.WithLabelValues("stream", "error").Inc()
		return "", fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	var full []byte
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.RecordError(err)
			metrics.LLMCallDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
			metrics.LLMCallTotal.WithLabelValues("stream", "error").Inc()
			return string(full), fmt.Errorf("stream recv failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full = append(full, delta...)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	metrics.LLMCallDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	metrics.LLMCallTotal.WithLabelValues("stream", "ok").Inc()
	return string(full), nil
}
