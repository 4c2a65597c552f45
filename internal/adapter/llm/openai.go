package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/xiaot623/gogo/gateway/internal/config"
	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// OpenAIClient is the driver backed by the official openai-go SDK.
// SDK retries are disabled; retries belong to the caller's guard.
type OpenAIClient struct {
	client      *openai.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIClient creates an SDK-backed client. BaseURL is the API root
// without the /v1 suffix.
func NewOpenAIClient(cfg config.UpstreamConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/v1/"))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client:      &client,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (c *OpenAIClient) params(messages []ChatMessage) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch domain.Role(m.Role) {
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       c.model,
		Temperature: param.NewOpt(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(c.maxTokens))
	}
	return params
}

// Chat sends a chat completion request (non-streaming).
func (c *OpenAIClient) Chat(ctx context.Context, messages []ChatMessage) (*Completion, error) {
	if c.apiKey == "" {
		return nil, missingKeyError()
	}

	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages))
	if err != nil {
		return nil, c.mapError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, protocolError("response has no choices", nil)
	}

	return &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: convUsage(resp.Usage),
	}, nil
}

// StreamChat sends a streaming chat completion request.
func (c *OpenAIClient) StreamChat(ctx context.Context, messages []ChatMessage, onDelta func(string) error) (*Completion, error) {
	if c.apiKey == "" {
		return nil, missingKeyError()
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(messages))
	defer stream.Close()

	completion := &Completion{Model: c.model}
	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Model != "" {
			completion.Model = chunk.Model
		}
		if chunk.Usage.TotalTokens > 0 {
			completion.Usage = convUsage(chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, c.mapError(ctx, err)
	}

	completion.Text = text.String()
	return completion, nil
}

func (c *OpenAIClient) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		derr := classifyShape(apiErr.StatusCode, apiErr.Type, apiErr.Code, apiErr.Message)
		derr.Err = err
		return derr
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return protocolError("malformed stream chunk", err)
	}
	return transportError(err)
}

func convUsage(u openai.CompletionUsage) *domain.Usage {
	return &domain.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}
