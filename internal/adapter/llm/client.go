package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/xiaot623/gogo/gateway/internal/config"
	"github.com/xiaot623/gogo/gateway/internal/domain"
)

const (
	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
)

// CompatClient talks to any OpenAI-compatible chat completions endpoint
// (OpenAI itself, LiteLLM and similar proxies).
type CompatClient struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewCompatClient creates a new OpenAI-compatible client.
// Deadlines are owned by the caller's context.
func NewCompatClient(cfg config.UpstreamConfig) *CompatClient {
	return &CompatClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{},
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usage) toDomain() *domain.Usage {
	if u == nil {
		return nil
	}
	return &domain.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// Chat sends a chat completion request (non-streaming).
func (c *CompatClient) Chat(ctx context.Context, messages []ChatMessage) (*Completion, error) {
	resp, err := c.do(ctx, messages, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportError(err)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, protocolError("failed to unmarshal response", err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return nil, protocolError("response has no choices", nil)
	}

	model := result.Model
	if model == "" {
		model = c.model
	}
	return &Completion{
		Text:  result.Choices[0].Message.Content,
		Model: model,
		Usage: result.Usage.toDomain(),
	}, nil
}

// StreamChat sends a streaming chat completion request.
func (c *CompatClient) StreamChat(ctx context.Context, messages []ChatMessage, onDelta func(string) error) (*Completion, error) {
	resp, err := c.do(ctx, messages, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Parse SSE stream
	reader := bufio.NewReader(resp.Body)
	completion := &Completion{Model: c.model}
	var text strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, transportError(err)
		}
		eof := err == io.EOF

		line = strings.TrimSpace(line)
		if data, ok := sseData(line); ok && data != "" {
			if data == sseDone {
				break
			}
			delta, err := c.parseChunk(data, completion)
			if err != nil {
				return nil, err
			}
			if delta != "" {
				text.WriteString(delta)
				if err := onDelta(delta); err != nil {
					return nil, err
				}
			}
		}

		if eof {
			break
		}
	}

	completion.Text = text.String()
	return completion, nil
}

// sseData returns the payload of a "data:" field line. One space after the
// colon is optional.
func sseData(line string) (string, bool) {
	data, ok := strings.CutPrefix(line, sseDataPrefix)
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(data, " "), true
}

func (c *CompatClient) parseChunk(data string, completion *Completion) (string, error) {
	if !gjson.Valid(data) {
		return "", protocolError("malformed stream chunk", nil)
	}
	parsed := gjson.Parse(data)
	if parsed.Get("error").Exists() {
		return "", classifyShape(0,
			parsed.Get("error.type").String(),
			parsed.Get("error.code").String(),
			parsed.Get("error.message").String())
	}

	var chunk chatCompletionResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", protocolError("malformed stream chunk", err)
	}
	if chunk.Model != "" {
		completion.Model = chunk.Model
	}
	if chunk.Usage != nil {
		completion.Usage = chunk.Usage.toDomain()
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

// do sends the request and returns a response with a 200 status.
// Non-200 responses are classified and closed.
func (c *CompatClient) do(ctx context.Context, messages []ChatMessage, stream bool) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, missingKeyError()
	}

	body, err := json.Marshal(&chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "failed to create request", err)
	}
	c.setHeaders(httpReq, stream)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, Classify(resp.StatusCode, respBody)
	}
	return resp, nil
}

// setHeaders sets common request headers.
func (c *CompatClient) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
}
