package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fwojciec/aide"
	goopenai "github.com/sashabaranov/go-openai"
)

// Interface compliance check.
var _ aide.Provider = (*Client)(nil)

// Client implements [aide.Provider] for the OpenAI Chat Completions API.
type Client struct {
	client *goopenai.Client
	model  string
}

// Option configures a [Client].
type Option func(*clientConfig)

type clientConfig struct {
	sdk   goopenai.ClientConfig
	model string
}

// WithBaseURL sets the API base URL, including the version prefix. Useful
// for compatible endpoints and for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.sdk.BaseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.sdk.HTTPClient = hc }
}

// WithModel sets the default model ID. Default is gpt-4o.
func WithModel(model string) Option {
	return func(c *clientConfig) { c.model = model }
}

// New creates a new OpenAI [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	cfg := clientConfig{
		sdk:   goopenai.DefaultConfig(apiKey),
		model: defaultModel,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Client{
		client: goopenai.NewClientWithConfig(cfg.sdk),
		model:  cfg.model,
	}
}

// Stream sends a streaming chat completion request and returns a
// [aide.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req aide.Request) (aide.Stream, error) {
	cr := c.buildRequest(req)
	s, err := c.client.CreateChatCompletionStream(ctx, cr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return nil, fmt.Errorf("%w: openai: %w", aide.ErrProvider, err)
	}
	return newStream(ctx, s), nil
}

func (c *Client) buildRequest(req aide.Request) goopenai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	cr := goopenai.ChatCompletionRequest{
		Model:               model,
		MaxCompletionTokens: maxTokens,
		Stream:              true,
		StreamOptions:       &goopenai.StreamOptions{IncludeUsage: true},
		Messages:            ConvertMessages(req.SystemPrompt, req.Messages),
		Tools:               ConvertTools(req.Tools),
	}
	if req.Temperature != nil {
		cr.Temperature = float32(*req.Temperature)
	}
	return cr
}

// ConvertMessages converts a system prompt and aide Messages to chat
// messages. A tool result batch becomes one tool message per result.
// Thinking blocks are not sent back. Exported for testing.
func ConvertMessages(system string, msgs []aide.Message) []goopenai.ChatCompletionMessage {
	var result []goopenai.ChatCompletionMessage
	if system != "" {
		result = append(result, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case aide.UserMessage:
			result = append(result, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: joinText(m.Content),
			})
		case aide.AssistantMessage:
			out := goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleAssistant,
				Content: m.Text(),
			}
			for _, tc := range m.ToolCalls() {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				out.ToolCalls = append(out.ToolCalls, goopenai.ToolCall{
					ID:   tc.ID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			if out.Content == "" && len(out.ToolCalls) == 0 {
				continue
			}
			result = append(result, out)
		case aide.ToolResultMessage:
			for _, r := range m.Results {
				content := r.Content
				if content == "" {
					content = emptyToolResult
				}
				result = append(result, goopenai.ChatCompletionMessage{
					Role:       goopenai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: r.ToolCallID,
				})
			}
		}
	}
	return result
}

func joinText(blocks []aide.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if tb, ok := b.(aide.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ConvertTools converts aide Tools to function tools.
// Exported for testing.
func ConvertTools(tools []aide.Tool) []goopenai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]goopenai.Tool, len(tools))
	for i, t := range tools {
		var params any = t.InputSchema
		if len(t.InputSchema) == 0 {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return result
}
