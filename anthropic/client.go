package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fwojciec/aide"
)

// Interface compliance check.
var _ aide.Provider = (*Client)(nil)

// Client implements [aide.Provider] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new Anthropic [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream sends a streaming request to the Anthropic Messages API and returns
// a [aide.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req aide.Request) (aide.Stream, error) {
	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", aide.ErrProvider, parseHTTPError(resp))
	}

	return newStream(ctx, resp.Body), nil
}

func (c *Client) buildRequestBody(req aide.Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	apiReq := apiRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Stream:      true,
		System:      convertSystem(req.SystemPrompt),
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		Temperature: req.Temperature,
	}
	injectCacheMarkers(&apiReq)

	return json.Marshal(apiReq)
}

// convertSystem converts a system prompt string to an array of content blocks
// suitable for the Anthropic API. Returns nil when the prompt is empty.
func convertSystem(prompt string) []apiContentBlock {
	if prompt == "" {
		return nil
	}
	return []apiContentBlock{{Type: "text", Text: prompt}}
}

// injectCacheMarkers sets cache_control breakpoints on the request:
//  1. Top-level: automatic caching for the conversation message window.
//  2. System prompt last block: stable content breakpoint.
//  3. Last tool: stable tool definitions breakpoint.
func injectCacheMarkers(req *apiRequest) {
	// cc is shared across all breakpoints; safe because it is read-only after assignment.
	cc := &apiCacheControl{Type: "ephemeral"}

	// Top-level cache_control for automatic message-window caching.
	req.CacheControl = cc

	// System prompt last block.
	if len(req.System) > 0 {
		req.System[len(req.System)-1].CacheControl = cc
	}

	// Last tool.
	if len(req.Tools) > 0 {
		req.Tools[len(req.Tools)-1].CacheControl = cc
	}
}

func convertMessages(msgs []aide.Message) []apiMessage {
	var result []apiMessage
	for _, msg := range msgs {
		switch m := msg.(type) {
		case aide.UserMessage:
			result = append(result, apiMessage{
				Role:    "user",
				Content: convertContentBlocks(m.Content),
			})
		case aide.AssistantMessage:
			// The API rejects empty turns; a reply with no blocks is
			// recorded locally but never sent back.
			content := convertContentBlocks(m.Content)
			if len(content) == 0 {
				continue
			}
			result = append(result, apiMessage{
				Role:    "assistant",
				Content: content,
			})
		case aide.ToolResultMessage:
			// A whole batch answers one assistant turn with a single user
			// message carrying one tool_result block per call.
			blocks := make([]apiContentBlock, len(m.Results))
			for i, r := range m.Results {
				text := r.Content
				if text == "" {
					text = emptyToolResult
				}
				blocks[i] = apiContentBlock{
					Type:      "tool_result",
					ToolUseID: r.ToolCallID,
					Content:   []apiContentBlock{{Type: "text", Text: text}},
					IsError:   r.IsError,
				}
			}
			result = append(result, apiMessage{Role: "user", Content: blocks})
		}
	}
	return result
}

func convertContentBlocks(blocks []aide.ContentBlock) []apiContentBlock {
	result := make([]apiContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case aide.TextBlock:
			if bl.Text == "" {
				continue
			}
			result = append(result, apiContentBlock{Type: "text", Text: bl.Text})
		case aide.ThinkingBlock:
			result = append(result, apiContentBlock{Type: "thinking", Thinking: bl.Thinking, Signature: string(bl.Signature)})
		case aide.ToolCallBlock:
			input := bl.Arguments
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			result = append(result, apiContentBlock{Type: "tool_use", ID: bl.ID, Name: bl.Name, Input: input})
		}
	}
	return result
}

func convertTools(tools []aide.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		result[i] = apiTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
	}
	return result
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("anthropic: HTTP %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("anthropic: %s: %s", apiErr.Error.Type, apiErr.Error.Message)
}
