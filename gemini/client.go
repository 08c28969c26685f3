package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/aide"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ aide.Provider = (*Client)(nil)

// Client implements [aide.Provider] for the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID. Default is gemini-3.1-pro-preview.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		client: gc,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Stream sends a streaming request to the Gemini API and returns a
// [aide.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req aide.Request) (aide.Stream, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	contents := ConvertMessages(req.Messages)
	config := buildConfig(req)

	iter := c.client.Models.GenerateContentStream(ctx, model, contents, config)
	return NewStreamFromIter(ctx, iter), nil
}

func buildConfig(req aide.Request) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Tools:           ConvertTools(req.Tools),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
		},
	}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}

	return config
}

// ConvertMessages converts aide Messages to genai Contents. A tool result
// batch becomes one user turn with a function response per call.
// Exported for testing.
func ConvertMessages(msgs []aide.Message) []*genai.Content {
	var result []*genai.Content
	for _, msg := range msgs {
		switch m := msg.(type) {
		case aide.UserMessage:
			result = append(result, &genai.Content{
				Role:  "user",
				Parts: convertParts(m.Content),
			})
		case aide.AssistantMessage:
			// A model turn without parts is rejected by the API.
			parts := convertParts(m.Content)
			if len(parts) == 0 {
				continue
			}
			result = append(result, &genai.Content{
				Role:  "model",
				Parts: parts,
			})
		case aide.ToolResultMessage:
			parts := make([]*genai.Part, len(m.Results))
			for i, r := range m.Results {
				key := "output"
				if r.IsError {
					key = "error"
				}
				parts[i] = &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       r.ToolCallID,
						Name:     r.ToolName,
						Response: map[string]any{key: r.Content},
					},
				}
			}
			result = append(result, &genai.Content{Role: "user", Parts: parts})
		}
	}
	return result
}

func convertParts(blocks []aide.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch bl := b.(type) {
		case aide.TextBlock:
			if bl.Text == "" {
				continue
			}
			parts = append(parts, &genai.Part{Text: bl.Text})
		case aide.ThinkingBlock:
			p := &genai.Part{Text: bl.Thinking, Thought: true}
			if bl.Signature != nil {
				p.ThoughtSignature = bl.Signature
			}
			parts = append(parts, p)
		case aide.ToolCallBlock:
			// Arguments is json.RawMessage: always valid JSON from domain types.
			var args map[string]any
			_ = json.Unmarshal(bl.Arguments, &args)
			p := &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   bl.ID,
					Name: bl.Name,
					Args: args,
				},
			}
			if bl.Signature != nil {
				p.ThoughtSignature = bl.Signature
			}
			parts = append(parts, p)
		}
	}
	return parts
}

// ConvertTools converts aide Tools to genai Tools.
// Exported for testing.
func ConvertTools(tools []aide.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		// InputSchema is json.RawMessage: always valid JSON from domain types.
		var schema map[string]any
		_ = json.Unmarshal(t.InputSchema, &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
