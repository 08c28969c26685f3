// Package openai implements [aide.Provider] for the OpenAI Chat Completions
// API and compatible endpoints.
//
// It wraps the github.com/sashabaranov/go-openai SDK. Streamed chunks are
// translated into the pull-based [aide.Stream] interface; tool call
// fragments are merged by their index until the response completes.
package openai

import "errors"

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("openai: stream closed")

const (
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 4096

	// emptyToolResult replaces blank tool output, which the API omits and
	// then rejects as a tool message without content.
	emptyToolResult = "(no output)"
)
