// Package gemini implements [aide.Provider] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating between aide's
// domain types and the Gemini API types. Streaming uses the SDK's iter.Seq2
// iterator, wrapped into the pull-based [aide.Stream] interface.
package gemini

import "errors"

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("gemini: stream closed")

const (
	defaultModel     = "gemini-3.1-pro-preview"
	defaultMaxTokens = 65536
)
