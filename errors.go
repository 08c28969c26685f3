package aide

import "errors"

// Sentinel errors for common failure modes. Callers wrap them with
// fmt.Errorf("...: %w", err) and test them with errors.Is.
var (
	// ErrValidation indicates a request, message or config failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamNotReady indicates Message() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrUnknownTool indicates the LLM requested a tool that is not in the catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool indicates two backends advertised the same tool name.
	ErrDuplicateTool = errors.New("duplicate tool name")

	// ErrBackendUnavailable indicates a tool backend could not be started or listed.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrToolExecution indicates a backend reported a failure for a tool call.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrProviderTimeout indicates the local deadline for a provider call expired.
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrProvider indicates the LLM provider returned an error.
	ErrProvider = errors.New("provider error")

	// ErrToolLoopExceeded indicates the model kept requesting tools past the round limit.
	ErrToolLoopExceeded = errors.New("tool loop exceeded")

	// ErrMalformedTranscript indicates tool calls and tool results are out of correlation.
	ErrMalformedTranscript = errors.New("malformed transcript")

	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotConfigured indicates a backend is missing required credentials or settings.
	ErrNotConfigured = errors.New("not configured")
)
