// Command aide is a chat assistant for your email and calendar.
//
// Usage:
//
//	ANTHROPIC_API_KEY=sk-... aide [flags]
//	GEMINI_API_KEY=gk-...    aide [flags]
//	OPENAI_API_KEY=sk-...    aide [flags]
//
// The calendar and mail tools run as MCP servers ("aide serve calendar",
// "aide serve gmail") spawned by the chat command. They need a Google OAuth
// client secret, located by GOOGLE_API_CLIENT_SECRET_FILE or the config file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
