// Package mock provides test doubles for aide interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/aide"
)

// Interface compliance checks.
var (
	_ aide.Provider        = (*Provider)(nil)
	_ aide.ToolExecutor    = (*ToolExecutor)(nil)
	_ aide.Backend         = (*Backend)(nil)
	_ aide.CalendarService = (*CalendarService)(nil)
	_ aide.MailService     = (*MailService)(nil)
)

// Provider is a test double for aide.Provider.
// Set StreamFn before calling Stream.
type Provider struct {
	StreamFn func(ctx context.Context, req aide.Request) (aide.Stream, error)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req aide.Request) (aide.Stream, error) {
	return p.StreamFn(ctx, req)
}
