package aide

import "time"

// Metrics records orchestration activity. The prometheus package provides
// the production implementation.
type Metrics interface {
	ObserveProviderCall(provider string, d time.Duration, err error)
	ObserveToolCall(tool, backend string, d time.Duration, isError bool)
	ObserveRounds(rounds int)
}

// NopMetrics discards all observations.
var NopMetrics Metrics = nopMetrics{}

type nopMetrics struct{}

func (nopMetrics) ObserveProviderCall(string, time.Duration, error)     {}
func (nopMetrics) ObserveToolCall(string, string, time.Duration, bool) {}
func (nopMetrics) ObserveRounds(int)                                   {}
