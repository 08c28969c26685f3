package aide

// InitStatus reports how much of the tool catalog came up at session start.
type InitStatus string

const (
	InitReady   InitStatus = "ready"   // every backend contributed tools
	InitPartial InitStatus = "partial" // some backends are unavailable
	InitFailed  InitStatus = "failed"  // no backend contributed tools
)
