package aide

// Version is reported to MCP peers during initialization.
const Version = "0.1.0"
