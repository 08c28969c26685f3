package tools

import (
	"strings"

	"github.com/rivo/uniseg"
)

// DefaultPreviewLength is the number of characters of a tool result logged.
const DefaultPreviewLength = 200

// Preview shortens s to at most n user-perceived characters, appending
// "..." when anything was cut. A non-positive n disables truncation.
func Preview(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	g := uniseg.NewGraphemes(s)
	var b strings.Builder
	for i := 0; i < n && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	if b.Len() == len(s) {
		return s
	}
	return b.String() + "..."
}
