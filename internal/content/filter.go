package content

import (
	"fmt"
	"io"
	"sort"
)

// Filter transforms exclusive file bytes on the way out. Implementations
// must be pure stream transforms: no authorization logic.
type Filter interface {
	// FinalLength reports the output length for a given input length, so the
	// response can carry a correct Content-Length.
	FinalLength(srcLen int64) int64
	// Apply streams src through the transform into dst.
	Apply(dst io.Writer, src io.Reader) error
}

// Constructor builds a filter instance at startup.
type Constructor func() Filter

var registry = map[string]Constructor{}

// Register adds a filter constructor under an identifier. Call from init.
func Register(name string, ctor Constructor) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("content filter %q registered twice", name))
	}
	registry[name] = ctor
}

// New resolves a configured filter identifier. Unknown names fail at
// startup, not on first use.
func New(name string) (Filter, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown content filter %q (available: %v)", name, names())
	}
	return ctor(), nil
}

func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
