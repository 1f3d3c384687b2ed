package loader

import (
	"fmt"
	"sort"
)

var registry = map[string]func() Loader{}

// Register makes a Loader constructor available under name for later
// lookup by Get. It is intended to be called from an importing format
// package's init function (see loader/whatsappdb and loader/telegramjson).
func Register(name string, ctor func() Loader) {
	registry[name] = ctor
}

// Get returns a fresh Loader instance registered under name.
func Get(name string) (Loader, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown loader format %q", name)
	}
	return ctor(), nil
}

// Names lists all registered loader format names, sorted for stable CLI output.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
