package openapi

import (
	"fmt"
	"regexp"
)

// componentNamer hands out unique, OpenAPI-safe component names. Model type
// names are dotted (todo.Task), so sanitisation is the common case.
type componentNamer struct {
	used map[string]struct{}
}

func newComponentNamer() *componentNamer {
	return &componentNamer{used: map[string]struct{}{}}
}

func (n *componentNamer) name(hint string) string {
	safe := sanitizeComponentName(hint)
	if safe == "" {
		safe = "Schema"
	}
	if _, exists := n.used[safe]; !exists {
		n.used[safe] = struct{}{}
		return safe
	}
	suffix := 1
	for {
		candidate := fmt.Sprintf("%s%d", safe, suffix)
		if _, exists := n.used[candidate]; !exists {
			n.used[candidate] = struct{}{}
			return candidate
		}
		suffix++
	}
}

var componentNameRegexp = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeComponentName(name string) string {
	name = componentNameRegexp.ReplaceAllString(name, "_")
	name = trimUnderscores(name)
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func trimUnderscores(input string) string {
	start := 0
	for start < len(input) && input[start] == '_' {
		start++
	}
	end := len(input)
	for end > start && input[end-1] == '_' {
		end--
	}
	return input[start:end]
}
