package claims

import (
	"maps"
	"strings"
)

// Claims represents a set of claims as key-value pairs
// This is used for the claims of issued tokens as well as
// attribute payloads fetched from a user directory
type Claims map[string]any

// Copy creates a shallow copy of the claims
func (c Claims) Copy() Claims {
	if c == nil {
		return nil
	}
	result := make(Claims, len(c))
	maps.Copy(result, c)
	return result
}

// Merge merges the other claims into this claims set.
// Nested objects present on both sides are merged key by key;
// any other value from other overwrites the existing value.
func (c Claims) Merge(other Claims) {
	for key, value := range other {
		existing, ok := asObject(c[key])
		incoming, incomingOK := asObject(value)
		if ok && incomingOK {
			merged := Claims(maps.Clone(existing))
			merged.Merge(incoming)
			c[key] = map[string]any(merged)
			continue
		}
		c[key] = value
	}
}

// Get returns the value for the given key, or nil if not present
func (c Claims) Get(key string) any {
	return c[key]
}

// GetString returns the value as a string, or empty string if not present or not a string
func (c Claims) GetString(key string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Has returns true if the key exists in the claims
func (c Claims) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// SetPath sets value under a claim name that may address a nested claim.
// Unescaped dots separate path segments ("address.country" writes
// {"address": {"country": value}}); a backslash escapes a literal dot.
// Intermediate objects are created or reused as needed.
func (c Claims) SetPath(name string, value any) {
	segments := SplitPath(name)
	if len(segments) == 0 {
		return
	}

	current := map[string]any(c)
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asObject(current[segment])
		if !ok {
			next = make(map[string]any)
		} else {
			next = maps.Clone(next)
		}
		current[segment] = next
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// GetPath returns the value at a dotted claim path, see SetPath
func (c Claims) GetPath(name string) (any, bool) {
	segments := SplitPath(name)
	if len(segments) == 0 {
		return nil, false
	}

	current := map[string]any(c)
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asObject(current[segment])
		if !ok {
			return nil, false
		}
		current = next
	}
	value, ok := current[segments[len(segments)-1]]
	return value, ok
}

// SplitPath splits a claim name on unescaped dots.
// Empty names yield no segments.
func SplitPath(name string) []string {
	if name == "" {
		return nil
	}

	var segments []string
	var current strings.Builder
	for i := 0; i < len(name); i++ {
		switch {
		case name[i] == '\\' && i+1 < len(name) && name[i+1] == '.':
			current.WriteByte('.')
			i++
		case name[i] == '.':
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteByte(name[i])
		}
	}
	return append(segments, current.String())
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, true
	case Claims:
		return obj, true
	default:
		return nil, false
	}
}

var lineTerminators = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// JoinLines concatenates the lines of s with no separator.
// \r\n, \n and \r all terminate a line.
func JoinLines(s string) string {
	return lineTerminators.Replace(s)
}
