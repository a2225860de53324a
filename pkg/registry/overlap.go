package registry

import (
	"fmt"
	"strings"

	"github.com/harun/toolbelt/pkg/schema"
)

// FindOverlapping flags existing tools the proposed schema likely duplicates
// or over-specializes. The findings are advisory: callers should prefer
// generalizing an existing tool over registering a near-duplicate, but
// registration is never blocked.
func (r *Registry) FindOverlapping(s *schema.ToolSchema) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := []string{}
	for _, warning := range r.overlapWarnings(s) {
		names = append(names, warning[:strings.IndexByte(warning, ':')])
	}
	return names
}

// overlapWarnings evaluates both overlap signals. Callers hold r.mu.
func (r *Registry) overlapWarnings(s *schema.ToolSchema) []string {
	warnings := []string{}
	proposedVO := verbObject(s.Description)
	for _, name := range r.order {
		if name == s.Name {
			continue
		}
		existing := r.tools[name].schema
		if isNarrowSuperset(s, existing) {
			warnings = append(warnings, fmt.Sprintf(
				"%s: parameters are a strict superset of %q with a single extra parameter; consider generalizing it instead",
				name, name))
		} else if proposedVO != "" && proposedVO == verbObject(existing.Description) {
			warnings = append(warnings, fmt.Sprintf(
				"%s: description opens with the same action (%q) as %q", name, proposedVO, name))
		}
	}
	return warnings
}

// isNarrowSuperset reports whether the proposed parameter set contains every
// parameter of base plus exactly one more.
func isNarrowSuperset(proposed, base *schema.ToolSchema) bool {
	if len(proposed.Parameters) != len(base.Parameters)+1 {
		return false
	}
	for _, bp := range base.Parameters {
		pp, ok := proposed.Parameter(bp.Name)
		if !ok || !pp.Type.Equal(bp.Type) {
			return false
		}
	}
	return true
}

// verbObject extracts the leading verb+object pair of a description,
// lowercased with punctuation stripped.
func verbObject(description string) string {
	words := strings.Fields(strings.ToLower(description))
	if len(words) < 2 {
		return ""
	}
	trim := func(w string) string { return strings.Trim(w, ".,;:!?'\"") }
	return trim(words[0]) + " " + trim(words[1])
}
