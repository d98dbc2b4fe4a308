package orchestrator

import (
	"strings"
	"unicode"
)

// complexity is the result of task classification.
type complexity int

const (
	// complexitySimple tasks dispatch to a single worker.
	complexitySimple complexity = iota
	// complexityComplex tasks get a collaboration plan.
	complexityComplex
)

// sequencingKeywords are the single-word description markers that signal
// ordered multi-step work.
var sequencingKeywords = map[string]struct{}{
	"then":    {},
	"after":   {},
	"before":  {},
	"first":   {},
	"next":    {},
	"finally": {},
	"step":    {},
}

// classify decides whether a task needs a collaboration plan. Work is
// complex when it requires more than one capability or when its description
// uses sequencing language.
func classify(description string, capabilities []string) complexity {
	if len(capabilities) > 1 {
		return complexityComplex
	}
	if hasSequencingLanguage(description) {
		return complexityComplex
	}
	return complexitySimple
}

// hasSequencingLanguage reports whether the description contains ordering
// markers like "then" or "followed by".
func hasSequencingLanguage(description string) bool {
	desc := strings.ToLower(description)
	if strings.Contains(desc, "followed by") {
		return true
	}
	words := strings.FieldsFunc(desc, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		if _, ok := sequencingKeywords[w]; ok {
			return true
		}
	}
	return false
}

// deriveCapabilities resolves the capability set for a request. Explicit
// capabilities win; otherwise the category names a capability directly, and
// registered capability names mentioned in the description are added.
func (o *Orchestrator) deriveCapabilities(req SubmitRequest) []string {
	caps := append([]string(nil), req.Capabilities...)
	if len(caps) == 0 && req.Category != "" {
		caps = []string{req.Category}
	}

	desc := strings.ToLower(req.Description)
	seen := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		seen[c] = struct{}{}
	}
	for _, name := range o.catalog.Names() {
		if _, ok := seen[name]; ok {
			continue
		}
		// Capability names read as prose with underscores swapped for
		// spaces, e.g. "token_transfer" matches "run a token transfer".
		if strings.Contains(desc, name) || strings.Contains(desc, strings.ReplaceAll(name, "_", " ")) {
			seen[name] = struct{}{}
			caps = append(caps, name)
		}
	}
	return caps
}
