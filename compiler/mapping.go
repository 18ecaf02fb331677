package compiler

import (
	"strings"

	"github.com/aiproto/runtime/protocol"
)

// MappingTree is a compiled form of a protocol.ParameterMapping: each
// canonical parameter name is pre-split into its wire-path segments once, at
// manifest-load time, so the hot compile path never re-splits a path string
// per request. Grounded on spec.md §9's "compile once at load time into a
// small emitter tree" design note.
type MappingTree struct {
	// segments maps canonical parameter name to its compiled wire-path
	// segments, e.g. "generation.max_tokens" -> ["generation", "max_tokens"].
	segments map[string][]string
}

// CompileMapping builds a MappingTree from a manifest's ordered parameter
// mapping. Dotted wire paths ("generation.max_tokens") become nested
// objects when the mapping is later applied.
func CompileMapping(mapping protocol.ParameterMapping) *MappingTree {
	tree := &MappingTree{segments: make(map[string][]string, len(mapping))}
	for _, entry := range mapping {
		tree.segments[entry.Canonical] = strings.Split(entry.WirePath, ".")
	}
	return tree
}

// PathFor returns the compiled wire-path segments for canonical, and whether
// a mapping exists for it.
func (t *MappingTree) PathFor(canonical string) ([]string, bool) {
	segments, ok := t.segments[canonical]
	return segments, ok
}

// Set writes value into body at the path mapped from canonical, creating
// intermediate objects as needed. Reports false if canonical has no mapping,
// in which case body is left unchanged (unmapped canonical parameters are
// dropped silently per spec.md §4.3).
func (t *MappingTree) Set(body map[string]interface{}, canonical string, value interface{}) bool {
	segments, ok := t.segments[canonical]
	if !ok {
		return false
	}
	setPath(body, segments, value)
	return true
}

func setPath(body map[string]interface{}, segments []string, value interface{}) {
	cur := body
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg]
		if !ok {
			nested := make(map[string]interface{})
			cur[seg] = nested
			cur = nested
			continue
		}
		nestedMap, ok := next.(map[string]interface{})
		if !ok {
			nestedMap = make(map[string]interface{})
			cur[seg] = nestedMap
		}
		cur = nestedMap
	}
}
