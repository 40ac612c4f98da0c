package gateway

import (
	"reflect"
	"sort"
	"strings"
)

// Object keys that carry reasoning text directly. Providers disagree on the
// field name, so all observed variants are accepted.
var reasoningTextKeys = []string{"text", "reasoning", "reasoning_content", "summary", "thinking"}

// Object keys that nest further reasoning payloads.
var reasoningContainerKeys = []string{"reasoning_details", "details", "parts"}

// reasoningNode is the closed variant tree an untrusted reasoning payload
// parses into. Only parseReasoning inspects raw shapes; everything after it
// walks this tree.
type reasoningNode interface{ isReasoningNode() }

type reasoningLeaf struct{ text string }

type reasoningContainer struct{ children []reasoningNode }

func (reasoningLeaf) isReasoningNode()      {}
func (reasoningContainer) isReasoningNode() {}

// NormalizeReasoning flattens an untrusted reasoning payload into plain
// text. The payload may be a string, an object carrying text under a known
// key, an array of either, or an object nesting any of these under a known
// container key. ok is false when the payload held nothing extractable, so
// an absent payload is distinguishable from an empty string.
func NormalizeReasoning(v any) (string, bool) {
	node := parseReasoning(v, map[uintptr]bool{})
	if node == nil {
		return "", false
	}
	var b strings.Builder
	flattenReasoning(node, &b)
	return b.String(), true
}

// parseReasoning converts a raw value into the variant tree. Map and slice
// values are tracked by reference identity so self-referential payloads
// terminate.
func parseReasoning(v any, visited map[uintptr]bool) reasoningNode {
	switch val := v.(type) {
	case string:
		return reasoningLeaf{text: val}

	case []any:
		if revisit(val, visited) {
			return nil
		}
		var children []reasoningNode
		for _, item := range val {
			if node := parseReasoning(item, visited); node != nil {
				children = append(children, node)
			}
		}
		if len(children) == 0 {
			return nil
		}
		return reasoningContainer{children: children}

	case map[string]any:
		if revisit(val, visited) {
			return nil
		}
		var children []reasoningNode
		for _, key := range reasoningTextKeys {
			if s, ok := val[key].(string); ok {
				children = append(children, reasoningLeaf{text: s})
			}
		}
		for _, key := range reasoningContainerKeys {
			if nested, ok := val[key]; ok {
				if node := parseReasoning(nested, visited); node != nil {
					children = append(children, node)
				}
			}
		}
		if len(children) == 0 {
			// None of the known keys matched; scan every value in
			// deterministic order.
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if node := parseReasoning(val[k], visited); node != nil {
					children = append(children, node)
				}
			}
		}
		if len(children) == 0 {
			return nil
		}
		return reasoningContainer{children: children}

	default:
		return nil
	}
}

// revisit reports whether the value was already entered on this walk.
func revisit(v any, visited map[uintptr]bool) bool {
	ptr := reflect.ValueOf(v).Pointer()
	if visited[ptr] {
		return true
	}
	visited[ptr] = true
	return false
}

func flattenReasoning(node reasoningNode, b *strings.Builder) {
	switch n := node.(type) {
	case reasoningLeaf:
		b.WriteString(n.text)
	case reasoningContainer:
		for _, child := range n.children {
			flattenReasoning(child, b)
		}
	}
}
