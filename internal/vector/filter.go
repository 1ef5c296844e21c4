// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector

import (
	"fmt"
	"maps"
	"slices"
)

// Filter narrows which records are eligible for a search. Every present
// constraint must hold; absent constraints match everything.
type Filter struct {
	Layers     []string `json:"layers,omitempty"`
	AgentID    string   `json:"agent_id,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// IsEmpty reports whether f constrains nothing. A nil filter is empty.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Layers) == 0 && f.AgentID == "" && len(f.Categories) == 0)
}

// WithoutCategories returns a copy of f with the category constraint
// dropped, or nil when nothing else remains.
func (f *Filter) WithoutCategories() *Filter {
	if f == nil {
		return nil
	}
	out := &Filter{Layers: f.Layers, AgentID: f.AgentID}
	if out.IsEmpty() {
		return nil
	}
	return out
}

// Matches reports whether metadata satisfies every constraint in f.
func (f *Filter) Matches(metadata map[string]any) bool {
	if f.IsEmpty() {
		return true
	}
	if len(f.Layers) > 0 && !matchesAny(metadata, MetaLayer, f.Layers) {
		return false
	}
	if f.AgentID != "" && !matchesAny(metadata, MetaAgentID, []string{f.AgentID}) {
		return false
	}
	if len(f.Categories) > 0 && !matchesAny(metadata, MetaCategory, f.Categories) {
		return false
	}
	return true
}

// MatchesCategories reports whether metadata satisfies the category
// constraint alone.
func (f *Filter) MatchesCategories(metadata map[string]any) bool {
	if f == nil || len(f.Categories) == 0 {
		return true
	}
	return matchesAny(metadata, MetaCategory, f.Categories)
}

func matchesAny(metadata map[string]any, key string, candidates []string) bool {
	v, ok := metadata[key]
	if !ok || v == nil {
		return false
	}
	return slices.Contains(candidates, MetadataString(v))
}

// MetadataString renders a metadata value the way filters compare it.
func MetadataString(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case nil:
		return ""
	default:
		return fmt.Sprint(tv)
	}
}

// filterKeys are the metadata keys that filters compare as text.
var filterKeys = []string{MetaLayer, MetaAgentID, MetaCategory}

// CanonicalMetadata returns metadata with the filterable keys rendered by
// MetadataString, so every backend stores and compares the same text.
// The input map is never modified; it is returned unchanged when no value
// needs converting.
func CanonicalMetadata(metadata map[string]any) map[string]any {
	out, copied := metadata, false
	for _, key := range filterKeys {
		v, ok := metadata[key]
		if !ok || v == nil {
			continue
		}
		if _, isString := v.(string); isString {
			continue
		}
		if !copied {
			out, copied = maps.Clone(metadata), true
		}
		out[key] = MetadataString(v)
	}
	return out
}
