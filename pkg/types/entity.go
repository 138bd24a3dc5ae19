// Package types defines the core data structures for the Chronicler campaign
// codex. These types represent campaign entities, the typed links between
// them, and the suggestions produced by the analysis engine.
package types

import (
	"strings"
	"time"
)

// Entity type constants. Custom per-campaign types are allowed; analyzers
// that rely on per-type schemas simply skip types they do not recognize.
const (
	EntityTypeCharacter     = "character"
	EntityTypeNPC           = "npc"
	EntityTypeLocation      = "location"
	EntityTypeFaction       = "faction"
	EntityTypeItem          = "item"
	EntityTypeSession       = "session"
	EntityTypeTimelineEvent = "timeline_event"
	EntityTypeNote          = "note"
)

// ValidEntityTypes is a slice of all built-in entity types for validation.
var ValidEntityTypes = []string{
	EntityTypeCharacter,
	EntityTypeNPC,
	EntityTypeLocation,
	EntityTypeFaction,
	EntityTypeItem,
	EntityTypeSession,
	EntityTypeTimelineEvent,
	EntityTypeNote,
}

// IsBuiltinEntityType checks if the given entity type is a built-in type.
// Custom types are still valid entities; this only gates schema-based checks.
func IsBuiltinEntityType(entityType string) bool {
	for _, validType := range ValidEntityTypes {
		if validType == entityType {
			return true
		}
	}
	return false
}

// Relationship verb constants used by the analyzers. Link relationships are
// free-form strings; these are only the verbs the engine itself emits or
// recognizes structurally.
const (
	RelLocatedIn = "located_in"
	RelPartOf    = "part_of"
	RelKnows     = "knows"
	RelRelatedTo = "related_to"
)

// Link is a directed, typed relationship from one entity to another.
// The source entity owns the edge; there is no separate edge store.
// Bidirectional is declared intent, not an enforced invariant: the reverse
// edge on the target entity may or may not exist, which the inconsistency
// analyzer detects as relationship asymmetry.
type Link struct {
	ID                  string `json:"id"`
	TargetID            string `json:"target_id"`             // Target entity ID
	TargetType          string `json:"target_type"`           // Target entity type at link time
	Relationship        string `json:"relationship"`          // Free-form relationship verb (e.g. "allied_with")
	Bidirectional       bool   `json:"bidirectional"`         // True if the relationship is symmetric by intent
	ReverseRelationship string `json:"reverse_relationship,omitempty"` // Verb for the reverse edge; defaults to Relationship
	Notes               string `json:"notes,omitempty"`
}

// ExpectedReverse returns the relationship verb expected on the target's
// reverse edge for a bidirectional link.
func (l *Link) ExpectedReverse() string {
	if l.ReverseRelationship != "" {
		return l.ReverseRelationship
	}
	return l.Relationship
}

// Entity represents a user-authored campaign object (character, location,
// faction, etc.). Entities are owned by the persistence layer; the analysis
// engine only reads snapshots and never mutates them.
type Entity struct {
	// Core identification fields
	ID   string `json:"id"`
	Type string `json:"type"` // Entity type (see EntityType constants; custom allowed)
	Name string `json:"name"` // Display name

	// Content fields
	Description string `json:"description,omitempty"` // Free-text description
	Summary     string `json:"summary,omitempty"`     // Generated or user-written summary
	Notes       string `json:"notes,omitempty"`

	// Classification and schema-driven data
	Tags   []string       `json:"tags,omitempty"`   // User-defined tags
	Fields map[string]any `json:"fields,omitempty"` // Open per-type-schema map (numbers, strings, string slices)

	// Outgoing edges owned by this entity
	Links []Link `json:"links,omitempty"`

	// Timestamps and arbitrary metadata
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HasTag reports whether the entity carries the given tag, case-insensitively.
func (e *Entity) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// FieldString returns the named field as a string. Non-string values and
// missing fields return the empty string.
func (e *Entity) FieldString(name string) string {
	if e.Fields == nil {
		return ""
	}
	if s, ok := e.Fields[name].(string); ok {
		return s
	}
	return ""
}

// HasField reports whether the named field is present with a non-empty value.
// Empty strings and empty slices count as missing.
func (e *Entity) HasField(name string) bool {
	if e.Fields == nil {
		return false
	}
	v, ok := e.Fields[name]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) != ""
	case []string:
		return len(val) > 0
	case []any:
		return len(val) > 0
	}
	return true
}
