package memory

import (
	"fmt"
	"time"
)

// Kind is the memory category an item belongs to.
type Kind string

// Memory kinds. Static items are the defining facts of a subject and are
// never retrieved through search.
const (
	KindStatic   Kind = "static"
	KindProfile  Kind = "profile"
	KindEvent    Kind = "event"
	KindArtifact Kind = "artifact"
)

// Importance ranks items inside a kind.
type Importance string

// Importance levels.
const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// EventType classifies conversation-scoped memories.
type EventType string

// Event types.
const (
	EventStory    EventType = "story"
	EventChat     EventType = "chat"
	EventAction   EventType = "action"
	EventDecision EventType = "decision"
)

// ProfileType classifies user-level memories.
type ProfileType string

// Profile types.
const (
	ProfilePreference ProfileType = "preference"
	ProfileBackground ProfileType = "background"
	ProfileGoal       ProfileType = "goal"
	ProfileConstraint ProfileType = "constraint"
)

// Enum values, in schema order, for tool parameter definitions.
var (
	Importances  = []string{string(ImportanceLow), string(ImportanceMedium), string(ImportanceHigh)}
	EventTypes   = []string{string(EventStory), string(EventChat), string(EventAction), string(EventDecision)}
	ProfileTypes = []string{string(ProfilePreference), string(ProfileBackground), string(ProfileGoal), string(ProfileConstraint)}
)

// Item is one memory candidate. Items are values; nothing in the core
// mutates an item after a collaborator returned it.
type Item struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Type       string     `json:"type,omitempty"`
	Content    string     `json:"content"`
	TokenCost  int        `json:"token_cost"`
	Importance Importance `json:"importance"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Cost returns the item's token cost.
func Cost(it Item) int { return it.TokenCost }

// Scope narrows a search or write to its owner. Profile memory is scoped by
// user, event memory by chat, artifact memory by pain draft. A non-zero Since
// restricts results to items created at or after it.
type Scope struct {
	UserID string
	ChatID string
	PainID string
	Since  time.Time
}

// ParseImportance validates s.
func ParseImportance(s string) (Importance, error) {
	switch Importance(s) {
	case ImportanceLow, ImportanceMedium, ImportanceHigh:
		return Importance(s), nil
	}
	return "", fmt.Errorf("unknown importance %q", s)
}
