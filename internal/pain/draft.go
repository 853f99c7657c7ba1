// Package pain manages pain drafts: the structured problem hypotheses a user
// builds in discovery and later validates. Drafts enter a run as static
// memory facts.
package pain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
)

// Status is the workflow phase of a draft.
type Status string

// Draft statuses.
const (
	StatusDraft      Status = "draft"
	StatusValidation Status = "validation"
)

// Document names a generated document slot on a draft.
type Document string

// Generated documents.
const (
	DocumentReport  Document = "report"
	DocumentLanding Document = "landing"
)

// Query is one generated web-search query for validation research.
type Query struct {
	Query string `json:"query"`
	Type  string `json:"type"`
}

// Draft is a pain hypothesis.
type Draft struct {
	ID       string             `json:"id"`
	UserID   string             `json:"user_id"`
	ChatID   string             `json:"chat_id"`
	Status   Status             `json:"status"`
	Segment  string             `json:"segment"`
	Problem  string             `json:"problem"`
	JTBD     string             `json:"jtbd"`
	Keywords []string           `json:"keywords"`
	Metrics  map[string]float64 `json:"metrics"`
	Queries  []Query            `json:"queries,omitempty"`
	Report   string             `json:"report,omitempty"`
	Landing  string             `json:"landing,omitempty"`
	Created  time.Time          `json:"created"`
	Updated  time.Time          `json:"updated"`
}

// Prompt renders the draft's defining facts.
func (d Draft) Prompt() string {
	keys := make([]string, 0, len(d.Metrics))
	for k := range d.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	metrics := make([]string, len(keys))
	for i, k := range keys {
		metrics[i] = k + ": " + strconv.FormatFloat(d.Metrics[k], 'f', -1, 64)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pain id: %s\n", d.ID)
	fmt.Fprintf(&b, "Pain status: %s\n", d.Status)
	fmt.Fprintf(&b, "Pain segment: %s\n", d.Segment)
	fmt.Fprintf(&b, "Pain problem: %s\n", d.Problem)
	fmt.Fprintf(&b, "Pain job to be done: %s\n", d.JTBD)
	fmt.Fprintf(&b, "Pain keywords: %s\n", strings.Join(d.Keywords, ", "))
	fmt.Fprintf(&b, "Pain metrics:\n%s\n", strings.Join(metrics, ", "))
	fmt.Fprintf(&b, "Pain created: %s\n", d.Created.Format(time.RFC3339))
	fmt.Fprintf(&b, "Pain updated: %s", d.Updated.Format(time.RFC3339))
	return b.String()
}

// StaticItem returns the draft as a static memory fact keyed by its id.
func (d Draft) StaticItem() memory.Item {
	p := d.Prompt()
	return memory.Item{
		ID:         d.ID,
		Kind:       memory.KindStatic,
		Content:    p,
		TokenCost:  budget.EstimateTokens(p),
		Importance: memory.ImportanceHigh,
		CreatedAt:  d.Created,
	}
}

// Update is a partial draft change; nil fields are left alone.
type Update struct {
	Segment  *string
	Problem  *string
	JTBD     *string
	Keywords []string
	Metrics  map[string]float64
}

func (u Update) apply(d *Draft) {
	if u.Segment != nil {
		d.Segment = *u.Segment
	}
	if u.Problem != nil {
		d.Problem = *u.Problem
	}
	if u.JTBD != nil {
		d.JTBD = *u.JTBD
	}
	if u.Keywords != nil {
		d.Keywords = u.Keywords
	}
	if u.Metrics != nil {
		d.Metrics = u.Metrics
	}
}
