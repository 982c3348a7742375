// Package domain – message metadata payloads.
//
// A message may carry one structured payload alongside its free text. The
// payload is a tagged union: Type selects which of the fixed shapes is
// populated, and consuming surfaces extract each shape independently
// (progress indicator, revenue-impact card, quick-win list, quick-action
// row). Extra is an opaque forward-compatibility map; core logic never
// branches on it.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Metadata type discriminators.
const (
	MetaProgress       = "progress"
	MetaRevenueCard    = "revenue_card"
	MetaQuickWins      = "quick_wins"
	MetaQuickActions   = "quick_actions"
	MetaAnalysisResult = "analysis_result"
	MetaError          = "error"
)

// RevenueCard summarizes the estimated financial impact of identified issues.
type RevenueCard struct {
	MonthlyLoss  float64 `json:"monthly_loss"`
	AnnualLoss   float64 `json:"annual_loss"`
	BiggestIssue string  `json:"biggest_issue"`
}

// QuickWin is a structured recommendation surfaced after analysis completion.
//
// Fields:
//   - Title: short name of the recommendation.
//   - Current / Recommended: description of the present and target state.
//   - Improvement: qualitative improvement-potential label (e.g. "High").
//   - TimeEstimate: rough implementation-time estimate (e.g. "2-4 hours").
//   - Steps: ordered implementation steps.
//   - Impact: numeric score used for ranking (higher is better).
type QuickWin struct {
	Title        string   `json:"title"`
	Current      string   `json:"current"`
	Recommended  string   `json:"recommended"`
	Improvement  string   `json:"improvement"`
	TimeEstimate string   `json:"time_estimate"`
	Steps        []string `json:"steps"`
	Impact       float64  `json:"impact"`
}

// QuickAction is a follow-up button. Invoking it synthesizes a new user
// message whose content equals Action.
type QuickAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Issue is a single finding reported by the analysis pipeline.
type Issue struct {
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Results holds the scores and findings of a completed analysis.
// Present on an Analysis row only when its status is "completed".
type Results struct {
	Performance int        `json:"performance"`
	Conversion  int        `json:"conversion"`
	Mobile      int        `json:"mobile"`
	SEO         int        `json:"seo"`
	IssuesFound []Issue    `json:"issues_found"`
	QuickWins   []QuickWin `json:"quick_wins"`
}

// Meta is the tagged-union metadata payload carried by a message.
//
// Type selects the recognized shape; a completion envelope uses
// MetaAnalysisResult and may populate RevenueCard, QuickWins, and
// QuickActions together. Unknown keys survive round-trips through Extra.
type Meta struct {
	Type         string         `json:"type,omitempty"`
	Progress     *int           `json:"progress,omitempty"`
	RevenueCard  *RevenueCard   `json:"revenue_card,omitempty"`
	QuickWins    []QuickWin     `json:"quick_wins,omitempty"`
	QuickActions []QuickAction  `json:"quick_actions,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Value implements driver.Valuer so Meta is stored as a JSON text column.
func (m *Meta) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the JSON text column.
func (m *Meta) Scan(src any) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("meta: unsupported scan type %T", src)
	}
}

// Value implements driver.Valuer so Results is stored as a JSON text column.
func (r *Results) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the JSON text column.
func (r *Results) Scan(src any) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("results: unsupported scan type %T", src)
	}
}

// ErrInvalidTransition is returned when an analysis status change would leave
// the linear state machine (e.g. any transition out of a terminal state).
var ErrInvalidTransition = errors.New("invalid analysis status transition")

// CanTransition reports whether an analysis may move from one status to
// another. Valid moves: pending→analyzing, pending→failed,
// analyzing→completed, analyzing→failed.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusAnalyzing || to == StatusFailed
	case StatusAnalyzing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}
