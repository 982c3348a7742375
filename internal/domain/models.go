// Package domain defines the persistence models for conversations, messages,
// analyses, and integration connections. These types are mapped with GORM and
// form the core data layer of the marketing-analysis assistant.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message roles. A transcript entry is authored by exactly one of these.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Analysis lifecycle states. The state machine is linear:
// pending → analyzing → {completed, failed}. There is no transition out of a
// terminal state.
const (
	StatusPending   = "pending"
	StatusAnalyzing = "analyzing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Conversation represents one transcript: an ordered log of messages plus
// index metadata used by the conversation list.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Title: derived from the first user message (first 50 runes); defaults
//     to "New conversation" while no user message exists.
//   - CreatedAt: set once on first save and never changed afterwards.
//   - UpdatedAt: refreshed on every save; the index is ordered by it.
//   - DeletedAt: soft deletion marker.
type Conversation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null;default:'New conversation'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"index"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single envelope within a conversation. Besides the
// free-text body it may carry a structured metadata payload (progress,
// revenue card, quick wins, quick actions) rendered as cards by the client.
//
// Fields:
//   - ID: UUID primary key (char(36)); caller-generated and immutable.
//     Updates merge fields into the row with the same ID without reordering
//     the log.
//   - ConversationID: foreign key to the owning conversation (indexed).
//   - Role: "user", "assistant", or "system" (enforced by DB constraint).
//   - Content: free-text body; may be empty for pure-card messages.
//   - Meta: optional tagged-union payload, serialized as JSON (see meta.go).
//   - CreatedAt: creation instant, set once; transcript order is
//     (CreatedAt, ID) ascending.
type Message struct {
	ID             string         `json:"id"                 gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id"    gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string         `json:"role"               gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content        string         `json:"content"            gorm:"type:text;not null"`
	Meta           *Meta          `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at"         gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"                  gorm:"index"`

	// Conversation is the parent transcript. Messages are cascade-deleted
	// if their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Analysis tracks one domain audit from submission to completion or failure.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ConversationID: transcript the audit streams its envelopes into.
//   - Domain: the audited identity (e.g. "example.com").
//   - Status: pending | analyzing | completed | failed.
//   - Progress: last reported progress percentage (0–100).
//   - Results: scores and findings, present only when Status is "completed".
type Analysis struct {
	ID             string         `json:"id"                gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id"   gorm:"type:char(36);not null;index"`
	Domain         string         `json:"domain"            gorm:"type:varchar(255);not null"`
	Status         string         `json:"status"            gorm:"type:varchar(16);not null;check:status IN ('pending','analyzing','completed','failed')"`
	Progress       int            `json:"progress"          gorm:"not null;default:0"`
	Results        *Results       `json:"results,omitempty" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"                 gorm:"index"`
}

// TableName returns the database table name for Analysis.
func (Analysis) TableName() string { return "analyses" }

// Terminal reports whether the analysis reached a terminal state. Terminal
// analyses accept no further status transitions or progress updates.
func (a *Analysis) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed
}

// IntegrationConnection links a durable client session to an external ad
// platform. The row is created when a connection attempt begins and flips to
// Connected after the OAuth callback confirms it. The server is the source of
// truth for Connected; client-side markers are optimistic only.
//
// A (SessionID, Provider) pair is unique: repeating the handshake upserts the
// same row rather than accumulating duplicates.
type IntegrationConnection struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	SessionID   string         `json:"session_id"   gorm:"type:char(36);not null;index;uniqueIndex:ux_session_provider"`
	Provider    string         `json:"provider"     gorm:"type:varchar(64);not null;uniqueIndex:ux_session_provider"`
	Connected   bool           `json:"connected"    gorm:"not null;default:false"`
	ConnectedAt *time.Time     `json:"connected_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for IntegrationConnection.
func (IntegrationConnection) TableName() string { return "integration_connections" }
