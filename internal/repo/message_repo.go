// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketlens/go-insight-backend/internal/domain"
)

// CreateMessage inserts a new message row. When id is empty a UUID is
// generated; callers that stream in-place updates pass their own stable id.
func CreateMessage(db *gorm.DB, id, conversationID, role, content string, meta *domain.Meta) (*domain.Message, error) {
	if id == "" {
		id = uuid.NewString()
	}
	m := &domain.Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Meta:           meta,
		CreatedAt:      time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// MessagePatch carries the fields an update may merge into an existing
// message. Nil fields are left untouched; CreatedAt and ID never change.
type MessagePatch struct {
	Content *string
	Meta    *domain.Meta
}

// UpdateMessage merges patch fields into the message with the given id.
// A missing id is NOT an error: streamed updates may race with navigation,
// so the caller sees (false, nil) and moves on.
func UpdateMessage(db *gorm.DB, id string, patch MessagePatch) (bool, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.Meta != nil {
		updates["meta"] = patch.Meta
	}
	res := db.Model(&domain.Message{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListMessages returns the full transcript ordered deterministically
// (CreatedAt ASC, ID ASC), which is the canonical transcript order.
func ListMessages(db *gorm.DB, conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND deleted_at IS NULL", conversationID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// FirstUserMessage returns the earliest user-role message of a conversation,
// or ErrNotFound when none exists. Used for title derivation.
func FirstUserMessage(db *gorm.DB, conversationID string) (*domain.Message, error) {
	var m domain.Message
	err := db.Where("conversation_id = ? AND role = ?", conversationID, domain.RoleUser).
		Order("created_at ASC, id ASC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessages removes every message of a conversation. Used by the
// clear-transcript operation, which resets the log without touching the
// conversation index entry.
func DeleteMessages(ctx context.Context, db *gorm.DB, conversationID string) error {
	return db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&domain.Message{}).Error
}
