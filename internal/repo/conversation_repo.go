// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The upsert preserves CreatedAt for existing rows: saving an existing
// conversation only refreshes Title and UpdatedAt. Saves are last-writer-wins
// by conversation id; there is no cross-process conflict detection.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketlens/go-insight-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertConversation inserts the conversation or, when a row with the same id
// already exists, updates its title and refreshes updated_at while leaving
// created_at untouched.
func UpsertConversation(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
		}).
		Create(c).Error
}

// GetConversation fetches a single conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns the conversation index ordered by last update
// descending (most recently touched first).
func ListConversations(ctx context.Context, db *gorm.DB) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// CountConversations returns the total number of conversations in the index.
func CountConversations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Count(&total).Error
	return total, err
}

// ListConversationsPage returns a paginated slice of the index ordered by
// last update descending. The caller computes offset and limit.
func ListConversationsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Order("updated_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ConversationsStats returns the index cardinality and the latest updated_at
// timestamp, used to derive a cheap weak ETag for list responses. maxUpdated
// is nil when the index is empty.
func ConversationsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdated *time.Time, err error) {
	if err = db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	// Latest updated_at via ORDER BY (MAX() comes back as TEXT in SQLite).
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Select("updated_at").
		Order("updated_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return count, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// DeleteConversation soft-deletes a conversation row. Messages are not
// touched here; callers that want the transcript gone delete it separately.
// If no row matched, it returns gorm.ErrRecordNotFound.
func DeleteConversation(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Conversation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchConversation refreshes updated_at on a save without changing any other
// column. Returns ErrNotFound when the conversation does not exist.
func TouchConversation(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
