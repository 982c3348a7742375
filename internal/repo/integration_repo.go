// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// IntegrationConnection model: the durable (session_id, provider) rows that
// survive the OAuth redirect round-trip and make the server authoritative
// for connection state.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketlens/go-insight-backend/internal/domain"
)

// EnsureConnection upserts a disconnected row for (sessionID, provider) and
// returns the current row. Repeating a handshake never duplicates rows and
// never downgrades an already-connected row.
func EnsureConnection(ctx context.Context, db *gorm.DB, sessionID, provider string) (*domain.IntegrationConnection, error) {
	now := time.Now().UTC()
	c := &domain.IntegrationConnection{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Provider:  provider,
		Connected: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "provider"}},
			DoUpdates: clause.Assignments(map[string]any{"updated_at": now}),
		}).
		Create(c).Error
	if err != nil {
		return nil, err
	}
	return GetConnection(ctx, db, sessionID, provider)
}

// GetConnection fetches the row for (sessionID, provider), or ErrNotFound.
func GetConnection(ctx context.Context, db *gorm.DB, sessionID, provider string) (*domain.IntegrationConnection, error) {
	var c domain.IntegrationConnection
	err := db.WithContext(ctx).
		Where("session_id = ? AND provider = ?", sessionID, provider).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// IsConnected reports the authoritative connection state for
// (sessionID, provider). A missing row means "not connected", not an error.
func IsConnected(ctx context.Context, db *gorm.DB, sessionID, provider string) (bool, error) {
	c, err := GetConnection(ctx, db, sessionID, provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return c.Connected, nil
}

// MarkConnected flips the row for (sessionID, provider) to connected and
// stamps connected_at. The row is created first when the callback arrives for
// a session the server has not seen (e.g. after a DB reset mid-handshake).
func MarkConnected(ctx context.Context, db *gorm.DB, sessionID, provider string) error {
	if _, err := EnsureConnection(ctx, db, sessionID, provider); err != nil {
		return err
	}
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.IntegrationConnection{}).
		Where("session_id = ? AND provider = ?", sessionID, provider).
		Updates(map[string]any{
			"connected":    true,
			"connected_at": now,
			"updated_at":   now,
		}).Error
}

// Disconnect clears the connected flag for (sessionID, provider). A missing
// row is reported as ErrNotFound so handlers can answer 404.
func Disconnect(ctx context.Context, db *gorm.DB, sessionID, provider string) error {
	res := db.WithContext(ctx).
		Model(&domain.IntegrationConnection{}).
		Where("session_id = ? AND provider = ?", sessionID, provider).
		Updates(map[string]any{
			"connected":    false,
			"connected_at": nil,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
