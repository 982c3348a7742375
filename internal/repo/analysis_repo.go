// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Analysis
// model, including the guarded status transitions of the audit state machine.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketlens/go-insight-backend/internal/domain"
)

// CreateAnalysis inserts a new analysis row in the pending state.
func CreateAnalysis(ctx context.Context, db *gorm.DB, conversationID, auditDomain string) (*domain.Analysis, error) {
	a := &domain.Analysis{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Domain:         auditDomain,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// GetAnalysis fetches a single analysis by id, or ErrNotFound.
func GetAnalysis(ctx context.Context, db *gorm.DB, id string) (*domain.Analysis, error) {
	var a domain.Analysis
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnalyses returns the analyses of a conversation, newest first.
func ListAnalyses(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Analysis, error) {
	var out []domain.Analysis
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// TransitionAnalysis moves an analysis to the given status, enforcing the
// linear state machine at the SQL level: the UPDATE matches only rows whose
// current status may legally reach the target. Zero rows affected on an
// existing analysis therefore means the transition was illegal, which is
// reported as domain.ErrInvalidTransition.
func TransitionAnalysis(ctx context.Context, db *gorm.DB, id, to string, results *domain.Results) error {
	var from []string
	switch to {
	case domain.StatusAnalyzing:
		from = []string{domain.StatusPending}
	case domain.StatusCompleted:
		from = []string{domain.StatusAnalyzing}
	case domain.StatusFailed:
		from = []string{domain.StatusPending, domain.StatusAnalyzing}
	default:
		return domain.ErrInvalidTransition
	}

	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	// Results accompany completion only.
	if to == domain.StatusCompleted {
		updates["results"] = results
		updates["progress"] = 100
	}

	res := db.WithContext(ctx).
		Model(&domain.Analysis{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetAnalysis(ctx, db, id); err != nil {
			return err
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

// SetAnalysisProgress records the latest progress percentage. Progress only
// moves while the analysis is in the analyzing state; updates against
// terminal or pending rows are silently dropped (streamed progress can race
// with completion).
func SetAnalysisProgress(ctx context.Context, db *gorm.DB, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return db.WithContext(ctx).
		Model(&domain.Analysis{}).
		Where("id = ? AND status = ?", id, domain.StatusAnalyzing).
		Updates(map[string]any{
			"progress":   progress,
			"updated_at": time.Now().UTC(),
		}).Error
}
