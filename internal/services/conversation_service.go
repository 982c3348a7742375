// Package services – ConversationService
//
// This file implements the ConversationService, which owns the conversation
// transcript: appending envelopes, merging streamed in-place updates,
// persisting the conversation index, and reloading or clearing transcripts.
// Appends persist synchronously (append-then-flush in one call); Save is also
// exported so callers can flush explicitly after out-of-band mutations.
//
// Title handling: the title is derived from the first user message, clipped
// to the first 50 runes, with a fixed fallback while no user message exists.
// A conversation with an empty message log is never saved into the index.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// conversation and message identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/marketlens/go-insight-backend/internal/domain"
	"github.com/marketlens/go-insight-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// defaultTitle is used until a first user message exists to derive from.
	defaultTitle = "New conversation"

	// titleMaxRunes caps derived titles at the first 50 runes of the first
	// user message.
	titleMaxRunes = 50
)

// ConversationService coordinates transcript mutations and index persistence.
type ConversationService struct {
	DB *gorm.DB

	// MaxContentRunes guards against oversized message bodies; 0 disables
	// the check.
	MaxContentRunes int
}

// NewConversationService constructs a ConversationService with sane defaults.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db, MaxContentRunes: 4000}
}

// Append validates and appends one envelope to the conversation, creating the
// conversation row on first use, and persists the index entry (title derived,
// created_at preserved, updated_at refreshed) in the same transaction.
//
// The message id is caller-generated when non-empty; an empty id gets a fresh
// UUID. The appended message is returned with its final id.
func (s *ConversationService) Append(ctx context.Context, conversationID string, msg domain.Message) (*domain.Message, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Append",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.role", msg.Role),
		),
	)
	defer span.End()

	switch msg.Role {
	case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
	default:
		return nil, ErrInvalidRole
	}
	if strings.TrimSpace(msg.Content) == "" && msg.Meta == nil {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(msg.Content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}

	var out *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := repo.GetConversation(ctx, tx, conversationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The index row must exist before the message insert: messages
			// reference conversations with a FK.
			conv = &domain.Conversation{ID: conversationID, Title: defaultTitle}
			if err := repo.UpsertConversation(ctx, tx, conv); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		m, err := repo.CreateMessage(tx, msg.ID, conversationID, msg.Role, msg.Content, msg.Meta)
		if err != nil {
			return err
		}
		out = m

		conv.Title = s.deriveTitle(tx, conversationID, conv.Title)
		return repo.UpsertConversation(ctx, tx, conv)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMessage merges patch fields into the envelope with the given id and
// refreshes the index entry. An unknown id is a silent no-op, never an error:
// streamed updates may arrive after their target was cleared away.
func (s *ConversationService) UpdateMessage(ctx context.Context, conversationID, messageID string, patch repo.MessagePatch) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "UpdateMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		matched, err := repo.UpdateMessage(tx, messageID, patch)
		if err != nil {
			return err
		}
		if !matched {
			// Lookup miss: leave the log unchanged.
			return nil
		}
		if err := repo.TouchConversation(ctx, tx, conversationID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return nil
	})
}

// Save flushes the conversation index entry: derives the title from the first
// user message, preserves created_at, refreshes updated_at. A conversation
// with an empty message log is a no-op, as is an unknown id.
func (s *ConversationService) Save(ctx context.Context, conversationID string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Save",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		total, err := repo.CountMessages(tx, conversationID)
		if err != nil {
			return err
		}
		if total == 0 {
			return nil
		}

		conv, err := repo.GetConversation(ctx, tx, conversationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			conv = &domain.Conversation{ID: conversationID, Title: defaultTitle}
		} else if err != nil {
			return err
		}
		conv.Title = s.deriveTitle(tx, conversationID, conv.Title)
		return repo.UpsertConversation(ctx, tx, conv)
	})
}

// Load returns a stored conversation together with its full transcript in
// canonical order. A missing id yields ErrConversationNotFound; callers that
// must fail silently (the reload-on-navigation path) check for it.
func (s *ConversationService) Load(ctx context.Context, conversationID string) (*domain.Conversation, []domain.Message, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Load",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrConversationNotFound
		}
		return nil, nil, err
	}
	msgs, err := repo.ListMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// ListPage returns a page of the conversation index ordered by last update
// descending, plus the total count for pagination metadata.
func (s *ConversationService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Conversation, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountConversations(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}
	items, err := repo.ListConversationsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Delete removes a conversation from the index together with its transcript.
// Both deletes are soft and run in one transaction so a partial removal can
// never leave orphaned messages behind. A missing id yields
// ErrConversationNotFound.
func (s *ConversationService) Delete(ctx context.Context, conversationID string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteMessages(ctx, tx, conversationID); err != nil {
			return err
		}
		return repo.DeleteConversation(ctx, tx, conversationID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Clear resets the transcript of a conversation without removing its index
// entry. Clearing an unknown conversation is a no-op.
func (s *ConversationService) Clear(ctx context.Context, conversationID string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Clear",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	return repo.DeleteMessages(ctx, s.DB, conversationID)
}

// deriveTitle computes the index title: the first 50 runes of the first user
// message, or the current title when no user message exists yet.
func (s *ConversationService) deriveTitle(tx *gorm.DB, conversationID, current string) string {
	first, err := repo.FirstUserMessage(tx, conversationID)
	if err != nil {
		if current == "" {
			return defaultTitle
		}
		return current
	}
	t := strings.TrimSpace(first.Content)
	if t == "" {
		if current == "" {
			return defaultTitle
		}
		return current
	}
	return clipRunes(t, titleMaxRunes)
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	if n > 0 && utf8.RuneCountInString(s) > n {
		return string([]rune(s)[:n])
	}
	return s
}
