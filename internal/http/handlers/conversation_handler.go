// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - POST   /conversations                      (mint a new conversation id)
//   - GET    /conversations                      (list index, paginated, ETag)
//   - GET    /conversations/{id}                 (load transcript)
//   - DELETE /conversations/{id}                 (delete from index)
//   - POST   /conversations/{id}/clear           (reset transcript)
//   - POST   /conversations/{id}/messages        (append envelope)
//   - PATCH  /conversations/{id}/messages/{mid}  (merge-update envelope)
//   - POST   /conversations/{id}/answer          (playbook-backed reply)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketlens/go-insight-backend/internal/domain"
	"github.com/marketlens/go-insight-backend/internal/repo"
	"github.com/marketlens/go-insight-backend/internal/services"
	"github.com/marketlens/go-insight-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService defines transcript operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type ConversationService interface {
	// Append adds one envelope and persists the index entry.
	Append(ctx context.Context, conversationID string, msg domain.Message) (*domain.Message, error)
	// UpdateMessage merges fields into an envelope by id; unknown ids no-op.
	UpdateMessage(ctx context.Context, conversationID, messageID string, patch repo.MessagePatch) error
	// Save flushes the index entry (no-op for empty transcripts).
	Save(ctx context.Context, conversationID string) error
	// Load returns the conversation and its transcript in canonical order.
	Load(ctx context.Context, conversationID string) (*domain.Conversation, []domain.Message, error)
	// ListPage returns a page of the index plus the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Conversation, int64, error)
	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, conversationID string) error
	// Clear resets the transcript without touching the index entry.
	Clear(ctx context.Context, conversationID string) error
}

// AnalysisService defines audit lifecycle operations.
type AnalysisService interface {
	// Start records a pending analysis and launches the engine.
	Start(ctx context.Context, conversationID, auditDomain string, wait bool) (*domain.Analysis, error)
	// Get returns one analysis by id.
	Get(ctx context.Context, id string) (*domain.Analysis, error)
	// List returns a conversation's analyses, newest first.
	List(ctx context.Context, conversationID string) ([]domain.Analysis, error)
}

// AssistantService answers free-text follow-ups from the playbook.
type AssistantService interface {
	Answer(ctx context.Context, conversationID, prompt string) (*domain.Message, error)
}

// IntegrationService drives the session-scoped OAuth handshake.
type IntegrationService interface {
	AuthURL(ctx context.Context, provider, sessionID string) (string, error)
	HandleCallback(ctx context.Context, provider, state string) (string, error)
	Status(ctx context.Context, provider, sessionID string) (connected bool, sid string, err error)
	Disconnect(ctx context.Context, provider, sessionID string, confirmed bool) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for conversations, analyses, and
// integrations. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	convSvc     ConversationService
	analysisSvc AnalysisService
	assistSvc   AssistantService
	intSvc      IntegrationService
}

// New constructs a Handlers instance bound to the given services.
func New(convSvc ConversationService, analysisSvc AnalysisService, assistSvc AssistantService, intSvc IntegrationService) *Handlers {
	return &Handlers{convSvc: convSvc, analysisSvc: analysisSvc, assistSvc: assistSvc, intSvc: intSvc}
}

//
// DTOs
//

// AppendMessageRequest is the JSON payload for appending an envelope.
type AppendMessageRequest struct {
	// ID optionally fixes the envelope id (for in-place streamed updates).
	ID string `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Role defaults to "user" when empty.
	Role string `json:"role" example:"user"`
	// Content is the free-text body; may be empty for pure-card messages.
	Content string `json:"content" example:"Analyze example.com"`
	// Metadata optionally carries a structured payload.
	Metadata *domain.Meta `json:"metadata,omitempty"`
}

// UpdateMessageRequest is the JSON payload for merging envelope fields.
type UpdateMessageRequest struct {
	Content  *string      `json:"content,omitempty"`
	Metadata *domain.Meta `json:"metadata,omitempty"`
}

// AnswerRequest is the JSON payload for a playbook-backed reply.
type AnswerRequest struct {
	Prompt string `json:"prompt" binding:"required" example:"How do I fix slow checkout?"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListConversationsResponse wraps a page of the conversation index.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// ConversationResponse is a conversation plus its full transcript.
type ConversationResponse struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	return utils.ClampPage(c.Query("page"), c.Query("page_size"), defaultPage, defaultPageSize, maxPageSize)
}

// pathUUID validates that the named path parameter is a UUID.
func pathUUID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// CreateConversation godoc
// @ID          createConversation
// @Summary     Mint a new conversation id
// @Description Returns a fresh conversation id. The conversation is persisted into the index on its first message, never while empty.
// @Tags        Conversations
// @Produce     json
// @Success     201  {object}  domain.Conversation
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	ok(c, http.StatusCreated, domain.Conversation{ID: uuid.NewString(), Title: "New conversation"})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Returns a page of the conversation index ordered by last update. Supports weak ETag via If-None-Match.
// @Tags        Conversations
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"    minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page" minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListConversationsResponse
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if svc, okCast := h.convSvc.(*services.ConversationService); okCast && svc.DB != nil {
		count, maxTS, err := repo.ConversationsStats(ctx, svc.DB)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"conversations:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Load a conversation transcript
// @Tags        Conversations
// @Produce     json
// @Param       id  path  string  true  "Conversation ID (UUID)" format(uuid)
// @Success     200  {object} handlers.ConversationResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	conv, msgs, err := h.convSvc.Load(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ConversationResponse{Conversation: *conv, Messages: msgs})
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Tags        Conversations
// @Param       id  path  string  true  "Conversation ID (UUID)" format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	if err := h.convSvc.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ClearConversation godoc
// @ID          clearConversation
// @Summary     Reset a transcript
// @Description Removes all messages of a conversation without removing it from the index.
// @Tags        Conversations
// @Param       id  path  string  true  "Conversation ID (UUID)" format(uuid)
// @Success     204  {string} string "No Content"
// @Router      /conversations/{id}/clear [post]
func (h *Handlers) ClearConversation(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	if err := h.convSvc.Clear(c.Request.Context(), id); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// AppendMessage godoc
// @ID          appendMessage
// @Summary     Append an envelope to a transcript
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Conversation ID (UUID)" format(uuid)
// @Param       body  body  handlers.AppendMessageRequest  true  "Envelope payload"
// @Success     201  {object} domain.Message
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) AppendMessage(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleUser
	}

	msg, err := h.convSvc.Append(c.Request.Context(), id, domain.Message{
		ID:      strings.TrimSpace(req.ID),
		Role:    role,
		Content: req.Content,
		Meta:    req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRole),
			errors.Is(err, services.ErrEmptyContent),
			errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, msg)
}

// UpdateMessage godoc
// @ID          updateMessage
// @Summary     Merge fields into an envelope
// @Description Merges the given fields into the envelope with the same id. An unknown id is a silent no-op (204), matching streamed-update semantics.
// @Tags        Messages
// @Accept      json
// @Param       id   path  string  true  "Conversation ID (UUID)" format(uuid)
// @Param       mid  path  string  true  "Message ID (UUID)"      format(uuid)
// @Param       body body  handlers.UpdateMessageRequest  true  "Fields to merge"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /conversations/{id}/messages/{mid} [patch]
func (h *Handlers) UpdateMessage(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	mid, okMID := pathUUID(c, "mid")
	if !okMID {
		return
	}
	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.convSvc.UpdateMessage(c.Request.Context(), id, mid, repo.MessagePatch{
		Content: req.Content,
		Meta:    req.Metadata,
	}); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// Answer godoc
// @ID          answer
// @Summary     Ask the assistant a follow-up
// @Description Appends the prompt as a user envelope and a playbook-backed assistant reply, returning the reply.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Conversation ID (UUID)" format(uuid)
// @Param       body  body  handlers.AnswerRequest  true  "Prompt"
// @Success     201  {object} domain.Message
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/answer [post]
func (h *Handlers) Answer(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt required")
		return
	}
	msg, err := h.assistSvc.Answer(c.Request.Context(), id, req.Prompt)
	if err != nil {
		if errors.Is(err, services.ErrEmptyContent) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, msg)
}
