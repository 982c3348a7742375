// Package services – AnalysisService
//
// This file implements AnalysisService, the state machine around one domain
// audit. It creates the analysis in the pending state, acknowledges the
// submission with one assistant envelope, launches the engine, and translates
// each engine event into exactly one transcript envelope: progress events
// update a single stable assistant envelope in place (so the transcript shows
// one progress card, not a pile of them), completion appends a final envelope
// carrying the revenue card, quick wins, and quick actions, and failure
// appends one user-visible error envelope. A completed run therefore leaves
// three assistant envelopes: acknowledgment, progress card, final report.
// Terminal analyses ignore any further events; retries are the engine's
// business, not ours.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/marketlens/go-insight-backend/internal/domain"
	"github.com/marketlens/go-insight-backend/internal/engine"
	"github.com/marketlens/go-insight-backend/internal/http/middleware"
	"github.com/marketlens/go-insight-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageSink is the transcript surface the analysis session writes through.
// *ConversationService satisfies it.
type MessageSink interface {
	Append(ctx context.Context, conversationID string, msg domain.Message) (*domain.Message, error)
	UpdateMessage(ctx context.Context, conversationID, messageID string, patch repo.MessagePatch) error
}

// Broadcaster pushes envelopes to live streaming subscribers. The WebSocket
// hub implements it; a nil Broadcaster means persist-only operation.
type Broadcaster interface {
	Broadcast(conversationID string, msg *domain.Message)
}

// AnalysisEngine produces the ordered event stream of one audit run.
type AnalysisEngine interface {
	Run(ctx context.Context, auditDomain string) <-chan engine.Event
}

// AnalysisService owns analysis lifecycles and their transcript envelopes.
type AnalysisService struct {
	DB     *gorm.DB
	Engine AnalysisEngine
	Sink   MessageSink

	// Hub receives every envelope the session writes, for live streaming.
	// Optional.
	Hub Broadcaster
}

// NewAnalysisService constructs an AnalysisService.
func NewAnalysisService(db *gorm.DB, eng AnalysisEngine, sink MessageSink) *AnalysisService {
	return &AnalysisService{DB: db, Engine: eng, Sink: sink}
}

// Start validates the request, records a pending analysis, and launches the
// engine. The returned analysis is still pending; envelopes stream into the
// conversation as the run progresses.
//
// The run consumes events on the calling goroutine when wait is true (tests,
// synchronous callers) or on a background goroutine otherwise.
func (s *AnalysisService) Start(ctx context.Context, conversationID, auditDomain string, wait bool) (*domain.Analysis, error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("analysis.domain", auditDomain),
		),
	)
	defer span.End()

	auditDomain = strings.TrimSpace(strings.ToLower(auditDomain))
	if auditDomain == "" {
		return nil, ErrEmptyDomain
	}

	a, err := repo.CreateAnalysis(ctx, s.DB, conversationID, auditDomain)
	if err != nil {
		return nil, err
	}

	// Acknowledge the submission while the analysis is still pending, so the
	// transcript reflects every state the run passes through.
	ack, err := s.Sink.Append(ctx, conversationID, domain.Message{
		Role:    domain.RoleAssistant,
		Content: fmt.Sprintf("Starting analysis of %s…", auditDomain),
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(conversationID, ack)

	sess := &analysisSession{
		svc:            s,
		analysisID:     a.ID,
		conversationID: conversationID,
		auditDomain:    auditDomain,
		progressMsgID:  uuid.NewString(),
	}

	if wait {
		sess.run(ctx)
	} else {
		// Detach from the request context: the audit outlives the HTTP call
		// that started it.
		go sess.run(context.WithoutCancel(ctx))
	}
	return a, nil
}

// Get returns one analysis by id.
func (s *AnalysisService) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	a, err := repo.GetAnalysis(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, err
	}
	return a, nil
}

// List returns the analyses attached to a conversation, newest first.
func (s *AnalysisService) List(ctx context.Context, conversationID string) ([]domain.Analysis, error) {
	return repo.ListAnalyses(ctx, s.DB, conversationID)
}

// analysisSession tracks one run: the stable progress envelope id and whether
// the progress envelope has been appended yet.
type analysisSession struct {
	svc            *AnalysisService
	analysisID     string
	conversationID string
	auditDomain    string

	progressMsgID   string
	progressWritten bool
	finished        bool
}

// run consumes the engine's event stream in order. Events arriving after a
// terminal event are dropped. When applying an event fails, the session logs
// the error, makes a best-effort transition to failed (an analysis must never
// sit in a non-terminal state after its run ends), and keeps draining the
// channel without translating further events.
func (ss *analysisSession) run(ctx context.Context) {
	for ev := range ss.svc.Engine.Run(ctx, ss.auditDomain) {
		if ss.finished {
			continue
		}
		if err := ss.apply(ctx, ev); err != nil {
			log.Error().Err(err).
				Str("analysis_id", ss.analysisID).
				Str("conversation_id", ss.conversationID).
				Msg("applying analysis event failed")
			ss.finished = true
			if ferr := ss.applyFailed(ctx, engine.Event{Status: domain.StatusFailed}); ferr != nil {
				log.Error().Err(ferr).
					Str("analysis_id", ss.analysisID).
					Msg("marking broken analysis failed")
			}
		}
	}
}

// apply translates one engine event into one envelope mutation.
func (ss *analysisSession) apply(ctx context.Context, ev engine.Event) error {
	switch ev.Status {
	case domain.StatusAnalyzing:
		return ss.applyProgress(ctx, ev)
	case domain.StatusCompleted:
		ss.finished = true
		return ss.applyCompleted(ctx, ev)
	case domain.StatusFailed:
		ss.finished = true
		return ss.applyFailed(ctx, ev)
	default:
		return fmt.Errorf("analysis %s: unexpected event status %q", ss.analysisID, ev.Status)
	}
}

// applyProgress appends the progress envelope on the first event and updates
// it in place afterwards, keyed by the session's stable envelope id.
func (ss *analysisSession) applyProgress(ctx context.Context, ev engine.Event) error {
	if !ss.progressWritten {
		if err := repo.TransitionAnalysis(ctx, ss.svc.DB, ss.analysisID, domain.StatusAnalyzing, nil); err != nil {
			return err
		}
	}
	if err := repo.SetAnalysisProgress(ctx, ss.svc.DB, ss.analysisID, ev.Progress); err != nil {
		return err
	}

	p := ev.Progress
	content := ev.Message
	if content == "" {
		content = fmt.Sprintf("Analyzing %s…", ss.auditDomain)
	}
	meta := &domain.Meta{Type: domain.MetaProgress, Progress: &p}

	if !ss.progressWritten {
		msg, err := ss.svc.Sink.Append(ctx, ss.conversationID, domain.Message{
			ID:      ss.progressMsgID,
			Role:    domain.RoleAssistant,
			Content: content,
			Meta:    meta,
		})
		if err != nil {
			return err
		}
		ss.progressWritten = true
		ss.svc.broadcast(ss.conversationID, msg)
		return nil
	}

	if err := ss.svc.Sink.UpdateMessage(ctx, ss.conversationID, ss.progressMsgID, repo.MessagePatch{
		Content: &content,
		Meta:    meta,
	}); err != nil {
		return err
	}
	ss.svc.broadcast(ss.conversationID, &domain.Message{
		ID:             ss.progressMsgID,
		ConversationID: ss.conversationID,
		Role:           domain.RoleAssistant,
		Content:        content,
		Meta:           meta,
	})
	return nil
}

// applyCompleted transitions to completed and appends the single final
// envelope with the revenue card, ranked quick wins, and follow-up actions.
func (ss *analysisSession) applyCompleted(ctx context.Context, ev engine.Event) error {
	if err := repo.TransitionAnalysis(ctx, ss.svc.DB, ss.analysisID, domain.StatusCompleted, ev.Results); err != nil {
		return err
	}
	middleware.AnalysisFinished(domain.StatusCompleted)

	meta := &domain.Meta{
		Type:        domain.MetaAnalysisResult,
		RevenueCard: ev.Revenue,
	}
	if ev.Results != nil {
		meta.QuickWins = ev.Results.QuickWins
	}
	meta.QuickActions = ss.quickActions(ev)

	content := ev.Message
	if content == "" {
		content = fmt.Sprintf("Analysis of %s is complete.", ss.auditDomain)
	}

	msg, err := ss.svc.Sink.Append(ctx, ss.conversationID, domain.Message{
		Role:    domain.RoleAssistant,
		Content: content,
		Meta:    meta,
	})
	if err != nil {
		return err
	}
	ss.svc.broadcast(ss.conversationID, msg)
	return nil
}

// applyFailed transitions to failed and appends one explanatory envelope.
// No retry happens here.
func (ss *analysisSession) applyFailed(ctx context.Context, ev engine.Event) error {
	if err := repo.TransitionAnalysis(ctx, ss.svc.DB, ss.analysisID, domain.StatusFailed, nil); err != nil {
		return err
	}
	middleware.AnalysisFinished(domain.StatusFailed)
	content := ev.Message
	if content == "" {
		content = fmt.Sprintf("The analysis of %s failed. Please try again later.", ss.auditDomain)
	}
	msg, err := ss.svc.Sink.Append(ctx, ss.conversationID, domain.Message{
		Role:    domain.RoleAssistant,
		Content: content,
		Meta:    &domain.Meta{Type: domain.MetaError},
	})
	if err != nil {
		return err
	}
	ss.svc.broadcast(ss.conversationID, msg)
	return nil
}

// quickActions builds the follow-up prompt buttons for a completed audit.
// Invoking one synthesizes a user message whose content is the action string.
func (ss *analysisSession) quickActions(ev engine.Event) []domain.QuickAction {
	actions := []domain.QuickAction{}
	if ev.Revenue != nil && ev.Revenue.BiggestIssue != "" {
		actions = append(actions, domain.QuickAction{
			Label:  "Fix the biggest issue",
			Action: fmt.Sprintf("How do I fix %s?", ev.Revenue.BiggestIssue),
		})
	}
	if ev.Results != nil && len(ev.Results.QuickWins) > 0 {
		actions = append(actions, domain.QuickAction{
			Label:  "Walk me through the quick wins",
			Action: "Walk me through the quick wins step by step",
		})
	}
	actions = append(actions, domain.QuickAction{
		Label:  "Analyze another domain",
		Action: "I want to analyze another domain",
	})
	return actions
}

// broadcast forwards an envelope to live subscribers when a hub is attached.
func (s *AnalysisService) broadcast(conversationID string, msg *domain.Message) {
	if s.Hub != nil && msg != nil {
		s.Hub.Broadcast(conversationID, msg)
	}
}
