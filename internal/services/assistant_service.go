// Package services – AssistantService
//
// This file implements AssistantService, which answers free-text follow-ups
// (including the prompts synthesized by quick-action buttons) from the
// marketing playbook. The user prompt and the assistant reply are appended to
// the transcript as a pair; replies come from keyword retrieval over the
// advisor index, with a fixed fallback when nothing scores above threshold.
package services

import (
	"context"
	"strings"

	"github.com/marketlens/go-insight-backend/internal/advisor"
	"github.com/marketlens/go-insight-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// fallbackReply is used when the playbook has nothing relevant to say.
const fallbackReply = "I don't have a playbook entry for that yet. " +
	"Try asking about one of the quick wins from your last analysis."

// AssistantService turns user prompts into playbook-backed replies.
type AssistantService struct {
	Sink  MessageSink
	Index advisor.Index

	// Threshold is the minimum retrieval score for a playbook answer; below
	// it the fallback reply is used. Zero means any overlap qualifies.
	Threshold float64

	// Hub receives the assistant reply for live streaming. Optional.
	Hub Broadcaster
}

// Answer appends the user prompt and an assistant reply to the conversation.
// The reply is the best-matching playbook entry, or the fallback when the
// playbook is silent. Both envelopes are persisted through the sink; the
// reply is returned.
func (s *AssistantService) Answer(ctx context.Context, conversationID, prompt string) (*domain.Message, error) {
	tr := otel.Tracer("services/AssistantService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyContent
	}

	if _, err := s.Sink.Append(ctx, conversationID, domain.Message{
		Role:    domain.RoleUser,
		Content: prompt,
	}); err != nil {
		return nil, err
	}

	reply := s.retrieve(prompt)
	msg, err := s.Sink.Append(ctx, conversationID, domain.Message{
		Role:    domain.RoleAssistant,
		Content: reply,
	})
	if err != nil {
		return nil, err
	}
	if s.Hub != nil {
		s.Hub.Broadcast(conversationID, msg)
	}
	return msg, nil
}

// retrieve picks the best playbook entry for the prompt.
func (s *AssistantService) retrieve(prompt string) string {
	if s.Index == nil {
		return fallbackReply
	}
	results := s.Index.TopK(prompt, 1)
	if len(results) == 0 || results[0].Score < s.Threshold {
		return fallbackReply
	}
	return results[0].Advice
}
