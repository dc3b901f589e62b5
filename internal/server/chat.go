package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentrail/core/internal/chatrouter"
	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/eventbus"
)

type postMessageRequest struct {
	Content string `json:"content"`
}

// handlePostMessage appends a user message to a conversation, runs it
// through the chat router for a possible agent handoff, and publishes a
// chat.message event for live subscribers. It does not itself produce an
// assistant reply — that's a workflow/agent-runtime concern triggered by
// the published event, out of this handler's scope.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	conversationID := chi.URLParam(r, "conversationID")

	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindConfig, "decode request body", err))
		return
	}
	if req.Content == "" {
		writeError(w, errs.New(errs.KindMissingInput, "content is required"))
		return
	}

	conv, err := s.Conversations.GetConversation(r.Context(), tenantID, conversationID)
	if err != nil {
		writeError(w, err)
		return
	}

	msg := &domain.Message{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        req.Content,
		AgentID:        conv.ActiveAgentID,
		CreatedAt:      time.Now(),
	}

	if router := s.tenantChatRouter(r.Context(), tenantID); router != nil {
		if handoff, ok := router.Route(req.Content, conv.ActiveAgentID); ok {
			msg.HandoffFrom = conv.ActiveAgentID
			if err := s.Conversations.SetActiveAgent(r.Context(), tenantID, conversationID, handoff.ToAgentID); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	if err := s.Conversations.AppendMessage(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}

	_ = s.Bus.Publish(r.Context(), eventbus.Event{
		Type: eventbus.TypeChatMessage, TenantID: tenantID,
		Data: map[string]any{"conversation_id": conversationID, "message": msg},
	})

	writeJSON(w, http.StatusCreated, msg)
}

// tenantChatRouter builds a handoff router from the tenant's own agent
// bundles (each agent's HandoffKeywords becomes one rule). Agents are
// looked up fresh per call rather than cached on Server, since the rule
// set is cheap to build and agent bundles can change between messages.
// Falls back to s.ChatRouter (a fixed rule set, useful in tests that don't
// wire an Agents store) when no Agents store is set.
func (s *Server) tenantChatRouter(ctx context.Context, tenantID string) *chatrouter.Router {
	if s.Agents == nil {
		return s.ChatRouter
	}

	agents, err := s.Agents.ListAgents(ctx, tenantID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("list agents for chat routing failed", "tenant_id", tenantID, "error", err)
		}
		return s.ChatRouter
	}

	var rules []chatrouter.Rule
	for _, a := range agents {
		if len(a.HandoffKeywords) == 0 {
			continue
		}
		rules = append(rules, chatrouter.Rule{
			AgentID:     a.ID,
			Keywords:    a.HandoffKeywords,
			Description: a.Description,
		})
	}
	if len(rules) == 0 {
		return nil
	}
	return chatrouter.NewRouter(rules)
}
