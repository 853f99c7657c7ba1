package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/pain"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/requestctx"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type runRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

// chatCommand builds a run command for a chat mode. Document modes have
// their own endpoints.
func chatCommand(r *http.Request, modeName, query string) (agent.Command, error) {
	m, err := mode.Parse(modeName, "")
	if err != nil {
		return agent.Command{}, err
	}
	if n := m.Name(); n != mode.NameDiscovery && n != mode.NameValidation {
		return agent.Command{}, fmt.Errorf("%w: %s is not a chat mode", mode.ErrUnknownMode, n)
	}
	return agent.Command{
		Mode:   m,
		UserID: requestctx.UserID(r.Context()),
		ChatID: chi.URLParam(r, "chatID"),
		Query:  query,
	}, nil
}

func (s *Server) handleChatRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	cmd, err := chatCommand(r, req.Mode, req.Query)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":          res.Text,
		"msgId":         res.MessageID,
		"correlationId": res.CorrelationID,
		"iterations":    res.Iterations,
	})
}

func (s *Server) handleChatList(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.ListByUser(r.Context(), requestctx.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// ownedChat loads the route's chat and checks it belongs to the caller.
func (s *Server) ownedChat(r *http.Request) (*chat.Chat, error) {
	c, err := s.chats.Get(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		return nil, err
	}
	if c.UserID != requestctx.UserID(r.Context()) {
		return nil, chat.ErrForbidden
	}
	return c, nil
}

func (s *Server) handleMessageList(w http.ResponseWriter, r *http.Request) {
	c, err := s.ownedChat(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	msgs, err := s.chats.Messages(r.Context(), c.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handlePainList(w http.ResponseWriter, r *http.Request) {
	c, err := s.ownedChat(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	drafts, err := s.pains.Store().ListByChat(r.Context(), c.ID, pain.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pains": drafts})
}

func (s *Server) handlePainGet(w http.ResponseWriter, r *http.Request) {
	d, err := s.pains.Store().GetOwned(r.Context(), requestctx.UserID(r.Context()), chi.URLParam(r, "painID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleStartValidation(w http.ResponseWriter, r *http.Request) {
	d, err := s.pains.StartValidation(r.Context(), requestctx.UserID(r.Context()), chi.URLParam(r, "painID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGenerate(doc pain.Document) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
		defer cancel()
		d, err := s.runner.Generate(ctx, requestctx.UserID(r.Context()), chi.URLParam(r, "painID"), doc)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (s *Server) handleAddArtifact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	it, err := s.pains.AddArtifact(r.Context(), requestctx.UserID(r.Context()), chi.URLParam(r, "painID"), req.Content)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// handleSearchArtifacts runs a draft's research queries, all of them unless
// the body selects some by index.
func (s *Server) handleSearchArtifacts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Queries []int `json:"queries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()
	items, err := s.pains.SearchArtifacts(ctx, requestctx.UserID(r.Context()), chi.URLParam(r, "painID"), req.Queries)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": items, "count": len(items)})
}

// landingCSP keeps a published landing page from loading scripts or
// posting anywhere.
const landingCSP = "default-src 'none'; style-src 'unsafe-inline'; img-src https: data:; form-action 'none'; frame-ancestors 'none'"

// handleLandingPage publishes a draft's generated landing page without
// authentication.
func (s *Server) handleLandingPage(w http.ResponseWriter, r *http.Request) {
	d, err := s.pains.Store().Get(r.Context(), chi.URLParam(r, "painID"))
	if err != nil || d.Landing == "" {
		if err != nil && !errors.Is(err, pain.ErrNotFound) {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("landing_page_failed")
		}
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", landingCSP)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, d.Landing)
}

// handleMemorySearch searches one memory kind inside a token budget. Event
// memory needs chat_id, artifact memory needs pain_id; both must belong to
// the caller.
func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestctx.UserID(ctx)
	q := r.URL.Query()
	kind := memory.Kind(q.Get("kind"))
	if kind == "" {
		kind = memory.KindProfile
	}
	tokens, _ := strconv.Atoi(q.Get("tokens"))
	if tokens <= 0 {
		tokens = budget.DefaultToolMemoryTokens
	}

	scope := memory.Scope{UserID: userID}
	switch kind {
	case memory.KindEvent:
		chatID := q.Get("chat_id")
		c, err := s.chats.Get(ctx, chatID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if c.UserID != userID {
			writeDomainError(w, r, chat.ErrForbidden)
			return
		}
		scope = memory.Scope{ChatID: c.ID}
	case memory.KindArtifact:
		d, err := s.pains.Store().GetOwned(ctx, userID, q.Get("pain_id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		scope = memory.Scope{UserID: userID, PainID: d.ID}
	}

	items, err := s.memory.Search(ctx, kind, q.Get("q"), tokens, scope)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "tokens": budget.Total(items, memory.Cost)})
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserID(r.Context())
	balance, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.ledger.Entries(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance, "entries": entries})
}
