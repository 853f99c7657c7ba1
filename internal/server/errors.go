package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/attachment"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent/tools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/assembler"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/billing"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/pain"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// classify maps a domain error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, billing.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "insufficient_balance"
	case errors.Is(err, pain.ErrNotFound), errors.Is(err, chat.ErrNotFound),
		errors.Is(err, pain.ErrForbidden), errors.Is(err, chat.ErrForbidden):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pain.ErrResearchDisabled):
		return http.StatusServiceUnavailable, "research_disabled"
	case errors.Is(err, assembler.ErrPrecondition), errors.Is(err, pain.ErrNoQueries):
		return http.StatusConflict, "precondition_failed"
	case errors.Is(err, mode.ErrUnknownMode), errors.Is(err, agent.ErrMissingChat),
		errors.Is(err, memory.ErrMissingScope), errors.Is(err, memory.ErrStaticNotStored),
		errors.Is(err, tools.ErrDuplicateTool):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, tools.ErrUnknownTool), errors.Is(err, tools.ErrInvalidArguments):
		return http.StatusUnprocessableEntity, "tool_error"
	case errors.Is(err, attachment.ErrInjection):
		return http.StatusUnprocessableEntity, "untrusted_content"
	case errors.Is(err, llm.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request_failed")
	}
	writeError(w, status, code, err.Error())
}
