package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

type sseChunk struct {
	Text  string `json:"text"`
	MsgID string `json:"msgId"`
}

// handleChatSSE streams a chat run as server-sent events: one data event
// per chunk, then "done" (or "error"). A client disconnect cancels the run;
// the delivered text is still persisted and charged once.
func (s *Server) handleChatSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}
	cmd, err := chatCommand(r, r.URL.Query().Get("mode"), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	stream, err := s.runner.RunStream(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			writeEvent(w, "done", map[string]string{"msgId": stream.MessageID})
			flusher.Flush()
			return
		}
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			status, code := classify(err)
			log.Warn().Err(err).Int("status", status).Str("correlation_id", stream.CorrelationID).Msg("sse_stream_failed")
			writeEvent(w, "error", map[string]string{"error": code, "message": err.Error(), "msgId": stream.MessageID})
			flusher.Flush()
			return
		}
		writeEvent(w, "", sseChunk{Text: chunk, MsgID: stream.MessageID})
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
}
