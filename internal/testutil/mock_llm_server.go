package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// NewOpenAICompatibleServer starts an httptest.Server answering
// POST /v1/chat/completions. Plain requests get content as one JSON answer;
// streaming requests get content split on spaces as SSE deltas. Callers
// must Close the server.
func NewOpenAICompatibleServer(content string) *httptest.Server {
	if content == "" {
		content = "mock response"
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSuffix(r.URL.Path, "/") != "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Stream {
			writeStream(w, req.Model, content)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		})
	})
	return httptest.NewServer(handler)
}

func writeStream(w http.ResponseWriter, model, content string) {
	w.Header().Set("Content-Type", "text/event-stream")
	words := strings.SplitAfter(content, " ")
	for _, word := range words {
		chunk := openai.ChatCompletionStreamResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion.chunk",
			Model:  model,
			Choices: []openai.ChatCompletionStreamChoice{{
				Delta: openai.ChatCompletionStreamChoiceDelta{Content: word},
			}},
		}
		b, _ := json.Marshal(chunk)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
}
