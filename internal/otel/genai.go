package otel

import "go.opentelemetry.io/otel/attribute"

// GenAI semantic convention keys used on provider spans.
const (
	GenAISystem               = attribute.Key("gen_ai.system")
	GenAIRequestModel         = attribute.Key("gen_ai.request.model")
	GenAIRequestTemperature   = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens     = attribute.Key("gen_ai.request.max_tokens")
	GenAIRequestToolCount     = attribute.Key("gen_ai.request.tool_count")
	GenAIUsageInputTokens     = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens    = attribute.Key("gen_ai.usage.output_tokens")
	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
	GenAIResponseToolCalls    = attribute.Key("gen_ai.response.tool_calls")
)

// Orchestration keys shared by the agent, assembler and stores.
const (
	CorrelationID = attribute.Key("hackseeker.correlation_id")
	UserID        = attribute.Key("hackseeker.user_id")
	ChatID        = attribute.Key("hackseeker.chat_id")
	Mode          = attribute.Key("hackseeker.mode")
	Iteration     = attribute.Key("hackseeker.iteration")
	ToolName      = attribute.Key("hackseeker.tool")
	MemoryKind    = attribute.Key("hackseeker.memory.kind")
	TokenBudget   = attribute.Key("hackseeker.token_budget")
)

// RunAttributes returns the attributes every run-scoped span carries.
func RunAttributes(correlationID, userID, chatID, mode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		CorrelationID.String(correlationID),
		UserID.String(userID),
		ChatID.String(chatID),
		Mode.String(mode),
	}
}
