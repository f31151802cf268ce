package dialogue

import (
	"context"

	"github.com/lexiqai/voice-assistant/internal/tools"
)

// Request is one completion call. Tools is empty when the model must answer
// in text.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []tools.Definition
}

// Response is the model's reply: text, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Completer is a chat completion service. Implementations do not retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
