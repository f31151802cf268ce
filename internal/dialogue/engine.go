// Package dialogue keeps the conversation and turns a user utterance into the
// assistant's reply, running any tools the model asks for on the way.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/tools"
)

// Replies spoken in place of an answer when the model calls a tool wrongly.
const (
	ToolNotFoundReply     = "Function not found."
	InvalidArgumentsReply = "Invalid function arguments."
)

// ClearHistoryTool is the built-in tool that forgets the conversation.
const ClearHistoryTool = "clear_conversation_history"

const clearedResult = "Function executed."

// Engine owns the conversation history of one session.
type Engine struct {
	completer     Completer
	registry      *tools.Registry
	settings      config.SettingsProvider
	history       *History
	maxToolRounds int
	logger        zerolog.Logger
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTools registers additional tools after the built-in ones.
func WithTools(extra ...tools.Tool) Option {
	return func(e *Engine) {
		for _, tool := range extra {
			if tool == nil {
				continue
			}
			if err := e.registry.Register(tool); err != nil {
				e.logger.Warn().Err(err).Msg("Skipping tool")
			}
		}
	}
}

// WithMaxToolRounds sets how many consecutive rounds of tool calls one turn
// may resolve. Follow-up requests stop offering tools once it is reached.
func WithMaxToolRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxToolRounds = n
		}
	}
}

// WithClock replaces time.Now in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine with an empty history.
func NewEngine(completer Completer, settings config.SettingsProvider, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		completer:     completer,
		settings:      settings,
		history:       NewHistory(),
		maxToolRounds: 1,
		logger:        logger.With().Str("component", "dialogue").Logger(),
		now:           time.Now,
	}

	// Fresh registry, so registering the built-in cannot fail
	e.registry, _ = tools.NewRegistry(&tools.Func{
		Def: tools.Definition{
			Name:        ClearHistoryTool,
			Description: "Clear the entire conversation history.",
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			e.history.Clear()
			return true, nil
		},
	})

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// History returns a copy of the conversation.
func (e *Engine) History() []Message {
	return e.history.Messages()
}

// Tools returns the registered tool names.
func (e *Engine) Tools() []string {
	return e.registry.Names()
}

// SystemPrompt builds the prompt from the current settings and time.
func (e *Engine) SystemPrompt() string {
	prompt := e.settings.Current().SystemPrompt
	return prompt + "\nCurrent date and time: " + e.now().Format("2006-01-02 15:04:05")
}

// Respond adds text to the conversation and returns the assistant's reply.
// A completion failure returns an error and leaves the history as it was
// before the call.
func (e *Engine) Respond(ctx context.Context, text string) (string, error) {
	turnStart := e.history.Len()
	e.history.Append(Message{Role: RoleUser, Content: text})

	resp, err := e.complete(ctx, e.history, true)
	if err != nil {
		e.history.Truncate(turnStart)
		return "", err
	}

	if len(resp.ToolCalls) == 0 {
		e.history.Append(Message{Role: RoleAssistant, Content: resp.Content})
		e.logger.Info().Str("response", resp.Content).Msg("Response")
		return resp.Content, nil
	}

	reply, err := e.resolveToolCalls(ctx, resp)
	if err != nil {
		// A clear_conversation_history call may already have emptied it
		if e.history.Len() > turnStart {
			e.history.Truncate(turnStart)
		}
		return "", err
	}
	return reply, nil
}

// resolveToolCalls runs the requested tools and asks the model for a follow-up.
// Every call of a response is executed in order and one follow-up is issued
// after the last, so the reply answers the last-processed call with all
// results in view. Exactly one follow-up is issued per round, never one per
// call.
func (e *Engine) resolveToolCalls(ctx context.Context, resp Response) (string, error) {
	conv := e.history

	for round := 1; ; round++ {
		e.logger.Info().Int("round", round).Int("tool_calls", len(resp.ToolCalls)).Msg("Resolving tool calls")

		mark := conv.Len()
		conv.Append(Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			tool, ok := e.registry.Lookup(call.Name)
			if !ok {
				e.logger.Warn().Str("tool", call.Name).Msg("Function not found")
				observability.RecordToolCall(call.Name, "not_found")
				return e.abortToolCalls(conv, mark, ToolNotFoundReply), nil
			}

			args, err := tools.DecodeArguments(call.Arguments)
			if err != nil {
				e.logger.Warn().Err(err).Str("tool", call.Name).Msg("Invalid function arguments")
				observability.RecordToolCall(call.Name, "invalid_arguments")
				return e.abortToolCalls(conv, mark, InvalidArgumentsReply), nil
			}

			if call.Name == ClearHistoryTool {
				// The follow-up still needs the context being forgotten
				snapshot := conv.Clone()
				if _, err := tool.Invoke(ctx, args); err != nil {
					return "", fmt.Errorf("failed to clear history: %w", err)
				}
				snapshot.Append(Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name, Content: clearedResult})
				conv = snapshot
				observability.RecordToolCall(call.Name, "success")
				e.logger.Info().Msg("Conversation history cleared")
				continue
			}

			e.logger.Info().Str("tool", call.Name).Str("arguments", call.Arguments).Msg("Executing function")
			content, err := e.invoke(ctx, tool, args)
			if errors.Is(err, tools.ErrInvalidArguments) {
				e.logger.Warn().Err(err).Str("tool", call.Name).Msg("Invalid function arguments")
				observability.RecordToolCall(call.Name, "invalid_arguments")
				return e.abortToolCalls(conv, mark, InvalidArgumentsReply), nil
			}
			conv.Append(Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name, Content: content})
		}

		withTools := round < e.maxToolRounds
		followUp, err := e.complete(ctx, conv, withTools)
		if err != nil {
			return "", err
		}

		if len(followUp.ToolCalls) > 0 && withTools {
			resp = followUp
			continue
		}
		if len(followUp.ToolCalls) > 0 {
			e.logger.Warn().Int("tool_calls", len(followUp.ToolCalls)).Msg("Ignoring tool calls past the round limit")
		}

		if conv == e.history {
			e.history.Append(Message{Role: RoleAssistant, Content: followUp.Content})
		}
		e.logger.Info().Str("response", followUp.Content).Msg("Response")
		return followUp.Content, nil
	}
}

// invoke runs tool and encodes its result. Tool failures other than bad
// arguments are reported to the model as an error object.
func (e *Engine) invoke(ctx context.Context, tool tools.Tool, args map[string]any) (string, error) {
	name := tool.Definition().Name

	result, err := tool.Invoke(ctx, args)
	if errors.Is(err, tools.ErrInvalidArguments) {
		return "", err
	}
	if err != nil {
		e.logger.Error().Err(err).Str("tool", name).Msg("Function failed")
		observability.RecordToolCall(name, "error")
		result = map[string]string{"error": err.Error()}
	} else {
		observability.RecordToolCall(name, "success")
	}

	content, err := tools.EncodeResult(result)
	if err != nil {
		e.logger.Error().Err(err).Str("tool", name).Msg("Failed to encode function result")
		content = `{"error": "unencodable result"}`
	}
	return content, nil
}

// abortToolCalls drops the unanswered tool-call message and records reply as
// the assistant's answer in the live history.
func (e *Engine) abortToolCalls(conv *History, mark int, reply string) string {
	if conv == e.history {
		e.history.Truncate(mark)
		e.history.Append(Message{Role: RoleAssistant, Content: reply})
	}
	return reply
}

func (e *Engine) complete(ctx context.Context, conv *History, withTools bool) (Response, error) {
	req := Request{
		SystemPrompt: e.SystemPrompt(),
		Messages:     conv.Messages(),
	}
	if withTools {
		req.Tools = e.registry.Definitions()
	}
	return e.completer.Complete(ctx, req)
}
