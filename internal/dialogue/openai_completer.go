package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// ErrNoChoices is returned when the service answers without a choice.
var ErrNoChoices = errors.New("completion returned no choices")

// OpenAICompleter calls the OpenAI chat completions API.
type OpenAICompleter struct {
	client         *openai.Client
	model          string
	temperature    float32
	logger         zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// NewOpenAICompleter creates a completer from cfg.
func NewOpenAICompleter(cfg *config.Config, logger zerolog.Logger) *OpenAICompleter {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.LLMModel,
		temperature: cfg.LLMTemperature,
		logger:      logger.With().Str("component", "completer").Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			"llm",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Complete sends the system prompt and history and returns the first choice.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (Response, error) {
	chatReq, err := c.buildRequest(req)
	if err != nil {
		return Response{}, err
	}

	var resp openai.ChatCompletionResponse
	err = c.circuitBreaker.Call(func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})

	observability.UpdateCircuitBreakerState("llm", int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("llm")
		return Response{}, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, ErrNoChoices
	}

	msg := resp.Choices[0].Message
	out := Response{Content: msg.Content}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	c.logger.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Int("tool_calls", len(out.ToolCalls)).
		Msg("Completion received")

	return out, nil
}

func (c *OpenAICompleter) buildRequest(req Request) (openai.ChatCompletionRequest, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		messages = append(messages, msg)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}

	for _, def := range req.Tools {
		schema, err := def.Schema()
		if err != nil {
			return openai.ChatCompletionRequest{}, fmt.Errorf("failed to encode schema for %s: %w", def.Name, err)
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(schema),
			},
		})
	}
	if len(chatReq.Tools) > 0 {
		chatReq.ToolChoice = "auto"
	}

	return chatReq, nil
}
