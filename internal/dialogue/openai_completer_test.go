package dialogue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/tools"
)

func TestOpenAICompleter_Complete(t *testing.T) {
	var body map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(raw, &body); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "get_weather", "arguments": "{\"location\":\"Berlin\"}"}}]
			}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	cfg := &config.Config{
		OpenAIAPIKey:               "sk-test",
		OpenAIBaseURL:              server.URL,
		LLMModel:                   "gpt-4o-mini",
		LLMTemperature:             0.7,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
	}
	completer := NewOpenAICompleter(cfg, zerolog.Nop())

	resp, err := completer.Complete(context.Background(), Request{
		SystemPrompt: "You are Bix.",
		Messages:     []Message{{Role: RoleUser, Content: "Weather in Berlin?"}},
		Tools: []tools.Definition{{
			Name:        "get_weather",
			Description: "Get the weather forecast for a location.",
			Parameters:  map[string]tools.Parameter{"location": {Type: "string"}},
		}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "get_weather" || call.Arguments != `{"location":"Berlin"}` {
		t.Errorf("Unexpected tool call %+v", call)
	}

	if body["model"] != "gpt-4o-mini" || body["tool_choice"] != "auto" {
		t.Errorf("Unexpected request %v", body)
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("Expected system and user messages, got %d", len(messages))
	}
	system, _ := messages[0].(map[string]any)
	if system["role"] != "system" || system["content"] != "You are Bix." {
		t.Errorf("Unexpected system message %v", system)
	}
	toolList, _ := body["tools"].([]any)
	if len(toolList) != 1 {
		t.Fatalf("Expected 1 tool, got %d", len(toolList))
	}
	fn := toolList[0].(map[string]any)["function"].(map[string]any)
	params, _ := fn["parameters"].(map[string]any)
	if params["type"] != "object" {
		t.Errorf("Expected object parameters, got %v", fn["parameters"])
	}
}

func TestOpenAICompleter_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "chatcmpl-1", "choices": []}`))
	}))
	defer server.Close()

	cfg := &config.Config{OpenAIAPIKey: "sk-test", OpenAIBaseURL: server.URL, LLMModel: "gpt-4o-mini", CircuitBreakerMaxFailures: 5}
	completer := NewOpenAICompleter(cfg, zerolog.Nop())

	if _, err := completer.Complete(context.Background(), Request{}); err != ErrNoChoices {
		t.Errorf("Expected ErrNoChoices, got %v", err)
	}
}
