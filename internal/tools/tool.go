// Package tools holds the functions the assistant can call during a
// conversation, each described by a JSON-schema style Definition.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ErrInvalidArguments is returned when a tool's arguments are missing or of
// the wrong type.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Parameter describes one argument of a tool.
type Parameter struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Definition is what the model sees of a tool.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]Parameter
	Required    []string
}

type schema struct {
	Type       string               `json:"type"`
	Properties map[string]Parameter `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// Schema returns the parameters as a JSON object schema.
func (d Definition) Schema() ([]byte, error) {
	properties := d.Parameters
	if properties == nil {
		properties = map[string]Parameter{}
	}
	return sonic.Marshal(schema{Type: "object", Properties: properties, Required: d.Required})
}

// Tool is a named capability the model can invoke.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Func adapts a plain function into a Tool.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, args map[string]any) (any, error)
}

// Definition returns the tool's definition.
func (f *Func) Definition() Definition {
	return f.Def
}

// Invoke calls Fn.
func (f *Func) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}

// DecodeArguments parses a model-provided JSON argument string. An empty
// string is treated as no arguments.
func DecodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := sonic.UnmarshalString(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// EncodeResult renders a tool result as the JSON content of a tool message.
func EncodeResult(result any) (string, error) {
	return sonic.MarshalString(result)
}

// StringArg returns a non-empty string argument.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// FloatArg returns a numeric argument. Numbers sent as strings are accepted.
func FloatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
