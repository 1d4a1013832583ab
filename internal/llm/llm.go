// internal/llm/llm.go

// Package llm is the boundary to the language-model provider.
package llm

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	// ErrMissingCredential is returned before any network call when the
	// provider has no API key.
	ErrMissingCredential = errors.New("model provider credential is not configured")
	ErrEmptyResponse     = errors.New("model returned no content")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sampling settings shared by every call so repeated runs stay reproducible.
const (
	Temperature float32 = 0.2
	Seed                = 1
)

type Message struct {
	Role    string
	Content string
}

// Tool is a function the model is forced to call; its arguments are the
// structured answer.
type Tool struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// DeltaFunc receives each streamed fragment in arrival order. Returning an
// error stops the stream.
type DeltaFunc func(delta string) error

type Provider interface {
	// Ready reports configuration problems without touching the network.
	Ready() error
	// StreamChat streams a free-text completion and returns the full text.
	StreamChat(ctx context.Context, messages []Message, onDelta DeltaFunc) (string, error)
	// StreamTool streams the arguments of a forced tool call and returns
	// the concatenated argument JSON.
	StreamTool(ctx context.Context, messages []Message, tool Tool, onDelta DeltaFunc) (string, error)
	// Complete runs a non-streamed completion.
	Complete(ctx context.Context, messages []Message) (string, error)
}
