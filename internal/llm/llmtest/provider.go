// internal/llm/llmtest/provider.go

// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"translator-back/internal/llm"
)

// Provider replays Chunks for every streamed call and answers Complete
// calls from CompleteFunc (echoing the last message when nil). Calls are
// recorded for assertions.
type Provider struct {
	Chunks       []string
	ToolChunks   []string
	ReadyErr     error
	StreamErr    error // returned after all chunks are emitted
	CompleteFunc func(messages []llm.Message) (string, error)

	mu        sync.Mutex
	calls     [][]llm.Message
	tools     []llm.Tool
	completes [][]llm.Message
}

func (p *Provider) Ready() error { return p.ReadyErr }

func (p *Provider) StreamChat(ctx context.Context, messages []llm.Message, onDelta llm.DeltaFunc) (string, error) {
	p.record(messages, nil)
	return p.replay(ctx, p.Chunks, onDelta)
}

func (p *Provider) StreamTool(ctx context.Context, messages []llm.Message, tool llm.Tool, onDelta llm.DeltaFunc) (string, error) {
	p.record(messages, &tool)
	return p.replay(ctx, p.ToolChunks, onDelta)
}

func (p *Provider) Complete(_ context.Context, messages []llm.Message) (string, error) {
	p.mu.Lock()
	p.completes = append(p.completes, append([]llm.Message(nil), messages...))
	p.mu.Unlock()
	if p.CompleteFunc != nil {
		return p.CompleteFunc(messages)
	}
	if len(messages) == 0 {
		return "", llm.ErrEmptyResponse
	}
	return messages[len(messages)-1].Content, nil
}

// Calls returns the message lists passed to streamed calls.
func (p *Provider) Calls() [][]llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]llm.Message(nil), p.calls...)
}

// Tools returns the tools passed to StreamTool.
func (p *Provider) Tools() []llm.Tool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Tool(nil), p.tools...)
}

// Completes returns the message lists passed to Complete.
func (p *Provider) Completes() [][]llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]llm.Message(nil), p.completes...)
}

func (p *Provider) record(messages []llm.Message, tool *llm.Tool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]llm.Message(nil), messages...))
	if tool != nil {
		p.tools = append(p.tools, *tool)
	}
}

func (p *Provider) replay(ctx context.Context, chunks []string, onDelta llm.DeltaFunc) (string, error) {
	if p.ReadyErr != nil {
		return "", p.ReadyErr
	}
	var sb strings.Builder
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}
		sb.WriteString(c)
		if err := onDelta(c); err != nil {
			return sb.String(), err
		}
	}
	if p.StreamErr != nil {
		return sb.String(), p.StreamErr
	}
	return sb.String(), nil
}

var _ llm.Provider = (*Provider)(nil)
