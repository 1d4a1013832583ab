// internal/llm/openai.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAIClient never fails; a missing key is reported by Ready so the
// server can start and answer translation requests with a configuration
// error.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("OPENAI_MODEL not set, defaulting", "model", model)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if apiKey == "" {
		slog.Warn("OPENAI_API_KEY not set, translation requests will fail")
	}
	slog.Info("initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		apiKey: apiKey,
	}
}

func (o *OpenAIClient) Ready() error {
	if o.apiKey == "" {
		return ErrMissingCredential
	}
	return nil
}

func (o *OpenAIClient) StreamChat(ctx context.Context, messages []Message, onDelta DeltaFunc) (string, error) {
	if err := o.Ready(); err != nil {
		return "", err
	}
	req := o.request(messages)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI stream failed to start: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), fmt.Errorf("OpenAI stream read failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return sb.String(), err
		}
	}
	return sb.String(), nil
}

func (o *OpenAIClient) StreamTool(ctx context.Context, messages []Message, tool Tool, onDelta DeltaFunc) (string, error) {
	if err := o.Ready(); err != nil {
		return "", err
	}
	req := o.request(messages)
	req.Stream = true
	req.Tools = []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		},
	}}
	req.ToolChoice = openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: tool.Name},
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI stream failed to start: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), fmt.Errorf("OpenAI stream read failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		for _, call := range resp.Choices[0].Delta.ToolCalls {
			// Only the first call carries the answer.
			if call.Index != nil && *call.Index != 0 {
				continue
			}
			delta := call.Function.Arguments
			if delta == "" {
				continue
			}
			sb.WriteString(delta)
			if err := onDelta(delta); err != nil {
				return sb.String(), err
			}
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func (o *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := o.Ready(); err != nil {
		return "", err
	}
	resp, err := o.client.CreateChatCompletion(ctx, o.request(messages))
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	slog.Debug("received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAIClient) request(messages []Message) openai.ChatCompletionRequest {
	seed := Seed
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: Temperature,
		Seed:        &seed,
	}
}

var _ Provider = (*OpenAIClient)(nil)
