// internal/translation/json.go
package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"translator-back/internal/llm"
	"translator-back/internal/schema"
)

const (
	toolName  = "submit_translation"
	resultKey = "translation"

	jsonSystemPrompt = "You translate JSON documents. Translate only the string values, keep every key and the structure unchanged, " +
		"and answer by calling the provided function."
)

// PrepareJSON is Prepare for structured content. Content must hold a JSON
// document; the model is constrained to a schema with the same shape.
func (p *Pipeline) PrepareJSON(ctx context.Context, req Request) (*Turn, error) {
	turn, err := p.prepare(ctx, req, FormatJSON)
	if err != nil {
		p.fail(ctx, req, FormatJSON, "", err)
		return nil, err
	}
	return turn, nil
}

func (p *Pipeline) streamJSON(ctx context.Context, turn *Turn, relay llm.DeltaFunc) (string, any, error) {
	tool := llm.Tool{
		Name:        toolName,
		Description: "Return the translated document under \"" + resultKey + "\".",
		Parameters:  turn.schema,
	}
	args, err := p.provider.StreamTool(ctx, turn.messages, tool, relay)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	payload, _, err := decodeDocument(args)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	if err := schema.Validate(turn.schema, payload); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}

	translation := payload.(map[string]any)[resultKey]
	out, err := json.Marshal(translation)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	return string(out), translation, nil
}

// decodeDocument parses exactly one JSON value, keeping numbers exact, and
// returns it with its compact text.
func decodeDocument(text string) (any, string, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, "", err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, "", errors.New("unexpected data after the JSON value")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, "", err
	}
	return v, buf.String(), nil
}
