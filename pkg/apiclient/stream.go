// pkg/apiclient/stream.go
package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Trailers and statuses of the text stream.
const (
	TrailerStatus     = "X-Translation-Status"
	TrailerJobID      = "X-Translation-Job-Id"
	TrailerSimilarity = "X-Back-Translation-Similarity"

	StatusCompleted = "completed"
	StatusUnsaved   = "unsaved"
	StatusFailed    = "failed"
)

type TranslateRequest struct {
	Source           string `json:"source"`
	Target           string `json:"target"`
	Content          string `json:"content,omitempty"`
	Prompt           string `json:"prompt"`
	TranslationJobID string `json:"translationJobId,omitempty"`
	SourceObject     string `json:"sourceObject,omitempty"`
	BackTranslate    bool   `json:"backTranslate,omitempty"`
}

// TranslateJSONRequest sends Content as a JSON value.
type TranslateJSONRequest struct {
	Source           string          `json:"source"`
	Target           string          `json:"target"`
	Content          json.RawMessage `json:"content,omitempty"`
	Prompt           string          `json:"prompt"`
	TranslationJobID string          `json:"translationJobId,omitempty"`
	SourceObject     string          `json:"sourceObject,omitempty"`
}

// Frame is one event of the JSON stream.
type Frame struct {
	Type             string          `json:"type"`
	Content          string          `json:"content,omitempty"`
	Translation      json.RawMessage `json:"translation,omitempty"`
	TranslationJobID string          `json:"translationJobId,omitempty"`
	Status           string          `json:"status,omitempty"`
	Error            string          `json:"error,omitempty"`
}

type TranslateResult struct {
	JobID  string
	Output string
	Status string

	// Translation is the validated document of a JSON translation.
	Translation json.RawMessage

	// Similarity is set when a back-translation check ran.
	Similarity *float64
}

// Translate streams a text translation. onDelta receives each new piece of
// text as it arrives; the pieces concatenate to Output. Multi-byte
// characters split across network reads are held back until complete.
//
// A stream that ends without a completed status returns the partial
// result with ErrIncompleteStream. An unsaved translation returns the full
// result with ErrUnsaved.
func (c *Client) Translate(ctx context.Context, req TranslateRequest, onDelta func(string)) (*TranslateResult, error) {
	resp, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/translate/translate",
		body:   req,
		accept: "text/event-stream",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}

	var out strings.Builder
	emit := func(text string) {
		if text == "" {
			return
		}
		out.WriteString(text)
		if onDelta != nil {
			onDelta(text)
		}
	}

	res := &TranslateResult{}
	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completePrefix(pending)
			emit(string(pending[:cut]))
			pending = append(pending[:0], pending[cut:]...)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			emit(string(pending))
			res.Output = out.String()
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, fmt.Errorf("%w: %w", ErrIncompleteStream, rerr)
		}
	}
	emit(string(pending))
	res.Output = out.String()

	res.Status = resp.Trailer.Get(TrailerStatus)
	res.JobID = resp.Trailer.Get(TrailerJobID)
	if v := resp.Trailer.Get(TrailerSimilarity); v != "" {
		if score, err := strconv.ParseFloat(v, 64); err == nil {
			res.Similarity = &score
		}
	}

	switch res.Status {
	case StatusCompleted:
		return res, nil
	case StatusUnsaved:
		return res, ErrUnsaved
	default:
		return res, ErrIncompleteStream
	}
}

// TranslateBuffered asks for the text translation as one JSON reply
// instead of a stream. An unsaved translation returns the full result with
// ErrUnsaved.
func (c *Client) TranslateBuffered(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	var body struct {
		Translation      string   `json:"translation"`
		TranslationJobID string   `json:"translationJobId"`
		Status           string   `json:"status"`
		Similarity       *float64 `json:"similarity"`
	}
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/api/translate/translate",
		body:   req,
		accept: "application/json",
	}, &body)
	if err != nil {
		return nil, err
	}

	res := &TranslateResult{
		JobID:      body.TranslationJobID,
		Output:     body.Translation,
		Status:     body.Status,
		Similarity: body.Similarity,
	}
	if res.Status == StatusUnsaved {
		return res, ErrUnsaved
	}
	return res, nil
}

// TranslateJSON streams a structured translation. onFrame sees every frame
// in order.
func (c *Client) TranslateJSON(ctx context.Context, req TranslateJSONRequest, onFrame func(Frame)) (*TranslateResult, error) {
	resp, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/translate/translateJson",
		body:   req,
		accept: "text/event-stream",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}

	res := &TranslateResult{}
	var raw strings.Builder
	done := false
	reader := bufio.NewReader(resp.Body)
	for !done {
		line, rerr := reader.ReadString('\n')
		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), "data:"); ok {
			var f Frame
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &f); err != nil {
				return res, fmt.Errorf("%w: malformed frame: %w", ErrIncompleteStream, err)
			}
			if onFrame != nil {
				onFrame(f)
			}
			switch f.Type {
			case "delta":
				raw.WriteString(f.Content)
			case "result":
				res.Translation = f.Translation
				res.Output = string(f.Translation)
			case "done":
				res.JobID = f.TranslationJobID
				res.Status = f.Status
				done = true
			case "error":
				res.Status = StatusFailed
				return res, fmt.Errorf("%w: %s", ErrTranslationFailed, f.Error)
			}
		}
		if rerr == nil {
			continue
		}
		if done {
			break
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(rerr, io.EOF) {
			return res, ErrIncompleteStream
		}
		return res, fmt.Errorf("%w: %w", ErrIncompleteStream, rerr)
	}

	if res.Output == "" {
		res.Output = raw.String()
	}
	if res.Status == StatusUnsaved {
		return res, ErrUnsaved
	}
	return res, nil
}

// completePrefix returns the length of the longest prefix of b that does
// not end inside a multi-byte character.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
