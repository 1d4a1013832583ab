// internal/translation/pipeline.go
package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"translator-back/internal/activity"
	"translator-back/internal/llm"
	"translator-back/internal/metrics"
	"translator-back/internal/models"
	"translator-back/internal/schema"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Output formats of a job.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// MaxSourceBytes caps content read from an uploaded object.
const MaxSourceBytes = 1 << 20

// lowSimilarity is where a back-translation is logged as suspicious.
const lowSimilarity = 0.5

const (
	literalPrompt = "Rewrite every idiom, proverb and figurative expression in the user's text as plain literal language. " +
		"Keep the text in its original language and change nothing else. Return only the rewritten text."
)

// ObjectReader reads uploaded source documents.
type ObjectReader interface {
	ReadObject(ctx context.Context, name string, limit int64) ([]byte, error)
}

// Auditor records activity entries.
type Auditor interface {
	Record(ctx context.Context, e activity.Entry)
}

// Request is one translation turn as submitted by a user.
type Request struct {
	UserID           string
	Source           string
	Target           string
	Content          string
	Prompt           string
	TranslationJobID string

	// SourceObject names an uploaded object to use when Content is empty.
	SourceObject string

	// BackTranslate enables the idiom pre-pass and the back-translation
	// similarity check for this request.
	BackTranslate bool

	// Origin carries the client address and agent for the activity log.
	Origin activity.Entry
}

// Turn is a prepared request, ready to stream.
type Turn struct {
	req         Request
	format      string
	job         *models.TranslationJob
	original    string
	content     string
	instruction string
	messages    []llm.Message
	schema      jsonschema.Definition
	backCheck   bool
}

// JobID is the id of the job the turn continues, empty for a new job.
func (t *Turn) JobID() string {
	if t.job == nil {
		return ""
	}
	return t.job.ID
}

func (t *Turn) Instruction() string { return t.instruction }

func (t *Turn) Format() string { return t.format }

// Messages returns the model input of the turn.
func (t *Turn) Messages() []llm.Message {
	return append([]llm.Message(nil), t.messages...)
}

// Result is the outcome of a streamed turn.
type Result struct {
	JobID  string
	Output string
	Saved  bool

	// Translation is the validated structured result in JSON mode.
	Translation any

	// Similarity is set when a back-translation was run.
	Similarity *float64
}

type Pipeline struct {
	provider       llm.Provider
	store          *Store
	objects        ObjectReader
	audit          Auditor
	literalPrepass bool
	now            func() time.Time
}

type Option func(*Pipeline)

// WithObjects lets requests name an uploaded object as their content.
func WithObjects(objects ObjectReader) Option {
	return func(p *Pipeline) { p.objects = objects }
}

// WithAuditor records an activity entry for every turn.
func WithAuditor(a Auditor) Option {
	return func(p *Pipeline) { p.audit = a }
}

// WithLiteralPrepass runs the idiom rewrite on every text request.
func WithLiteralPrepass(on bool) Option {
	return func(p *Pipeline) { p.literalPrepass = on }
}

func NewPipeline(provider llm.Provider, store *Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider: provider,
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare validates a text request and builds the model input. Nothing is
// streamed or persisted; errors here can still be answered with a status
// code.
func (p *Pipeline) Prepare(ctx context.Context, req Request) (*Turn, error) {
	turn, err := p.prepare(ctx, req, FormatText)
	if err != nil {
		p.fail(ctx, req, FormatText, "", err)
		return nil, err
	}
	return turn, nil
}

func (p *Pipeline) prepare(ctx context.Context, req Request, format string) (*Turn, error) {
	if err := p.provider.Ready(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Target) == "" {
		return nil, fmt.Errorf("%w: source and target are required", ErrInvalidInput)
	}

	content, err := p.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	turn := &Turn{req: req, format: format, original: content, content: content}

	var history []models.Message
	if req.TranslationJobID != "" {
		job, err := p.store.FindJob(ctx, req.UserID, req.TranslationJobID)
		if err != nil {
			return nil, err
		}
		turn.job = job
		history, err = p.store.LoadHistory(ctx, req.UserID, job.ID)
		if err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatJSON:
		doc, compact, err := decodeDocument(content)
		if err != nil {
			return nil, fmt.Errorf("%w: content is not valid JSON: %w", ErrInvalidInput, err)
		}
		turn.content = compact
		turn.schema = schema.Wrap(resultKey, schema.Infer(doc))
		turn.messages = append(turn.messages, llm.Message{Role: llm.RoleSystem, Content: jsonSystemPrompt})
	default:
		turn.backCheck = req.BackTranslate && !IsDetect(req.Source)
		if req.BackTranslate || p.literalPrepass {
			turn.content = p.literalize(ctx, content)
		}
	}

	turn.instruction = BuildInstruction(req.Source, req.Target, turn.content, req.Prompt)
	turn.messages = append(turn.messages, ReplayHistory(history)...)
	turn.messages = append(turn.messages, llm.Message{Role: llm.RoleUser, Content: turn.instruction})
	return turn, nil
}

func (p *Pipeline) resolveContent(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Content) != "" {
		return req.Content, nil
	}
	if req.SourceObject == "" {
		return "", fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if p.objects == nil {
		return "", fmt.Errorf("%w: uploads are not enabled", ErrInvalidInput)
	}
	if !strings.HasPrefix(req.SourceObject, "users/"+req.UserID+"/") {
		return "", fmt.Errorf("%w: source object belongs to another user", ErrInvalidInput)
	}
	data, err := p.objects.ReadObject(ctx, req.SourceObject, MaxSourceBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: source object is empty", ErrInvalidInput)
	}
	return string(data), nil
}

// literalize rewrites idioms before translation. The original content is
// used when the rewrite fails.
func (p *Pipeline) literalize(ctx context.Context, content string) string {
	out, err := p.provider.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: literalPrompt},
		{Role: llm.RoleUser, Content: content},
	})
	if err != nil || strings.TrimSpace(out) == "" {
		slog.Warn("literal pre-pass failed, using original content", "error", err)
		return content
	}
	return out
}

// Stream runs the model over a prepared turn, passing every fragment to
// emit in arrival order, then persists the turn. A failure of emit or a
// cancelled ctx aborts the call and nothing is saved.
//
// When saving fails the complete result is returned together with an error
// wrapping ErrPersistence.
func (p *Pipeline) Stream(ctx context.Context, turn *Turn, emit llm.DeltaFunc) (*Result, error) {
	start := p.now()
	relay := func(delta string) error {
		metrics.StreamChunksTotal.WithLabelValues(turn.format).Inc()
		return emit(delta)
	}

	var (
		output      string
		translation any
		err         error
	)
	switch turn.format {
	case FormatJSON:
		output, translation, err = p.streamJSON(ctx, turn, relay)
	default:
		output, err = p.provider.StreamChat(ctx, turn.messages, relay)
		if err == nil && strings.TrimSpace(output) == "" {
			err = llm.ErrEmptyResponse
		}
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrUpstream, err)
		}
	}
	if err != nil {
		slog.Error("translation stream failed",
			"user_id", turn.req.UserID, "job_id", turn.JobID(), "format", turn.format, "error", err)
		p.fail(ctx, turn.req, turn.format, turn.JobID(), err)
		return nil, err
	}

	res := &Result{Output: output, Translation: translation}

	// The model finished; a client leaving now must not lose the turn.
	saveCtx := context.WithoutCancel(ctx)
	job, err := p.store.SaveTurn(saveCtx, TurnRecord{
		UserID:      turn.req.UserID,
		JobID:       turn.JobID(),
		SourceLang:  turn.req.Source,
		TargetLang:  turn.req.Target,
		Format:      turn.format,
		Input:       turn.original,
		Title:       Title(turn.original),
		Instruction: turn.instruction,
		Output:      output,
	})
	if err != nil {
		slog.Error("failed to save translation",
			"user_id", turn.req.UserID, "job_id", turn.JobID(), "error", err)
		res.JobID = turn.JobID()
		metrics.TranslationsTotal.WithLabelValues(turn.format, metrics.OutcomeUnsaved).Inc()
		p.record(saveCtx, turn.req, res.JobID, models.OutcomeFailed)
		return res, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	res.JobID = job.ID
	res.Saved = true

	if turn.backCheck {
		res.Similarity = p.backTranslate(saveCtx, turn, output)
	}

	metrics.TranslationsTotal.WithLabelValues(turn.format, metrics.OutcomeSuccess).Inc()
	metrics.TranslationDuration.WithLabelValues(turn.format).Observe(p.now().Sub(start).Seconds())
	p.record(saveCtx, turn.req, res.JobID, models.OutcomeSuccess)
	slog.Info("translation completed",
		"user_id", turn.req.UserID, "job_id", res.JobID, "format", turn.format, "chars", len(output))
	return res, nil
}

// backTranslate translates the output back into the source language and
// scores it against the original. A low score is only logged.
func (p *Pipeline) backTranslate(ctx context.Context, turn *Turn, output string) *float64 {
	back, err := p.provider.Complete(ctx, []llm.Message{{
		Role:    llm.RoleUser,
		Content: BuildInstruction(turn.req.Target, turn.req.Source, output, ""),
	}})
	if err != nil {
		slog.Warn("back-translation failed", "job_id", turn.JobID(), "error", err)
		return nil
	}
	score := Similarity(turn.original, back)
	if score < lowSimilarity {
		slog.Warn("back-translation differs from the original",
			"user_id", turn.req.UserID, "similarity", score)
	} else {
		slog.Debug("back-translation similarity", "similarity", score)
	}
	return &score
}

func (p *Pipeline) fail(ctx context.Context, req Request, format, jobID string, err error) {
	if errors.Is(err, context.Canceled) {
		slog.Info("translation cancelled by client", "user_id", req.UserID)
	}
	metrics.TranslationsTotal.WithLabelValues(format, metrics.OutcomeFailure).Inc()
	p.record(ctx, req, jobID, models.OutcomeFailed)
}

func (p *Pipeline) record(ctx context.Context, req Request, jobID string, outcome models.Outcome) {
	if p.audit == nil {
		return
	}
	e := req.Origin
	e.UserID = req.UserID
	e.Action = models.ActionTranslate
	e.Entity = models.EntityTranslationJob
	e.EntityID = jobID
	e.Outcome = outcome
	p.audit.Record(ctx, e)
}
