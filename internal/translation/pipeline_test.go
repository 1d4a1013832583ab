// internal/translation/pipeline_test.go
package translation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"translator-back/internal/activity"
	"translator-back/internal/llm"
	"translator-back/internal/llm/llmtest"
	"translator-back/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (a *recordingAuditor) Record(_ context.Context, e activity.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) outcomes() []models.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.Outcome
	for _, e := range a.entries {
		out = append(out, e.Outcome)
	}
	return out
}

type memObjects map[string]string

func (m memObjects) ReadObject(_ context.Context, name string, limit int64) ([]byte, error) {
	v, ok := m[name]
	if !ok {
		return nil, errors.New("no such object")
	}
	if int64(len(v)) > limit {
		return nil, errors.New("object too large")
	}
	return []byte(v), nil
}

type harness struct {
	db       *gorm.DB
	store    *Store
	provider *llmtest.Provider
	audit    *recordingAuditor
	pipeline *Pipeline
}

func newHarness(t *testing.T, provider *llmtest.Provider, opts ...Option) harness {
	t.Helper()
	db := newTestDB(t)
	store := NewStore(db)
	audit := &recordingAuditor{}
	opts = append([]Option{WithAuditor(audit)}, opts...)
	return harness{
		db:       db,
		store:    store,
		provider: provider,
		audit:    audit,
		pipeline: NewPipeline(provider, store, opts...),
	}
}

func (h harness) countJobs(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.TranslationJob{}).Count(&n).Error)
	return n
}

// collect returns an emit func and a pointer to everything it received.
func collect() (llm.DeltaFunc, *[]string) {
	var got []string
	return func(d string) error {
		got = append(got, d)
		return nil
	}, &got
}

func TestPipeline_NewJobScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &llmtest.Provider{Chunks: []string{"Guten", " ", "Morgen"}})

	turn, err := h.pipeline.Prepare(ctx, Request{
		UserID:  "u1",
		Source:  "Detect language",
		Target:  "German",
		Content: "Good morning",
		Prompt:  "",
	})
	require.NoError(t, err)
	assert.Empty(t, turn.JobID())

	emit, got := collect()
	res, err := h.pipeline.Stream(ctx, turn, emit)
	require.NoError(t, err)
	require.True(t, res.Saved)

	streamed := strings.Join(*got, "")
	assert.Equal(t, "Guten Morgen", streamed)
	assert.NotEmpty(t, streamed)

	job, err := h.store.FindJob(ctx, "u1", res.JobID)
	require.NoError(t, err)
	assert.Equal(t, []string{"German"}, job.TargetLangs)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, streamed, job.OutputFile)
	assert.Equal(t, "Good morning", job.InputFile)
	assert.Equal(t, "Good morning", job.Title)

	msgs, err := h.store.LoadHistory(ctx, "u1", res.JobID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.Message{
		Role:    models.RoleUser,
		Content: "Detect the source language and translate the following content to German: Good morning.",
	}, msgs[0])
	assert.Equal(t, models.Message{Role: models.RoleBot, Content: streamed}, msgs[1])

	calls := h.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: msgs[0].Content}}, calls[0])

	assert.Equal(t, []models.Outcome{models.OutcomeSuccess}, h.audit.outcomes())
	assert.Equal(t, models.ActionTranslate, h.audit.entries[0].Action)
	assert.Equal(t, res.JobID, h.audit.entries[0].EntityID)
}

func TestPipeline_ExistingJobAppendsOneBotMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &llmtest.Provider{Chunks: []string{"Hallo"}})

	first, err := h.pipeline.Prepare(ctx, Request{UserID: "u1", Source: "English", Target: "German", Content: "Hi"})
	require.NoError(t, err)
	res, err := h.pipeline.Stream(ctx, first, func(string) error { return nil })
	require.NoError(t, err)

	h.provider.Chunks = []string{"Hallo", " ", "du"}
	turn, err := h.pipeline.Prepare(ctx, Request{
		UserID:           "u1",
		Source:           "English",
		Target:           "German",
		Content:          "Hi",
		Prompt:           "informal",
		TranslationJobID: res.JobID,
	})
	require.NoError(t, err)
	assert.Equal(t, res.JobID, turn.JobID())

	// History is replayed ahead of the new instruction.
	msgs := turn.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Hallo"}, msgs[1])
	assert.Equal(t, turn.Instruction(), msgs[2].Content)

	emit, got := collect()
	res2, err := h.pipeline.Stream(ctx, turn, emit)
	require.NoError(t, err)
	assert.Equal(t, res.JobID, res2.JobID)

	job, err := h.store.FindJob(ctx, "u1", res.JobID)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(*got, ""), job.OutputFile)
	assert.Equal(t, "Hallo du", job.OutputFile)

	history, err := h.store.LoadHistory(ctx, "u1", res.JobID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.Message{Role: models.RoleBot, Content: "Hallo du"}, history[2])
	assert.Equal(t, int64(1), h.countJobs(t))
}

func TestPipeline_UnknownJobIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &llmtest.Provider{Chunks: []string{"x"}})

	_, err := h.pipeline.Prepare(ctx, Request{
		UserID: "u1", Source: "English", Target: "German", Content: "Hi", TranslationJobID: "missing",
	})
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Empty(t, h.provider.Calls())
	assert.Equal(t, []models.Outcome{models.OutcomeFailed}, h.audit.outcomes())
}

func TestPipeline_OtherUsersJobIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &llmtest.Provider{Chunks: []string{"x"}})

	turn, err := h.pipeline.Prepare(ctx, Request{UserID: "u1", Source: "English", Target: "German", Content: "Hi"})
	require.NoError(t, err)
	res, err := h.pipeline.Stream(ctx, turn, func(string) error { return nil })
	require.NoError(t, err)

	_, err = h.pipeline.Prepare(ctx, Request{
		UserID: "u2", Source: "English", Target: "German", Content: "Hi", TranslationJobID: res.JobID,
	})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPipeline_MissingCredential(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &llmtest.Provider{ReadyErr: llm.ErrMissingCredential})

	_, err := h.pipeline.Prepare(ctx, Request{UserID: "u1", Source: "English", Target: "German", Content: "Hi"})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, llm.ErrMissingCredential)
	assert.Empty(t, h.provider.Calls())
	assert.Empty(t, h.provider.Completes())
}

func TestPipeline_InvalidInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &llmtest.Provider{})

	for name, req := range map[string]Request{
		"no user":    {Source: "English", Target: "German", Content: "Hi"},
		"no target":  {UserID: "u1", Source: "English", Content: "Hi"},
		"no content": {UserID: "u1", Source: "English", Target: "German", Content: "  "},
		"no uploads": {UserID: "u1", Source: "English", Target: "German", SourceObject: "users/u1/uploads/a.txt"},
	} {
		_, err := h.pipeline.Prepare(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}
}

func TestPipeline_UpstreamFailureSavesNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	h := newHarness(t, &llmtest.Provider{Chunks: []string{"Guten"}, StreamErr: boom})

	turn, err := h.pipeline.Prepare(ctx, Request{UserID: "u1", Source: "English", Target: "German", Content: "Good morning"})
	require.NoError(t, err)

	emit, got := collect()
	res, err := h.pipeline.Stream(ctx, turn, emit)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"Guten"}, *got)
	assert.Equal(t, int64(0), h.countJobs(t))
	assert.Equal(t, []models.Outcome{models.OutcomeFailed}, h.audit.outcomes())
}

func TestPipeline_EmptyOutputIsAFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &llmtest.Provider{Chunks: []string{" "}})

	turn, err := h.pipeline.Prepare(ctx, Request{UserID: "u1", Source: "English", Target: "German", Content: "Hi"})
	require.NoError(t, err)
	_, err = h.pipeline.Stream(ctx, turn, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
	assert.Equal(t, int64(0), h.countJobs(t))
}

func TestPipeline_ClientGoneSavesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, &llmtest.Provider{Chunks: []string{"a", "b", "c"}})

	turn, err := h.pipeline.Prepare(ctx, Request{UserID: "u1", Source: "English", Target: "German", Content: "Hi"})
	require.NoError(t, err)

	var n int
	_, err = h.pipeline.Stream(ctx, turn, func(string) error {
		n++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), h.countJobs(t))
}

func TestPipeline_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &llmtest.Provider{Chunks: []string{"Guten Morgen"}})
	require.NoError(t, h.db.Migrator().DropTable(&models.ConversationHistory{}))

	turn, err := h.pipeline.Prepare(ctx, Request{UserID: "u1", Source: "English", Target: "German", Content: "Good morning"})
	require.NoError(t, err)

	res, err := h.pipeline.Stream(ctx, turn, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrPersistence)
	require.NotNil(t, res)
	assert.False(t, res.Saved)
	assert.Equal(t, "Guten Morgen", res.Output)

	// The job insert is rolled back with the failed history insert.
	assert.Equal(t, int64(0), h.countJobs(t))
	assert.Equal(t, []models.Outcome{models.OutcomeFailed}, h.audit.outcomes())
}

func TestPipeline_BackTranslation(t *testing.T) {
	ctx := context.Background()
	provider := &llmtest.Provider{
		Chunks: []string{"Guten Morgen"},
		CompleteFunc: func(messages []llm.Message) (string, error) {
			last := messages[len(messages)-1].Content
			if messages[0].Role == llm.RoleSystem {
				// literal pre-pass
				return last, nil
			}
			return "Good morning", nil
		},
	}
	h := newHarness(t, provider)

	turn, err := h.pipeline.Prepare(ctx, Request{
		UserID: "u1", Source: "English", Target: "German", Content: "Good morning", BackTranslate: true,
	})
	require.NoError(t, err)

	res, err := h.pipeline.Stream(ctx, turn, func(string) error { return nil })
	require.NoError(t, err)
	require.NotNil(t, res.Similarity)
	assert.Equal(t, 1.0, *res.Similarity)

	completes := provider.Completes()
	require.Len(t, completes, 2)
	assert.Equal(t, "Good morning", completes[0][1].Content)
	assert.Equal(t,
		"Translate the following content from German to English: Guten Morgen.",
		completes[1][0].Content)
}

func TestPipeline_BackTranslationSkippedWhenDetecting(t *testing.T) {
	ctx := context.Background()
	provider := &llmtest.Provider{Chunks: []string{"Guten Morgen"}}
	h := newHarness(t, provider)

	turn, err := h.pipeline.Prepare(ctx, Request{
		UserID: "u1", Source: "Detect language", Target: "German", Content: "Good morning", BackTranslate: true,
	})
	require.NoError(t, err)
	res, err := h.pipeline.Stream(ctx, turn, func(string) error { return nil })
	require.NoError(t, err)
	assert.Nil(t, res.Similarity)
	assert.Len(t, provider.Completes(), 1, "only the literal pre-pass runs")
}

func TestPipeline_LiteralPrepassRewritesContent(t *testing.T) {
	ctx := context.Background()
	provider := &llmtest.Provider{
		Chunks: []string{"Es regnet stark"},
		CompleteFunc: func([]llm.Message) (string, error) {
			return "It is raining heavily", nil
		},
	}
	h := newHarness(t, provider, WithLiteralPrepass(true))

	turn, err := h.pipeline.Prepare(ctx, Request{
		UserID: "u1", Source: "English", Target: "German", Content: "It's raining cats and dogs",
	})
	require.NoError(t, err)
	assert.Contains(t, turn.Instruction(), "It is raining heavily")

	res, err := h.pipeline.Stream(ctx, turn, func(string) error { return nil })
	require.NoError(t, err)

	job, err := h.store.FindJob(ctx, "u1", res.JobID)
	require.NoError(t, err)
	assert.Equal(t, "It's raining cats and dogs", job.InputFile)
}

func TestPipeline_SourceObject(t *testing.T) {
	ctx := context.Background()
	objects := memObjects{"users/u1/uploads/a.txt": "Good night"}
	h := newHarness(t, &llmtest.Provider{Chunks: []string{"Gute Nacht"}}, WithObjects(objects))

	turn, err := h.pipeline.Prepare(ctx, Request{
		UserID: "u1", Source: "English", Target: "German", SourceObject: "users/u1/uploads/a.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "Translate the following content from English to German: Good night.", turn.Instruction())

	_, err = h.pipeline.Prepare(ctx, Request{
		UserID: "u2", Source: "English", Target: "German", SourceObject: "users/u1/uploads/a.txt",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.pipeline.Prepare(ctx, Request{
		UserID: "u1", Source: "English", Target: "German", SourceObject: "users/u1/uploads/missing.txt",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
