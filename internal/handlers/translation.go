// internal/handlers/translation.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"translator-back/internal/activity"
	"translator-back/internal/middleware"
	"translator-back/internal/models"
	"translator-back/internal/translation"

	"github.com/gin-gonic/gin"
)

// Stream trailers of the text endpoint. A stream whose status trailer is
// not StatusCompleted must not be treated as a saved translation.
const (
	TrailerStatus     = "X-Translation-Status"
	TrailerJobID      = "X-Translation-Job-Id"
	TrailerSimilarity = "X-Back-Translation-Similarity"

	StatusCompleted = "completed"
	StatusUnsaved   = "unsaved"
	StatusFailed    = "failed"
)

// JSON-mode frame types.
const (
	FrameDelta  = "delta"
	FrameResult = "result"
	FrameDone   = "done"
	FrameError  = "error"
)

type TranslationDeps struct {
	Pipeline *translation.Pipeline
	Store    *translation.Store
	Audit    *activity.Recorder
}

type TranslateRequest struct {
	Source           string `json:"source" binding:"required"`
	Target           string `json:"target" binding:"required"`
	Content          string `json:"content"`
	Prompt           string `json:"prompt"`
	TranslationJobID string `json:"translationJobId"`
	SourceObject     string `json:"sourceObject"`
	BackTranslate    bool   `json:"backTranslate"`
}

// TranslateJSONRequest carries content as a JSON value, or as a string
// holding JSON text.
type TranslateJSONRequest struct {
	Source           string          `json:"source" binding:"required"`
	Target           string          `json:"target" binding:"required"`
	Content          json.RawMessage `json:"content"`
	Prompt           string          `json:"prompt"`
	TranslationJobID string          `json:"translationJobId"`
	SourceObject     string          `json:"sourceObject"`
}

// Frame is one server-sent event of the JSON endpoint.
type Frame struct {
	Type             string `json:"type"`
	Content          string `json:"content,omitempty"`
	Translation      any    `json:"translation,omitempty"`
	TranslationJobID string `json:"translationJobId,omitempty"`
	Status           string `json:"status,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Translate streams the translation as raw text. The job id, the outcome
// and the optional similarity score follow as trailers.
func Translate(d TranslationDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TranslateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		turn, err := d.Pipeline.Prepare(ctx, translation.Request{
			UserID:           middleware.UserID(c),
			Source:           req.Source,
			Target:           req.Target,
			Content:          req.Content,
			Prompt:           req.Prompt,
			TranslationJobID: req.TranslationJobID,
			SourceObject:     req.SourceObject,
			BackTranslate:    req.BackTranslate,
			Origin:           activity.FromRequest(c, "", "", ""),
		})
		if err != nil {
			writeTranslationError(c, err)
			return
		}

		if wantsBuffered(c) {
			res, err := d.Pipeline.Stream(ctx, turn, func(string) error { return nil })
			var out any
			if res != nil {
				out = res.Output
			}
			replyBuffered(c, res, err, out)
			return
		}

		// Status and headers go out with the first fragment; a turn that fails
		// before it is answered as a plain JSON error.
		w := c.Writer
		h := w.Header()
		started := false
		start := func() {
			if started {
				return
			}
			started = true
			setStreamHeaders(h, "text/event-stream; charset=utf-8")
			h.Set("Trailer", TrailerStatus+", "+TrailerJobID+", "+TrailerSimilarity)
			c.Status(http.StatusOK)
			w.Flush()
		}

		res, err := d.Pipeline.Stream(ctx, turn, func(delta string) error {
			start()
			if _, err := io.WriteString(w, delta); err != nil {
				return err
			}
			w.Flush()
			return nil
		})
		if err != nil && !started && !errors.Is(err, translation.ErrPersistence) {
			writeTranslationError(c, err)
			return
		}
		start()

		status := StatusCompleted
		switch {
		case err == nil:
		case errors.Is(err, translation.ErrPersistence):
			status = StatusUnsaved
		default:
			status = StatusFailed
		}
		h.Set(TrailerStatus, status)
		if res != nil && res.JobID != "" {
			h.Set(TrailerJobID, res.JobID)
		}
		if res != nil && res.Similarity != nil {
			h.Set(TrailerSimilarity, strconv.FormatFloat(*res.Similarity, 'f', 4, 64))
		}
	}
}

// TranslateJSON streams the structured variant as server-sent events.
func TranslateJSON(d TranslationDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TranslateJSONRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		content, err := jsonContent(req.Content)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		turn, err := d.Pipeline.PrepareJSON(ctx, translation.Request{
			UserID:           middleware.UserID(c),
			Source:           req.Source,
			Target:           req.Target,
			Content:          content,
			Prompt:           req.Prompt,
			TranslationJobID: req.TranslationJobID,
			SourceObject:     req.SourceObject,
			Origin:           activity.FromRequest(c, "", "", ""),
		})
		if err != nil {
			writeTranslationError(c, err)
			return
		}

		if wantsBuffered(c) {
			res, err := d.Pipeline.Stream(ctx, turn, func(string) error { return nil })
			var out any
			if res != nil {
				out = res.Translation
			}
			replyBuffered(c, res, err, out)
			return
		}

		w := c.Writer
		started := false
		send := func(f Frame) error {
			if !started {
				started = true
				setStreamHeaders(w.Header(), "text/event-stream")
				c.Status(http.StatusOK)
			}
			b, err := json.Marshal(f)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return err
			}
			w.Flush()
			return nil
		}

		res, err := d.Pipeline.Stream(ctx, turn, func(delta string) error {
			return send(Frame{Type: FrameDelta, Content: delta})
		})
		if err != nil && !errors.Is(err, translation.ErrPersistence) {
			if !started {
				writeTranslationError(c, err)
				return
			}
			_ = send(Frame{Type: FrameError, Error: publicError(err)})
			return
		}

		status := StatusCompleted
		if err != nil {
			status = StatusUnsaved
		}
		if err := send(Frame{Type: FrameResult, Translation: res.Translation}); err != nil {
			return
		}
		_ = send(Frame{Type: FrameDone, TranslationJobID: res.JobID, Status: status})
	}
}

// wantsBuffered reports whether the client asked for one JSON document
// instead of a stream.
func wantsBuffered(c *gin.Context) bool {
	return c.NegotiateFormat("text/event-stream", gin.MIMEJSON) == gin.MIMEJSON
}

// replyBuffered answers a finished turn with a single JSON body. A turn
// that failed to save still returns its translation, marked unsaved.
func replyBuffered(c *gin.Context, res *translation.Result, err error, out any) {
	if err != nil && !errors.Is(err, translation.ErrPersistence) {
		writeTranslationError(c, err)
		return
	}

	body := gin.H{
		"message":          "Translation completed",
		"translation":      out,
		"translationJobId": res.JobID,
		"status":           StatusCompleted,
	}
	if err != nil {
		body["message"] = "Translation completed but could not be saved"
		body["status"] = StatusUnsaved
	}
	if res.Similarity != nil {
		body["similarity"] = *res.Similarity
	}
	c.JSON(http.StatusOK, body)
}

type jobSummary struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Status    models.JobStatus `json:"status"`
	Format    string           `json:"format"`
	CreatedAt time.Time        `json:"createdAt"`
}

// GetTranslationJobs lists the caller's jobs. The optional id query must
// name the caller.
func GetTranslationJobs(d TranslationDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		if id := c.Query("id"); id != "" && id != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Cannot list another user's jobs"})
			return
		}

		jobs, err := d.Store.ListJobs(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to list jobs", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch translation jobs"})
			return
		}

		out := make([]jobSummary, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, jobSummary{ID: j.ID, Title: j.Title, Status: j.Status, Format: j.Format, CreatedAt: j.CreatedAt})
		}
		c.JSON(http.StatusOK, gin.H{"translationJobs": out})
	}
}

func GetTranslationHistory(d TranslationDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		h, err := d.Store.GetHistory(c.Request.Context(), userID, c.Param("id"))
		if errors.Is(err, translation.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		if err != nil {
			slog.Error("failed to load history", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch translation history"})
			return
		}

		history := []models.ConversationHistory{}
		if h.ID != "" {
			history = append(history, *h)
		}
		c.JSON(http.StatusOK, gin.H{"translationHistory": history})
	}
}

// DownloadTranslation serves a job's output as an attachment.
func DownloadTranslation(d TranslationDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		job, err := d.Store.FindJob(c.Request.Context(), userID, c.Param("id"))
		if errors.Is(err, translation.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		if err != nil {
			slog.Error("failed to load job", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get result"})
			return
		}
		if job.Status != models.StatusCompleted {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Job not completed"})
			return
		}

		ext, contentType := ".txt", "text/plain; charset=utf-8"
		if job.Format == translation.FormatJSON {
			ext, contentType = ".json", "application/json"
		}

		e := activity.FromRequest(c, userID, models.ActionDownload, models.EntityTranslationJob)
		e.EntityID = job.ID
		d.Audit.Record(c.Request.Context(), e)

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=translation_%s%s", job.ID, ext))
		c.Data(http.StatusOK, contentType, []byte(job.OutputFile))
	}
}

func setStreamHeaders(h http.Header, contentType string) {
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// jsonContent turns the content field into JSON text. A JSON string is
// taken to hold the document.
func jsonContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid content: %w", err)
		}
		return s, nil
	}
	return string(raw), nil
}

func writeTranslationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, translation.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, translation.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Translation job not found"})
	case errors.Is(err, translation.ErrUpstream), errors.Is(err, translation.ErrInvalidOutput):
		c.JSON(http.StatusBadGateway, gin.H{"error": publicError(err)})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": publicError(err)})
	}
}

func publicError(err error) string {
	switch {
	case errors.Is(err, translation.ErrConfiguration):
		return "Model provider API key is not configured."
	case errors.Is(err, translation.ErrInvalidOutput):
		return "The model returned a document that does not match the input."
	default:
		return "An error occurred during translation."
	}
}
