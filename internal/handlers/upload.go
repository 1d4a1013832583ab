// internal/handlers/upload.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"translator-back/internal/activity"
	"translator-back/internal/middleware"
	"translator-back/internal/models"
	"translator-back/internal/storage"
	"translator-back/internal/translation"

	"github.com/gin-gonic/gin"
)

// ObjectStore receives uploaded source documents.
type ObjectStore interface {
	UploadFromReader(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
}

var uploadTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
}

// UploadSource stores a .txt or .json document for later translation and
// returns its text so the client can show it.
func UploadSource(objects ObjectStore, audit *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if objects == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "File uploads are not configured"})
			return
		}
		userID := middleware.UserID(c)

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
			return
		}

		// Validate file type
		ext := strings.ToLower(filepath.Ext(file.Filename))
		contentType, ok := uploadTypes[ext]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only .txt and .json files are allowed"})
			return
		}
		if file.Size > translation.MaxSourceBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
			return
		}

		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
			return
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, translation.MaxSourceBytes+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
			return
		}
		if len(data) > translation.MaxSourceBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
			return
		}
		if !utf8.Valid(data) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File must be UTF-8 text"})
			return
		}
		if ext == ".json" && !json.Valid(data) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File is not valid JSON"})
			return
		}

		objectName := storage.GenerateObjectName(userID, file.Filename)
		e := activity.FromRequest(c, userID, models.ActionUpload, models.EntityFile)
		e.EntityID = objectName

		if _, err := objects.UploadFromReader(c.Request.Context(), objectName, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			slog.Error("failed to upload source", "user_id", userID, "error", err)
			e.Outcome = models.OutcomeFailed
			audit.Record(c.Request.Context(), e)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload to storage"})
			return
		}
		audit.Record(c.Request.Context(), e)

		c.JSON(http.StatusCreated, gin.H{
			"objectName":    objectName,
			"fileExtension": strings.TrimPrefix(ext, "."),
			"content":       string(data),
		})
	}
}
