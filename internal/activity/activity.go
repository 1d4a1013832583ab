// internal/activity/activity.go
package activity

import (
	"context"
	"log/slog"

	"translator-back/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Recorder writes the audit trail. Recording never fails the request that
// triggered it; write errors are logged and dropped.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

type Entry struct {
	UserID    string
	Action    models.ActionType
	Entity    models.EntityType
	EntityID  string
	IPAddress string
	UserAgent string
	Outcome   models.Outcome
}

// FromRequest fills the client fields of an entry.
func FromRequest(c *gin.Context, userID string, action models.ActionType, entity models.EntityType) Entry {
	ua := c.Request.UserAgent()
	if ua == "" {
		ua = "Unknown"
	}
	return Entry{
		UserID:    userID,
		Action:    action,
		Entity:    entity,
		IPAddress: c.ClientIP(),
		UserAgent: ua,
		Outcome:   models.OutcomeSuccess,
	}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.Outcome == "" {
		e.Outcome = models.OutcomeSuccess
	}
	row := models.ActivityLog{
		UserID:    e.UserID,
		Action:    e.Action,
		Entity:    e.Entity,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		Outcome:   e.Outcome,
	}
	if e.EntityID != "" {
		id := e.EntityID
		row.EntityID = &id
	}

	// The request context may already be cancelled when a stream is cut.
	if err := r.db.WithContext(context.WithoutCancel(ctx)).Create(&row).Error; err != nil {
		slog.Error("failed to record activity",
			"user_id", e.UserID, "action", e.Action, "outcome", e.Outcome, "error", err)
		return
	}
	slog.Info("activity",
		"user_id", e.UserID, "action", e.Action, "entity", e.Entity,
		"entity_id", e.EntityID, "outcome", e.Outcome)
}
