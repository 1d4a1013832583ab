// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	TranslationJobs []TranslationJob `gorm:"foreignKey:UserID" json:"translationJobs,omitempty"`
}

// RefreshToken stores only the SHA-256 of the issued token.
type RefreshToken struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;not null;size:36"`
	TokenHash string    `gorm:"uniqueIndex;not null;size:64"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

type TranslationJob struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"index;not null;size:36" json:"userId"`
	InputFile   string    `gorm:"type:text" json:"inputFile"`
	OutputFile  string    `gorm:"type:text" json:"outputFile"`
	SourceLang  string    `json:"sourceLang"`
	TargetLangs []string  `gorm:"serializer:json;type:text" json:"targetLangs"`
	Format      string    `gorm:"default:'text'" json:"format"` // text or json
	Status      JobStatus `gorm:"default:'PENDING'" json:"status"`
	Title       string    `json:"title,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ConversationHistory struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	UserID           string    `gorm:"index;not null;size:36" json:"userId"`
	TranslationJobID string    `gorm:"uniqueIndex;not null;size:36" json:"translationJobId"`
	Messages         []Message `gorm:"serializer:json;type:text" json:"messages"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type ActionType string

const (
	ActionLogin     ActionType = "LOGIN"
	ActionLogout    ActionType = "LOGOUT"
	ActionCreate    ActionType = "CREATE"
	ActionUpdate    ActionType = "UPDATE"
	ActionTranslate ActionType = "TRANSLATE"
	ActionUpload    ActionType = "UPLOAD"
	ActionDownload  ActionType = "DOWNLOAD"
)

type EntityType string

const (
	EntityUser           EntityType = "USER"
	EntityTranslationJob EntityType = "TRANSLATION_JOB"
	EntityFile           EntityType = "FILE"
	EntityRefreshToken   EntityType = "REFRESH_TOKEN"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

type ActivityLog struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    string     `gorm:"index;size:36" json:"userId"`
	Action    ActionType `gorm:"not null" json:"action"`
	Entity    EntityType `gorm:"not null" json:"entity"`
	EntityID  *string    `json:"entityId,omitempty"`
	IPAddress string     `json:"ipAddress"`
	UserAgent string     `json:"userAgent"`
	Outcome   Outcome    `gorm:"not null" json:"outcome"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error                { u.ID = ensureID(u.ID); return nil }
func (t *RefreshToken) BeforeCreate(*gorm.DB) error        { t.ID = ensureID(t.ID); return nil }
func (j *TranslationJob) BeforeCreate(*gorm.DB) error      { j.ID = ensureID(j.ID); return nil }
func (h *ConversationHistory) BeforeCreate(*gorm.DB) error { h.ID = ensureID(h.ID); return nil }
func (a *ActivityLog) BeforeCreate(*gorm.DB) error         { a.ID = ensureID(a.ID); return nil }

func ensureID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// All lists every model for migration.
func All() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&TranslationJob{},
		&ConversationHistory{},
		&ActivityLog{},
	}
}
