// internal/translation/store.go
package translation

import (
	"context"
	"errors"
	"fmt"

	"translator-back/internal/models"

	"gorm.io/gorm"
)

// Store keeps translation jobs and their conversations. Every lookup is
// scoped to the owning user.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindJob returns ErrJobNotFound when the job does not exist or belongs to
// someone else.
func (s *Store) FindJob(ctx context.Context, userID, jobID string) (*models.TranslationJob, error) {
	var job models.TranslationJob
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", jobID, userID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return &job, nil
}

// LoadHistory returns the stored messages of a job in order. A job without
// a history yields an empty list.
func (s *Store) LoadHistory(ctx context.Context, userID, jobID string) ([]models.Message, error) {
	h, err := s.findHistory(s.db.WithContext(ctx), userID, jobID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	return h.Messages, nil
}

// GetHistory returns the conversation of a job the user owns.
func (s *Store) GetHistory(ctx context.Context, userID, jobID string) (*models.ConversationHistory, error) {
	if _, err := s.FindJob(ctx, userID, jobID); err != nil {
		return nil, err
	}
	h, err := s.findHistory(s.db.WithContext(ctx), userID, jobID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return &models.ConversationHistory{UserID: userID, TranslationJobID: jobID, Messages: []models.Message{}}, nil
	}
	return h, nil
}

// ListJobs returns the user's jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, userID string) ([]models.TranslationJob, error) {
	var jobs []models.TranslationJob
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// TurnRecord is one finished turn to persist.
type TurnRecord struct {
	UserID      string
	JobID       string // empty for a new job
	SourceLang  string
	TargetLang  string
	Format      string
	Input       string
	Title       string
	Instruction string
	Output      string
}

// SaveTurn writes the job and its history in one transaction. An existing
// job gets its output replaced and one bot message appended; a new job is
// created with the instruction and the reply as its first two messages.
func (s *Store) SaveTurn(ctx context.Context, rec TurnRecord) (*models.TranslationJob, error) {
	var job models.TranslationJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.JobID != "" {
			return s.appendTurn(tx, rec, &job)
		}
		return s.createTurn(tx, rec, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) appendTurn(tx *gorm.DB, rec TurnRecord, job *models.TranslationJob) error {
	if err := tx.Where("id = ? AND user_id = ?", rec.JobID, rec.UserID).First(job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to load job: %w", err)
	}
	job.OutputFile = rec.Output
	job.Status = models.StatusCompleted
	if err := tx.Model(job).Updates(map[string]any{
		"output_file": job.OutputFile,
		"status":      job.Status,
	}).Error; err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	h, err := s.findHistory(tx, rec.UserID, rec.JobID)
	if err != nil {
		return err
	}
	reply := models.Message{Role: models.RoleBot, Content: rec.Output}
	if h == nil {
		h = &models.ConversationHistory{
			UserID:           rec.UserID,
			TranslationJobID: rec.JobID,
			Messages:         []models.Message{reply},
		}
		if err := tx.Create(h).Error; err != nil {
			return fmt.Errorf("failed to create history: %w", err)
		}
		return nil
	}
	h.Messages = append(h.Messages, reply)
	if err := tx.Save(h).Error; err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *Store) createTurn(tx *gorm.DB, rec TurnRecord, job *models.TranslationJob) error {
	format := rec.Format
	if format == "" {
		format = FormatText
	}
	*job = models.TranslationJob{
		UserID:      rec.UserID,
		InputFile:   rec.Input,
		OutputFile:  rec.Output,
		SourceLang:  rec.SourceLang,
		TargetLangs: []string{rec.TargetLang},
		Format:      format,
		Status:      models.StatusCompleted,
		Title:       rec.Title,
	}
	if err := tx.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	h := models.ConversationHistory{
		UserID:           rec.UserID,
		TranslationJobID: job.ID,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: rec.Instruction},
			{Role: models.RoleBot, Content: rec.Output},
		},
	}
	if err := tx.Create(&h).Error; err != nil {
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

func (s *Store) findHistory(db *gorm.DB, userID, jobID string) (*models.ConversationHistory, error) {
	var h models.ConversationHistory
	err := db.Where("translation_job_id = ? AND user_id = ?", jobID, userID).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return &h, nil
}
