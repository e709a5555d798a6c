package repository

import (
	"context"

	"github.com/nsvirk/ocbridge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository records successful logins
type SessionRepository struct {
	DB *gorm.DB
}

// NewSessionRepository creates a new repository for sessions
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// UpsertSession stores the latest login of a user
func (r *SessionRepository) UpsertSession(ctx context.Context, session *models.SessionModel) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enctoken", "login_time", "source", "updated_at"}),
	}).Create(session).Error
}

// GetSessionByUserId gets a session by user ID
func (r *SessionRepository) GetSessionByUserId(ctx context.Context, userId string) (*models.SessionModel, error) {
	var session models.SessionModel
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userId).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}
