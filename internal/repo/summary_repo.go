// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ConversationSummary model.
package repo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/domain"
)

// CreateSummary persists the distilled outcome of an ended session. Topics
// are stored as a JSON array. One summary per session (unique index).
func CreateSummary(ctx context.Context, db *gorm.DB, sessionID, profileID, summary, intent, sentiment, resolution string, topics []string) (*domain.ConversationSummary, error) {
	var topicsJSON datatypes.JSON
	if len(topics) > 0 {
		b, err := json.Marshal(topics)
		if err != nil {
			return nil, err
		}
		topicsJSON = datatypes.JSON(b)
	}
	cs := &domain.ConversationSummary{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		ProfileID:        profileID,
		Summary:          summary,
		Intent:           intent,
		Sentiment:        sentiment,
		ResolutionStatus: resolution,
		Topics:           topicsJSON,
	}
	if err := db.WithContext(ctx).Create(cs).Error; err != nil {
		return nil, err
	}
	return cs, nil
}

// GetSummaryBySession fetches the summary for a session.
// Returns ErrNotFound if the session was never summarized.
func GetSummaryBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.ConversationSummary, error) {
	var cs domain.ConversationSummary
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&cs).Error
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListSummariesByProfile returns all summaries belonging to a profile,
// newest first. Used by the admin read surface.
func ListSummariesByProfile(ctx context.Context, db *gorm.DB, profileID string, limit int) ([]domain.ConversationSummary, error) {
	var out []domain.ConversationSummary
	err := db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
