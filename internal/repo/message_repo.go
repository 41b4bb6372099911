// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model (conversation turns within a session).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/domain"
)

// CreateMessage inserts a single conversation turn. Role must be "user" or
// "assistant" (enforced by a DB constraint). CreatedAt is set to UTC now.
func CreateMessage(ctx context.Context, db *gorm.DB, sessionID, profileID, role, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ProfileID: profileID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns all messages of a session in chronological order.
// Returns an empty slice when the session has no messages.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListMessagesPage returns a paginated slice of a session's messages in
// chronological order. Use CountMessages for pagination metadata.
func ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages returns the total number of messages in a session.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	return total, err
}
