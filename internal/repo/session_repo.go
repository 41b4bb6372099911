// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model: creation, activity bumps, permission-state writes, and the two
// end paths (explicit end and conditional idle reap).
//
// Error semantics follow the rest of the package: ErrNotFound for missing
// rows, raw gorm errors otherwise. Conditional updates report "no rows
// affected" as ErrNotFound so callers can distinguish lost races.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/domain"
)

// CreateSession inserts a new active session for the given room/participant
// pair owned by profileID. LastActivityAt starts at now (UTC).
func CreateSession(ctx context.Context, db *gorm.DB, roomName, participant, profileID string) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:                  uuid.NewString(),
		RoomName:            roomName,
		ParticipantIdentity: participant,
		ProfileID:           profileID,
		SearchPermission:    domain.SearchPermissionNone,
		LastActivityAt:      now,
		CreatedAt:           now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by ID. Returns ErrNotFound if missing.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindActiveSession returns the active (not ended) session for the given
// room/participant pair, or ErrNotFound when none exists.
func FindActiveSession(ctx context.Context, db *gorm.DB, roomName, participant string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("room_name = ? AND participant_identity = ? AND ended_at IS NULL", roomName, participant).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// BumpSessionActivity advances LastActivityAt to at and increments the
// message counter by delta, provided the session is still active.
// Returns ErrNotFound when the session is missing or already ended.
func BumpSessionActivity(ctx context.Context, db *gorm.DB, id string, at time.Time, delta int) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]any{
			"last_activity_at": at.UTC(),
			"message_count":    gorm.Expr("message_count + ?", delta),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetSearchPermission writes the web-search permission state for an active
// session, together with the query awaiting the caller's answer (empty for
// every state but pending). Transition legality is enforced by the registry;
// this is a plain conditional write. Returns ErrNotFound when the session is
// gone or ended.
func SetSearchPermission(ctx context.Context, db *gorm.DB, id, state, pendingQuery string) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]any{
			"search_permission":    state,
			"pending_search_query": pendingQuery,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// EndSession marks a session ended with the given reason and duration.
// The write is conditional on the session still being active; a second end
// attempt reports ErrNotFound, which the registry maps to its own sentinel.
func EndSession(ctx context.Context, db *gorm.DB, id, reason string, endedAt time.Time, durationSeconds float64) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]any{
			"ended_at":         endedAt.UTC(),
			"end_reason":       reason,
			"duration_seconds": durationSeconds,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListIdleSessionIDs returns IDs of active sessions whose last activity is
// strictly before cutoff. The sweeper re-checks the same predicate when
// ending each candidate, so a stale read here is harmless.
func ListIdleSessionIDs(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("ended_at IS NULL AND last_activity_at < ?", cutoff.UTC()).
		Pluck("id", &ids).Error
	return ids, err
}

// EndSessionIfIdle ends a session only if it is still active and still idle
// past cutoff, reporting whether the write landed. A session that recorded
// a turn between the candidate scan and this call is left untouched.
func EndSessionIfIdle(ctx context.Context, db *gorm.DB, id string, cutoff, endedAt time.Time) (bool, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("id = ? AND ended_at IS NULL AND last_activity_at < ?", id, cutoff.UTC()).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	duration := s.LastActivityAt.Sub(s.CreatedAt).Seconds()
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND ended_at IS NULL AND last_activity_at < ?", id, cutoff.UTC()).
		Updates(map[string]any{
			"ended_at":         endedAt.UTC(),
			"end_reason":       "idle_timeout",
			"duration_seconds": duration,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListSessionsPage returns a paginated slice of sessions ordered by creation
// time descending. Use CountSessions for pagination metadata.
func ListSessionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountSessions returns the total number of sessions.
func CountSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Session{}).Count(&total).Error
	return total, err
}

// CountActiveSessions returns the number of sessions not yet ended.
func CountActiveSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("ended_at IS NULL").
		Count(&total).Error
	return total, err
}
