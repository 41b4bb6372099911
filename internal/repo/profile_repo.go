// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Profile
// model, including the merge operation that folds an anonymous profile into
// an authenticated one.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a profile is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Merged profiles (MergedIntoProfileID set) are excluded from every lookup
// in this file; only MergeProfiles touches them.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the registry layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateAnonymousProfile inserts a new anonymous Profile identified by the
// given device fingerprint. Timestamps are set to UTC now.
func CreateAnonymousProfile(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.Profile, error) {
	now := time.Now().UTC()
	p := &domain.Profile{
		ID:          uuid.NewString(),
		Type:        domain.ProfileAnonymous,
		Fingerprint: fingerprint,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetProfile fetches a profile by ID, excluding merged rows.
// Returns ErrNotFound if missing.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).
		Where("id = ? AND merged_into_profile_id IS NULL", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProfileByFingerprint returns the non-merged profile carrying the given
// fingerprint, preferring the most recently seen. Returns ErrNotFound when
// no such profile exists.
func FindProfileByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).
		Where("fingerprint = ? AND merged_into_profile_id IS NULL", fingerprint).
		Order("last_seen_at desc").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindAuthenticatedProfile returns the non-merged authenticated profile
// matching the first identity field provided, checked in order username,
// phone number, email. Returns ErrNotFound when no field is provided or no
// profile matches.
func FindAuthenticatedProfile(ctx context.Context, db *gorm.DB, username, phone, email string) (*domain.Profile, error) {
	var column, value string
	switch {
	case username != "":
		column, value = "username", username
	case phone != "":
		column, value = "phone_number", phone
	case email != "":
		column, value = "email", email
	default:
		return nil, ErrNotFound
	}

	var p domain.Profile
	err := db.WithContext(ctx).
		Where("type = ? AND "+column+" = ? AND merged_into_profile_id IS NULL",
			domain.ProfileAuthenticated, value).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateAuthenticatedProfile inserts a new authenticated Profile with the
// given identity fields. The fingerprint is carried over from the device
// the caller authenticated on.
func CreateAuthenticatedProfile(ctx context.Context, db *gorm.DB, username, phone, email, fingerprint string) (*domain.Profile, error) {
	now := time.Now().UTC()
	p := &domain.Profile{
		ID:          uuid.NewString(),
		Type:        domain.ProfileAuthenticated,
		Fingerprint: fingerprint,
		Username:    username,
		PhoneNumber: phone,
		Email:       email,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// TouchProfile bumps LastSeenAt and optionally the lifetime counters.
// Negative deltas are not expected and are passed through unchecked.
func TouchProfile(ctx context.Context, db *gorm.DB, id string, sessionDelta, messageDelta int) error {
	updates := map[string]any{
		"last_seen_at": time.Now().UTC(),
	}
	if sessionDelta != 0 {
		updates["session_count"] = gorm.Expr("session_count + ?", sessionDelta)
	}
	if messageDelta != 0 {
		updates["message_count"] = gorm.Expr("message_count + ?", messageDelta)
	}
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MergeProfiles folds the anonymous profile into the authenticated target in
// a single transaction: sessions, messages, and summaries are repointed, the
// target's lifetime counters absorb the source's, and the source row is
// marked merged (retained for audit, excluded from future lookups).
func MergeProfiles(ctx context.Context, db *gorm.DB, anonymousID, targetID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src domain.Profile
		if err := tx.Where("id = ? AND merged_into_profile_id IS NULL", anonymousID).First(&src).Error; err != nil {
			return err
		}
		var dst domain.Profile
		if err := tx.Where("id = ? AND merged_into_profile_id IS NULL", targetID).First(&dst).Error; err != nil {
			return err
		}

		if err := tx.Model(&domain.Session{}).
			Where("profile_id = ?", src.ID).
			Update("profile_id", dst.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Message{}).
			Where("profile_id = ?", src.ID).
			Update("profile_id", dst.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.ConversationSummary{}).
			Where("profile_id = ?", src.ID).
			Update("profile_id", dst.ID).Error; err != nil {
			return err
		}

		if err := tx.Model(&domain.Profile{}).
			Where("id = ?", dst.ID).
			Updates(map[string]any{
				"session_count": gorm.Expr("session_count + ?", src.SessionCount),
				"message_count": gorm.Expr("message_count + ?", src.MessageCount),
				"last_seen_at":  time.Now().UTC(),
			}).Error; err != nil {
			return err
		}

		return tx.Model(&domain.Profile{}).
			Where("id = ?", src.ID).
			Update("merged_into_profile_id", dst.ID).Error
	})
}

// ListProfilesPage returns a paginated slice of non-merged profiles ordered
// by last seen descending. Use CountProfiles for pagination metadata.
func ListProfilesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Profile, error) {
	var out []domain.Profile
	err := db.WithContext(ctx).
		Where("merged_into_profile_id IS NULL").
		Order("last_seen_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountProfiles returns the total number of non-merged profiles.
func CountProfiles(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("merged_into_profile_id IS NULL").
		Count(&total).Error
	return total, err
}
