// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the admin read surface. Each function is context-aware and safe to call
// from the registry or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/domain"
)

// SessionStats aggregates session counts for the admin overview.
type SessionStats struct {
	Total   int64
	Active  int64
	Swept   int64
	LastEnd *time.Time
}

// ProfileStats aggregates profile counts for the admin overview.
type ProfileStats struct {
	Total         int64
	Authenticated int64
	Merged        int64
}

// SessionsStats returns aggregate session metadata: totals, active count,
// idle-reaped count, and the most recent end timestamp (nil if no session
// has ended yet).
func SessionsStats(ctx context.Context, db *gorm.DB) (SessionStats, error) {
	var st SessionStats

	if err := db.WithContext(ctx).Model(&domain.Session{}).Count(&st.Total).Error; err != nil {
		return st, err
	}
	if err := db.WithContext(ctx).Model(&domain.Session{}).
		Where("ended_at IS NULL").Count(&st.Active).Error; err != nil {
		return st, err
	}
	if err := db.WithContext(ctx).Model(&domain.Session{}).
		Where("end_reason = ?", "idle_timeout").Count(&st.Swept).Error; err != nil {
		return st, err
	}
	if st.Total == st.Active {
		return st, nil
	}

	// Get latest ended_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		EndedAt time.Time
	}
	err := db.WithContext(ctx).Model(&domain.Session{}).
		Select("ended_at").
		Where("ended_at IS NOT NULL").
		Order("ended_at DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return st, err
	}
	st.LastEnd = &row.EndedAt
	return st, nil
}

// ProfilesStats returns aggregate profile metadata: non-merged totals, the
// authenticated subset, and how many rows were absorbed by merges.
func ProfilesStats(ctx context.Context, db *gorm.DB) (ProfileStats, error) {
	var st ProfileStats

	if err := db.WithContext(ctx).Model(&domain.Profile{}).
		Where("merged_into_profile_id IS NULL").Count(&st.Total).Error; err != nil {
		return st, err
	}
	if err := db.WithContext(ctx).Model(&domain.Profile{}).
		Where("merged_into_profile_id IS NULL AND type = ?", domain.ProfileAuthenticated).
		Count(&st.Authenticated).Error; err != nil {
		return st, err
	}
	if err := db.WithContext(ctx).Model(&domain.Profile{}).
		Where("merged_into_profile_id IS NOT NULL").Count(&st.Merged).Error; err != nil {
		return st, err
	}
	return st, nil
}
