package repo

import (
	"context"
	"testing"
	"time"
)

func TestSessionsStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	st, err := SessionsStats(ctx, db)
	if err != nil {
		t.Fatalf("SessionsStats empty: %v", err)
	}
	if st.Total != 0 || st.LastEnd != nil {
		t.Fatalf("empty stats unexpected: %+v", st)
	}

	p, _ := CreateAnonymousProfile(ctx, db, "fp-st")
	a, _ := CreateSession(ctx, db, "r1", "c1", p.ID)
	_, _ = CreateSession(ctx, db, "r2", "c2", p.ID)

	if err := EndSession(ctx, db, a.ID, "idle_timeout", time.Now().UTC(), 12); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	st, err = SessionsStats(ctx, db)
	if err != nil {
		t.Fatalf("SessionsStats: %v", err)
	}
	if st.Total != 2 || st.Active != 1 || st.Swept != 1 || st.LastEnd == nil {
		t.Fatalf("stats unexpected: %+v", st)
	}
}

func TestProfilesStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	anon, _ := CreateAnonymousProfile(ctx, db, "fp-1")
	auth, _ := CreateAuthenticatedProfile(ctx, db, "jdoe", "+3069000000", "", "fp-1")
	if err := MergeProfiles(ctx, db, anon.ID, auth.ID); err != nil {
		t.Fatalf("MergeProfiles: %v", err)
	}

	st, err := ProfilesStats(ctx, db)
	if err != nil {
		t.Fatalf("ProfilesStats: %v", err)
	}
	if st.Total != 1 || st.Authenticated != 1 || st.Merged != 1 {
		t.Fatalf("stats unexpected: %+v", st)
	}
}
