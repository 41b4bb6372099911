package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestSummaries_CreateGetList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p, _ := CreateAnonymousProfile(ctx, db, "fp-sum")
	s, _ := CreateSession(ctx, db, "room-sum", "caller-sum", p.ID)

	cs, err := CreateSummary(ctx, db, s.ID, p.ID, "asked about balance codes", "balance_inquiry", "positive", "resolved", []string{"balance", "ussd"})
	if err != nil {
		t.Fatalf("CreateSummary: %v", err)
	}

	got, err := GetSummaryBySession(ctx, db, s.ID)
	if err != nil {
		t.Fatalf("GetSummaryBySession: %v", err)
	}
	if got.ID != cs.ID || got.Intent != "balance_inquiry" || got.ResolutionStatus != "resolved" {
		t.Fatalf("unexpected summary: %+v", got)
	}
	var topics []string
	if err := json.Unmarshal(got.Topics, &topics); err != nil || len(topics) != 2 {
		t.Fatalf("topics round-trip failed: %v %v", topics, err)
	}

	if _, err := GetSummaryBySession(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := ListSummariesByProfile(ctx, db, p.ID, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSummariesByProfile = %d, %v; want 1", len(list), err)
	}
}
