package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Profile{}).TableName():             "profiles",
		(Session{}).TableName():             "sessions",
		(Message{}).TableName():             "messages",
		(ConversationSummary{}).TableName(): "conversation_summaries",
		(DocumentSource{}).TableName():      "document_sources",
		(DocumentChunk{}).TableName():       "document_chunks",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	// DocumentChunk is excluded: its vector column needs pgvector.
	if err := db.AutoMigrate(&Profile{}, &Session{}, &Message{}, &ConversationSummary{}, &DocumentSource{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Profile{}, &Session{}, &Message{}, &ConversationSummary{}, &DocumentSource{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	if !m.HasIndex(&Session{}, "idx_room_participant") {
		t.Fatalf("expected index idx_room_participant on sessions")
	}
	if !m.HasIndex(&Message{}, "idx_session_msgs") {
		t.Fatalf("expected index idx_session_msgs on messages")
	}

	now := time.Now().UTC()

	p := &Profile{ID: "p1", Type: ProfileAnonymous, Fingerprint: "fp-1", FirstSeenAt: now, LastSeenAt: now}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("insert profile: %v", err)
	}

	s := &Session{ID: "s1", RoomName: "room-1", ParticipantIdentity: "caller-1", ProfileID: "p1", SearchPermission: SearchPermissionNone, LastActivityAt: now}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("insert session: %v", err)
	}

	m1 := &Message{ID: "m1", SessionID: "s1", ProfileID: "p1", Role: "user", Content: "hello", CreatedAt: now}
	m2 := &Message{ID: "m2", SessionID: "s1", ProfileID: "p1", Role: "assistant", Content: "hi there", CreatedAt: now.Add(time.Second)}
	if err := db.Create(m1).Error; err != nil {
		t.Fatalf("insert m1: %v", err)
	}
	if err := db.Create(m2).Error; err != nil {
		t.Fatalf("insert m2: %v", err)
	}

	sum := &ConversationSummary{ID: "cs1", SessionID: "s1", ProfileID: "p1", Summary: "greeting only"}
	if err := db.Create(sum).Error; err != nil {
		t.Fatalf("insert summary: %v", err)
	}

	// One summary per session.
	dup := &ConversationSummary{ID: "cs2", SessionID: "s1", ProfileID: "p1", Summary: "dup"}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique index to reject second summary for same session")
	}

	// CASCADE: deleting the session removes its messages and summary.
	if err := db.Delete(&Session{}, "id = ?", "s1").Error; err != nil {
		t.Fatalf("delete session: %v", err)
	}
	var cnt int64
	if err := db.Model(&Message{}).Where("session_id = ?", "s1").Count(&cnt).Error; err != nil {
		t.Fatalf("count messages after session delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected messages to cascade-delete with session, got count=%d", cnt)
	}
	if err := db.Model(&ConversationSummary{}).Where("session_id = ?", "s1").Count(&cnt).Error; err != nil {
		t.Fatalf("count summaries after session delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected summary to cascade-delete with session, got count=%d", cnt)
	}
}
