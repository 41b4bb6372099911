package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cybertechlabs/go-voice-backend/internal/repo"
	"github.com/cybertechlabs/go-voice-backend/internal/session"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:adminh_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seed creates a profile with one session and n messages, returning both IDs.
func seed(t *testing.T, db *gorm.DB, n int) (profileID, sessionID string) {
	t.Helper()
	ctx := context.Background()
	prof, err := repo.CreateAnonymousProfile(ctx, db, "fp-"+uuid.NewString())
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	sess, err := repo.CreateSession(ctx, db, "room-1", "caller-1", prof.ID)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := repo.CreateMessage(ctx, db, sess.ID, prof.ID, role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("seed message %d: %v", i, err)
		}
		// keep created_at strictly increasing for order assertions
		time.Sleep(2 * time.Millisecond)
	}
	return prof.ID, sess.ID
}

func newTestRouter(t *testing.T, db *gorm.DB, reg *session.Registry) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(db, reg)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.GET("/sessions/:id/messages", h.ListSessionMessages)
	r.GET("/profiles", h.ListProfiles)
	r.GET("/profiles/:id", h.GetProfile)
	r.GET("/stats", h.Stats)
	return r
}

func doGet(t *testing.T, r *gin.Engine, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("GET %s: invalid JSON: %v", path, err)
		}
	}
	return w
}

func TestListSessions_PaginationClamps(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	prof, err := repo.CreateAnonymousProfile(ctx, db, "fp-list")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := repo.CreateSession(ctx, db, fmt.Sprintf("room-%d", i), "caller", prof.ID); err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
	}
	r := newTestRouter(t, db, nil)

	var resp ListSessionsResponse
	w := doGet(t, r, "/sessions?page=1&page_size=2", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(resp.Sessions))
	}
	p := resp.Pagination
	if p.Total != 3 || p.TotalPages != 2 || !p.HasNext {
		t.Fatalf("unexpected pagination: %+v", p)
	}

	// Junk params fall back to defaults; oversized page_size is capped.
	resp = ListSessionsResponse{}
	w = doGet(t, r, "/sessions?page=abc&page_size=9999", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if resp.Pagination.Page != 1 || resp.Pagination.PageSize != 100 {
		t.Fatalf("expected clamped pagination, got %+v", resp.Pagination)
	}

	// Page past the end is valid and empty.
	resp = ListSessionsResponse{}
	w = doGet(t, r, "/sessions?page=5&page_size=2", &resp)
	if w.Code != http.StatusOK || len(resp.Sessions) != 0 {
		t.Fatalf("expected empty page, got code=%d n=%d", w.Code, len(resp.Sessions))
	}
	if resp.Pagination.HasNext {
		t.Fatalf("last page must not report has_next")
	}
}

func TestGetSession_Validation_NotFound_AndSummary(t *testing.T) {
	db := newTestDB(t)
	profID, sessID := seed(t, db, 2)
	r := newTestRouter(t, db, nil)

	// Invalid id → 400
	w := doGet(t, r, "/sessions/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad uuid: status=%d", w.Code)
	}

	// Unknown but valid uuid → 404
	w = doGet(t, r, "/sessions/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status=%d", w.Code)
	}

	// Known session, no summary yet
	var detail SessionDetailResponse
	w = doGet(t, r, "/sessions/"+sessID, &detail)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if detail.Session == nil || detail.Session.ID != sessID {
		t.Fatalf("unexpected session: %+v", detail.Session)
	}
	if detail.Summary != nil {
		t.Fatalf("expected no summary, got %+v", detail.Summary)
	}

	// Attach a summary and fetch again
	if _, err := repo.CreateSummary(context.Background(), db, sessID, profID,
		"Conversation with 2 messages (1 from user).", "balance_check", "neutral", "resolved",
		[]string{"account"}); err != nil {
		t.Fatalf("create summary: %v", err)
	}
	detail = SessionDetailResponse{}
	w = doGet(t, r, "/sessions/"+sessID, &detail)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if detail.Summary == nil || detail.Summary.Intent != "balance_check" {
		t.Fatalf("expected attached summary, got %+v", detail.Summary)
	}
}

func TestListSessionMessages_OrderAndPaging(t *testing.T) {
	db := newTestDB(t)
	_, sessID := seed(t, db, 5)
	r := newTestRouter(t, db, nil)

	// Existence check runs before pagination.
	w := doGet(t, r, "/sessions/"+uuid.NewString()+"/messages", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status=%d", w.Code)
	}

	var resp ListMessagesResponse
	w = doGet(t, r, "/sessions/"+sessID+"/messages?page=1&page_size=3", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(resp.Messages) != 3 || resp.Pagination.Total != 5 {
		t.Fatalf("expected 3 of 5 messages, got %d of %d", len(resp.Messages), resp.Pagination.Total)
	}
	if resp.Messages[0].Content != "turn 0" {
		t.Fatalf("expected chronological order, first=%q", resp.Messages[0].Content)
	}

	resp = ListMessagesResponse{}
	w = doGet(t, r, "/sessions/"+sessID+"/messages?page=2&page_size=3", &resp)
	if w.Code != http.StatusOK || len(resp.Messages) != 2 {
		t.Fatalf("expected remaining 2 messages, got code=%d n=%d", w.Code, len(resp.Messages))
	}
}

func TestGetProfile_WithSummaries(t *testing.T) {
	db := newTestDB(t)
	profID, sessID := seed(t, db, 2)
	if _, err := repo.CreateSummary(context.Background(), db, sessID, profID,
		"short summary", "help", "positive", "resolved", nil); err != nil {
		t.Fatalf("create summary: %v", err)
	}
	r := newTestRouter(t, db, nil)

	w := doGet(t, r, "/profiles/nope", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad uuid: status=%d", w.Code)
	}
	w = doGet(t, r, "/profiles/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown profile: status=%d", w.Code)
	}

	var detail ProfileDetailResponse
	w = doGet(t, r, "/profiles/"+profID, &detail)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if detail.Profile == nil || detail.Profile.ID != profID {
		t.Fatalf("unexpected profile: %+v", detail.Profile)
	}
	if len(detail.Summaries) != 1 || detail.Summaries[0].Sentiment != "positive" {
		t.Fatalf("unexpected summaries: %+v", detail.Summaries)
	}
}

func TestListProfiles_ExcludesMerged(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	anon, err := repo.CreateAnonymousProfile(ctx, db, "fp-a")
	if err != nil {
		t.Fatalf("anon: %v", err)
	}
	auth, err := repo.CreateAuthenticatedProfile(ctx, db, "jdoe", "+15551234567", "", "fp-b")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if err := repo.MergeProfiles(ctx, db, anon.ID, auth.ID); err != nil {
		t.Fatalf("merge: %v", err)
	}
	r := newTestRouter(t, db, nil)

	var resp ListProfilesResponse
	w := doGet(t, r, "/profiles", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(resp.Profiles) != 1 || resp.Profiles[0].ID != auth.ID {
		t.Fatalf("expected only the merge target, got %+v", resp.Profiles)
	}
}

func TestStats_CountsAndTrackedGauge(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	profID, _ := seed(t, db, 1)
	ended, err := repo.CreateSession(ctx, db, "room-2", "caller-2", profID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := repo.EndSession(ctx, db, ended.ID, session.EndReasonIdle, time.Now().UTC(), 42); err != nil {
		t.Fatalf("end session: %v", err)
	}

	// Without a registry the tracked gauge stays zero.
	r := newTestRouter(t, db, nil)
	var resp StatsResponse
	w := doGet(t, r, "/stats", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if resp.Sessions.Total != 2 || resp.Sessions.Active != 1 || resp.Sessions.Swept != 1 {
		t.Fatalf("unexpected session stats: %+v", resp.Sessions)
	}
	if resp.Sessions.LastEnd == nil {
		t.Fatalf("expected last end timestamp")
	}
	if resp.Profiles.Total != 1 {
		t.Fatalf("unexpected profile stats: %+v", resp.Profiles)
	}
	if resp.Tracked != 0 {
		t.Fatalf("tracked should be 0 without a registry, got %d", resp.Tracked)
	}

	// With a registry the in-memory count is reported.
	reg := session.NewRegistry(db, nil, 1, time.Millisecond)
	if _, _, err := reg.CreateSession(ctx, "room-3", "caller-3", "fp-live"); err != nil {
		t.Fatalf("registry session: %v", err)
	}
	r2 := newTestRouter(t, db, reg)
	resp = StatsResponse{}
	w = doGet(t, r2, "/stats", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if resp.Tracked != 1 {
		t.Fatalf("expected tracked=1, got %d", resp.Tracked)
	}
}
