// Admin read handlers.
//
// This file exposes the read-only admin surface over the conversation store:
//   - GET /sessions                (paginated session list)
//   - GET /sessions/{id}           (session detail with summary, if any)
//   - GET /sessions/{id}/messages  (paginated conversation transcript)
//   - GET /profiles                (paginated profile list)
//   - GET /profiles/{id}           (profile detail with recent summaries)
//   - GET /stats                   (aggregate counters)
//
// Handlers are transport-thin: validate inputs, delegate to the repo layer,
// shape the JSON envelope. Nothing here mutates state.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/domain"
	"github.com/cybertechlabs/go-voice-backend/internal/repo"
	"github.com/cybertechlabs/go-voice-backend/internal/session"
	"github.com/cybertechlabs/go-voice-backend/internal/utils"
)

// Handlers bundles the dependencies of the admin endpoints.
type Handlers struct {
	DB       *gorm.DB
	Registry *session.Registry // optional; enables the tracked-sessions gauge
}

// New constructs the handler set.
func New(db *gorm.DB, reg *session.Registry) *Handlers {
	return &Handlers{DB: db, Registry: reg}
}

// Pagination is the standard pagination metadata envelope.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSessionsResponse contains a page of sessions and pagination metadata.
type ListSessionsResponse struct {
	Sessions   []domain.Session `json:"sessions"`
	Pagination Pagination       `json:"pagination"`
}

// SessionDetailResponse is one session with its summary when available.
type SessionDetailResponse struct {
	Session *domain.Session             `json:"session"`
	Summary *domain.ConversationSummary `json:"summary,omitempty"`
}

// ListMessagesResponse contains a page of conversation turns.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ListProfilesResponse contains a page of caller profiles.
type ListProfilesResponse struct {
	Profiles   []domain.Profile `json:"profiles"`
	Pagination Pagination       `json:"pagination"`
}

// ProfileDetailResponse is one profile with its recent conversation summaries.
type ProfileDetailResponse struct {
	Profile   *domain.Profile              `json:"profile"`
	Summaries []domain.ConversationSummary `json:"summaries"`
}

// StatsResponse is the aggregate admin overview.
type StatsResponse struct {
	Sessions repo.SessionStats `json:"sessions"`
	Profiles repo.ProfileStats `json:"profiles"`
	// Tracked is the number of sessions this process holds in memory.
	Tracked int `json:"tracked"`
}

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// ListSessions returns a paginated list of sessions, newest first.
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	total, err := repo.CountSessions(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListSessionsPage(ctx, h.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// GetSession returns one session with its conversation summary when the
// session has been summarized.
func (h *Handlers) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	sess, err := repo.GetSession(ctx, h.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	resp := SessionDetailResponse{Session: sess}
	if cs, err := repo.GetSummaryBySession(ctx, h.DB, id); err == nil {
		resp.Summary = cs
	}
	ok(c, http.StatusOK, resp)
}

// ListSessionMessages returns the paginated transcript of a session in
// chronological order.
func (h *Handlers) ListSessionMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}
	if _, err := repo.GetSession(ctx, h.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	page, pageSize := clampPagination(c)
	total, err := repo.CountMessages(ctx, h.DB, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListMessagesPage(ctx, h.DB, id, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// ListProfiles returns a paginated list of caller profiles. Merged profile
// rows are excluded; they live on only as history under their target.
func (h *Handlers) ListProfiles(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	total, err := repo.CountProfiles(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListProfilesPage(ctx, h.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListProfilesResponse{
		Profiles:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// GetProfile returns one profile with its most recent conversation
// summaries.
func (h *Handlers) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "profile id must be a UUID")
		return
	}

	prof, err := repo.GetProfile(ctx, h.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	summaries, err := repo.ListSummariesByProfile(ctx, h.DB, id, 20)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ProfileDetailResponse{Profile: prof, Summaries: summaries})
}

// Stats returns the aggregate overview used by dashboards.
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	sessions, err := repo.SessionsStats(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
		return
	}
	profiles, err := repo.ProfilesStats(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
		return
	}

	resp := StatsResponse{Sessions: sessions, Profiles: profiles}
	if h.Registry != nil {
		resp.Tracked = h.Registry.ActiveCount()
	}
	ok(c, http.StatusOK, resp)
}
