// Package session implements the session registry and lifecycle manager:
// one active session per room/participant pair, caller profile resolution
// and merge-on-authentication, serialized turn recording, the web-search
// permission state machine, and idle sweeping.
//
// Concurrency model: a registry-level RWMutex guards only the in-memory
// map of active sessions; each session carries its own mutex so turns
// within a session are strictly ordered while different sessions proceed
// in parallel. No lock is ever held across a database or network call
// made on behalf of another session.
//
// Observability: public methods are OpenTelemetry-instrumented and the
// registry exports Prometheus counters (see metrics.go).
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cybertechlabs/go-voice-backend/internal/domain"
	"github.com/cybertechlabs/go-voice-backend/internal/repo"
)

const (
	// End reasons persisted on sessions.
	EndReasonExplicit     = "ended"
	EndReasonDisconnected = "participant_disconnected"
	EndReasonIdle         = "idle_timeout"
)

// Clock abstracts time for the registry and sweeper; tests inject a fake.
type Clock func() time.Time

// Summarizer produces a best-effort conversation summary when a session
// ends. Failures are logged, never propagated.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID, profileID string) error
}

// state is the in-memory handle for one active session. Its mutex
// serializes turn recording and lifecycle writes for that session.
type state struct {
	mu        sync.Mutex
	sessionID string
	roomKey   string
}

// Registry owns the set of active sessions and all lifecycle operations.
type Registry struct {
	DB         *gorm.DB
	Now        Clock
	Summarizer Summarizer // optional

	TurnRetries    int
	TurnRetryDelay time.Duration

	mu     sync.RWMutex
	active map[string]*state // session ID -> state
	byRoom map[string]string // room|participant -> session ID
}

// NewRegistry constructs a Registry with sane defaults applied.
func NewRegistry(db *gorm.DB, now Clock, retries int, retryDelay time.Duration) *Registry {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if retries < 1 {
		retries = 3
	}
	if retryDelay < 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &Registry{
		DB:             db,
		Now:            now,
		TurnRetries:    retries,
		TurnRetryDelay: retryDelay,
		active:         make(map[string]*state),
		byRoom:         make(map[string]string),
	}
}

func roomKey(room, participant string) string { return room + "|" + participant }

// CreateSession starts a session for a participant in a room, resolving (or
// creating) the caller profile from the device fingerprint. A second active
// session for the same room/participant pair is rejected with
// ErrDuplicateActiveSession. An empty fingerprint gets a generated one, so
// every anonymous profile carries a fingerprint identifier.
func (r *Registry) CreateSession(ctx context.Context, room, participant, fingerprint string) (*domain.Session, *domain.Profile, error) {
	tr := otel.Tracer("session/Registry")
	ctx, span := tr.Start(ctx, "CreateSession",
		trace.WithAttributes(
			attribute.String("session.room", room),
			attribute.String("session.participant", participant),
		),
	)
	defer span.End()

	key := roomKey(room, participant)

	r.mu.Lock()
	if _, exists := r.byRoom[key]; exists {
		r.mu.Unlock()
		return nil, nil, ErrDuplicateActiveSession
	}
	r.mu.Unlock()

	// The DB is the authority: a previous process may own the pair.
	if _, err := repo.FindActiveSession(ctx, r.DB, room, participant); err == nil {
		return nil, nil, ErrDuplicateActiveSession
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, nil, err
	}

	profile, err := r.resolveProfile(ctx, fingerprint)
	if err != nil {
		return nil, nil, err
	}

	sess, err := repo.CreateSession(ctx, r.DB, room, participant, profile.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.TouchProfile(ctx, r.DB, profile.ID, 1, 0); err != nil {
		log.Warn().Err(err).Str("profile_id", profile.ID).Msg("profile session counter bump failed")
	}

	r.mu.Lock()
	// A concurrent CreateSession for the same pair may have won the race
	// between our check and now; the loser ends its orphan row.
	if _, exists := r.byRoom[key]; exists {
		r.mu.Unlock()
		_ = repo.EndSession(ctx, r.DB, sess.ID, EndReasonExplicit, r.Now(), 0)
		return nil, nil, ErrDuplicateActiveSession
	}
	r.active[sess.ID] = &state{sessionID: sess.ID, roomKey: key}
	r.byRoom[key] = sess.ID
	r.mu.Unlock()

	sessionsStarted.Inc()
	log.Info().
		Str("session_id", sess.ID).
		Str("room", room).
		Str("participant", participant).
		Str("profile_id", profile.ID).
		Msg("session started")
	return sess, profile, nil
}

// resolveProfile finds the profile for a fingerprint or creates an
// anonymous one. Empty fingerprints are replaced with a generated UUID.
func (r *Registry) resolveProfile(ctx context.Context, fingerprint string) (*domain.Profile, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		fingerprint = uuid.NewString()
	}
	p, err := repo.FindProfileByFingerprint(ctx, r.DB, fingerprint)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return repo.CreateAnonymousProfile(ctx, r.DB, fingerprint)
}

// lookup returns the in-memory state for a session, rehydrating it from the
// DB when this process has no handle yet (e.g. after a restart).
func (r *Registry) lookup(ctx context.Context, sessionID string) (*state, error) {
	r.mu.RLock()
	st, ok := r.active[sessionID]
	r.mu.RUnlock()
	if ok {
		return st, nil
	}

	sess, err := repo.GetSession(ctx, r.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.EndedAt != nil {
		return nil, ErrSessionAlreadyEnded
	}

	key := roomKey(sess.RoomName, sess.ParticipantIdentity)
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.active[sessionID]; ok {
		return st, nil
	}
	st = &state{sessionID: sessionID, roomKey: key}
	r.active[sessionID] = st
	r.byRoom[key] = sessionID
	return st, nil
}

// forget drops a session from the in-memory maps.
func (r *Registry) forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.active[sessionID]; ok {
		delete(r.byRoom, st.roomKey)
		delete(r.active, sessionID)
	}
}

// RecordTurn persists one conversation turn: the message row, the session
// activity bump, and the profile counter, in a transaction. Turns within a
// session are strictly serialized; turns on different sessions proceed in
// parallel. Transient failures are retried with linear backoff.
func (r *Registry) RecordTurn(ctx context.Context, sessionID, role, content string) (*domain.Message, error) {
	tr := otel.Tracer("session/Registry")
	ctx, span := tr.Start(ctx, "RecordTurn",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	st, err := r.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	var msg *domain.Message
	var lastErr error
	for attempt := 1; attempt <= r.TurnRetries; attempt++ {
		lastErr = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sess, err := repo.GetSession(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			if sess.EndedAt != nil {
				return ErrSessionAlreadyEnded
			}
			m, err := repo.CreateMessage(ctx, tx, sessionID, sess.ProfileID, role, content)
			if err != nil {
				return err
			}
			if err := repo.BumpSessionActivity(ctx, tx, sessionID, r.Now(), 1); err != nil {
				return err
			}
			if err := repo.TouchProfile(ctx, tx, sess.ProfileID, 0, 1); err != nil {
				return err
			}
			msg = m
			return nil
		})
		if lastErr == nil {
			turnsRecorded.WithLabelValues(role).Inc()
			return msg, nil
		}
		if errors.Is(lastErr, ErrSessionAlreadyEnded) || errors.Is(lastErr, repo.ErrNotFound) {
			break
		}
		if attempt < r.TurnRetries {
			time.Sleep(time.Duration(attempt) * r.TurnRetryDelay)
		}
	}
	if errors.Is(lastErr, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return nil, lastErr
}

// AuthenticateUser upgrades the session's caller from anonymous to
// authenticated. Any one of username, phone number or email suffices; with
// all three missing the call is a no-op reporting false. The anonymous
// profile is merged into an existing authenticated profile when one matches,
// or into a freshly created one otherwise. Reports whether a merge happened.
func (r *Registry) AuthenticateUser(ctx context.Context, sessionID, username, phone, email string) (bool, error) {
	tr := otel.Tracer("session/Registry")
	ctx, span := tr.Start(ctx, "AuthenticateUser",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	username = strings.TrimSpace(username)
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)
	if username == "" && phone == "" && email == "" {
		return false, nil
	}

	st, err := r.lookup(ctx, sessionID)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := repo.GetSession(ctx, r.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrSessionNotFound
		}
		return false, err
	}
	if sess.EndedAt != nil {
		return false, ErrSessionAlreadyEnded
	}

	current, err := repo.GetProfile(ctx, r.DB, sess.ProfileID)
	if err != nil {
		return false, err
	}
	if current.Type == domain.ProfileAuthenticated {
		// Already authenticated; nothing to merge.
		return false, nil
	}

	target, err := repo.FindAuthenticatedProfile(ctx, r.DB, username, phone, email)
	if errors.Is(err, repo.ErrNotFound) {
		target, err = repo.CreateAuthenticatedProfile(ctx, r.DB, username, phone, email, current.Fingerprint)
	}
	if err != nil {
		return false, err
	}

	if err := repo.MergeProfiles(ctx, r.DB, current.ID, target.ID); err != nil {
		return false, err
	}
	profilesMerged.Inc()
	log.Info().
		Str("session_id", sessionID).
		Str("anonymous_profile", current.ID).
		Str("target_profile", target.ID).
		Msg("caller authenticated, profiles merged")
	return true, nil
}

// RequestSearchPermission moves the session's permission state to pending,
// remembering the query awaiting the caller's answer. Legal from the none
// and denied states. Re-asking for the query already pending is a no-op;
// a different query while one is pending, or any request after a grant, is
// ErrInvalidStateTransition.
func (r *Registry) RequestSearchPermission(ctx context.Context, sessionID, query string) error {
	st, err := r.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := repo.GetSession(ctx, r.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if sess.EndedAt != nil {
		return ErrSessionAlreadyEnded
	}
	switch sess.SearchPermission {
	case domain.SearchPermissionNone, domain.SearchPermissionDenied:
		// allowed
	case domain.SearchPermissionPending:
		if sess.PendingSearchQuery == query {
			return nil
		}
		return ErrInvalidStateTransition
	default:
		return ErrInvalidStateTransition
	}
	return r.setPermission(ctx, sessionID, domain.SearchPermissionPending, query)
}

// ResolveSearchPermission resolves a pending permission request to granted
// or denied, returning the query that was awaiting the answer and clearing
// it. Without a pending request it is ErrNoPendingPermissionRequest.
func (r *Registry) ResolveSearchPermission(ctx context.Context, sessionID string, granted bool) (string, error) {
	st, err := r.lookup(ctx, sessionID)
	if err != nil {
		return "", err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := repo.GetSession(ctx, r.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	if sess.EndedAt != nil {
		return "", ErrSessionAlreadyEnded
	}
	if sess.SearchPermission != domain.SearchPermissionPending {
		return "", ErrNoPendingPermissionRequest
	}
	next := domain.SearchPermissionDenied
	if granted {
		next = domain.SearchPermissionGranted
	}
	if err := r.setPermission(ctx, sessionID, next, ""); err != nil {
		return "", err
	}
	return sess.PendingSearchQuery, nil
}

// SearchPermitted reports whether the session currently holds a web-search
// grant.
func (r *Registry) SearchPermitted(ctx context.Context, sessionID string) (bool, error) {
	sess, err := repo.GetSession(ctx, r.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrSessionNotFound
		}
		return false, err
	}
	return sess.SearchPermission == domain.SearchPermissionGranted, nil
}

func (r *Registry) setPermission(ctx context.Context, sessionID, next, pendingQuery string) error {
	if err := repo.SetSearchPermission(ctx, r.DB, sessionID, next, pendingQuery); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionAlreadyEnded
		}
		return err
	}
	return nil
}

// EndSession closes a session with the given reason. Explicit ends measure
// duration to now; disconnect ends measure to the last recorded activity.
// A second end reports ErrSessionAlreadyEnded. The conversation summary is
// written best-effort.
func (r *Registry) EndSession(ctx context.Context, sessionID, reason string) error {
	tr := otel.Tracer("session/Registry")
	ctx, span := tr.Start(ctx, "EndSession",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("session.end_reason", reason),
		),
	)
	defer span.End()

	st, err := r.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := repo.GetSession(ctx, r.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if sess.EndedAt != nil {
		r.forget(sessionID)
		return ErrSessionAlreadyEnded
	}

	now := r.Now()
	end := now
	if reason == EndReasonDisconnected {
		end = sess.LastActivityAt
	}
	duration := end.Sub(sess.CreatedAt).Seconds()
	if duration < 0 {
		duration = 0
	}

	if err := repo.EndSession(ctx, r.DB, sessionID, reason, now, duration); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			r.forget(sessionID)
			return ErrSessionAlreadyEnded
		}
		return err
	}
	r.forget(sessionID)
	sessionsEnded.WithLabelValues(reason).Inc()

	r.summarize(ctx, sessionID, sess.ProfileID)
	log.Info().
		Str("session_id", sessionID).
		Str("reason", reason).
		Float64("duration_s", duration).
		Msg("session ended")
	return nil
}

// summarize writes the conversation summary, logging failures instead of
// propagating them.
func (r *Registry) summarize(ctx context.Context, sessionID, profileID string) {
	if r.Summarizer == nil {
		return
	}
	if err := r.Summarizer.Summarize(ctx, sessionID, profileID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("conversation summary failed")
	}
}

// SweepIdleSessions ends every active session idle past the threshold,
// returning the number of sessions reaped. The per-session end write
// re-checks idleness, so a session that records a turn mid-sweep survives.
func (r *Registry) SweepIdleSessions(ctx context.Context, idleTimeout time.Duration) (int, error) {
	tr := otel.Tracer("session/Registry")
	ctx, span := tr.Start(ctx, "SweepIdleSessions")
	defer span.End()

	cutoff := r.Now().Add(-idleTimeout)
	ids, err := repo.ListIdleSessionIDs(ctx, r.DB, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, id := range ids {
		ok, err := repo.EndSessionIfIdle(ctx, r.DB, id, cutoff, r.Now())
		if err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("idle sweep end failed")
			continue
		}
		if !ok {
			continue
		}
		reaped++
		sessionsEnded.WithLabelValues(EndReasonIdle).Inc()

		sess, err := repo.GetSession(ctx, r.DB, id)
		if err == nil {
			r.summarize(ctx, id, sess.ProfileID)
		}
		r.forget(id)
		log.Info().Str("session_id", id).Msg("idle session swept")
	}
	span.SetAttributes(attribute.Int("session.swept", reaped))
	return reaped, nil
}

// ActiveCount reports the number of sessions this process currently tracks.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
