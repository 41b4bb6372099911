// Package agent wires the conversation core to the transport layer: inbound
// connect/utterance/disconnect events on one side, spoken responses and
// structured tool notifications on the other.
//
// The agent preserves the retrieval engine's empty-result versus error
// distinction: an empty knowledge-base result triggers the web-search
// permission offer, a retrieval failure never does.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cybertechlabs/go-voice-backend/internal/ai"
	"github.com/cybertechlabs/go-voice-backend/internal/domain"
	"github.com/cybertechlabs/go-voice-backend/internal/repo"
	"github.com/cybertechlabs/go-voice-backend/internal/session"
)

// Spoken fallbacks. The agent owns user-facing wording; the core layers
// below only report typed conditions.
const (
	replyOfferSearch     = "I don't have that information in my knowledge base. Would you like me to search the web for it?"
	replySearchDeclined  = "Alright, I won't search the web. Is there anything else I can help you with?"
	replyRetrievalError  = "I'm having trouble accessing my knowledge base right now. Please try again in a moment."
	replySearchFailed    = "I ran into a problem while searching the web. Please try again or rephrase your question."
	replyGenerationError = "I'm having trouble putting an answer together right now. Please try again."
)

// affirmativeWords and negativeWords classify the caller's reply to a
// pending web-search offer.
var (
	affirmativeWords = []string{"yes", "yeah", "sure", "okay", "ok", "please", "go ahead"}
	negativeWords    = []string{"no", "nope", "don't", "not"}
)

// Transport emits spoken text and out-of-band notifications to a room.
type Transport interface {
	SendText(ctx context.Context, room, text string) error
	SendNotification(ctx context.Context, room string, n Notification) error
}

// Retriever produces a knowledge-base context block for a query. An empty
// string means nothing relevant was found; that is not an error.
type Retriever interface {
	Context(ctx context.Context, query string) (string, error)
}

// WebSearcher runs an external web search. Only invoked after the caller
// has granted permission.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Agent orchestrates one conversation turn end to end. The agent itself is
// stateless; the query awaiting a web-search answer lives on the session, so
// any process can settle an offer it did not make.
type Agent struct {
	Registry  *session.Registry
	Retriever Retriever
	Generator ai.TextGenerator // optional
	Searcher  WebSearcher      // optional; nil disables the search offer
	Transport Transport
}

// New constructs an Agent.
func New(reg *session.Registry, retriever Retriever, gen ai.TextGenerator, searcher WebSearcher, transport Transport) *Agent {
	return &Agent{
		Registry:  reg,
		Retriever: retriever,
		Generator: gen,
		Searcher:  searcher,
		Transport: transport,
	}
}

// HandleConnect resolves or creates the session for a participant joining a
// room. Reconnecting into an existing active session reuses it.
func (a *Agent) HandleConnect(ctx context.Context, room, participant, fingerprint string) (*domain.Session, error) {
	sess, _, err := a.Registry.CreateSession(ctx, room, participant, fingerprint)
	if errors.Is(err, session.ErrDuplicateActiveSession) {
		return repo.FindActiveSession(ctx, a.Registry.DB, room, participant)
	}
	return sess, err
}

// HandleUtterance processes one user turn: record it, settle any pending
// web-search offer, then answer from the knowledge base or offer a search.
func (a *Agent) HandleUtterance(ctx context.Context, room, participant, text string) error {
	sess, err := a.resolveSession(ctx, room, participant)
	if err != nil {
		return err
	}

	if _, err := a.Registry.RecordTurn(ctx, sess.ID, "user", text); err != nil {
		return err
	}

	if sess.SearchPermission == domain.SearchPermissionPending {
		if handled, err := a.settlePermission(ctx, room, sess, text); handled || err != nil {
			return err
		}
	}

	kb, err := a.Retriever.Context(ctx, text)
	if err != nil {
		// Retrieval failure: answer honestly, never offer a search.
		log.Error().Err(err).Str("session_id", sess.ID).Msg("knowledge base retrieval failed")
		return a.say(ctx, room, sess.ID, replyRetrievalError)
	}

	if kb == "" {
		return a.offerOrSearch(ctx, room, sess, text)
	}
	return a.answer(ctx, room, sess.ID, text, kb)
}

// HandleDisconnect ends the participant's active session. Unknown or
// already-ended sessions are not an error for the transport.
func (a *Agent) HandleDisconnect(ctx context.Context, room, participant string) error {
	sess, err := repo.FindActiveSession(ctx, a.Registry.DB, room, participant)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	err = a.Registry.EndSession(ctx, sess.ID, session.EndReasonDisconnected)
	if errors.Is(err, session.ErrSessionAlreadyEnded) {
		return nil
	}
	return err
}

// resolveSession finds the active session for the pair, creating one when
// the utterance is the participant's first event.
func (a *Agent) resolveSession(ctx context.Context, room, participant string) (*domain.Session, error) {
	sess, err := repo.FindActiveSession(ctx, a.Registry.DB, room, participant)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	sess, _, err = a.Registry.CreateSession(ctx, room, participant, "")
	return sess, err
}

// settlePermission interprets the caller's reply to an outstanding
// web-search offer. Reports whether the utterance was consumed by the offer.
func (a *Agent) settlePermission(ctx context.Context, room string, sess *domain.Session, text string) (bool, error) {
	switch {
	case matchesAny(text, affirmativeWords):
		query, err := a.Registry.ResolveSearchPermission(ctx, sess.ID, true)
		if err != nil {
			return true, err
		}
		if query == "" {
			query = text
		}
		return true, a.runWebSearch(ctx, room, sess.ID, query)

	case matchesAny(text, negativeWords):
		if _, err := a.Registry.ResolveSearchPermission(ctx, sess.ID, false); err != nil {
			return true, err
		}
		return true, a.say(ctx, room, sess.ID, replySearchDeclined)
	}
	// Neither yes nor no; the offer stays pending and the utterance is
	// handled as a fresh question.
	return false, nil
}

// offerOrSearch handles an empty knowledge-base result: search immediately
// when permission is already granted, otherwise ask for it.
func (a *Agent) offerOrSearch(ctx context.Context, room string, sess *domain.Session, query string) error {
	if a.Searcher == nil {
		return a.say(ctx, room, sess.ID, replyOfferSearch+" Unfortunately web search is not available right now.")
	}

	permitted, err := a.Registry.SearchPermitted(ctx, sess.ID)
	if err != nil {
		return err
	}
	if permitted {
		return a.runWebSearch(ctx, room, sess.ID, query)
	}

	if err := a.Registry.RequestSearchPermission(ctx, sess.ID, query); err != nil {
		if !errors.Is(err, session.ErrInvalidStateTransition) {
			return err
		}
		// A different question is already awaiting the caller's answer;
		// restate the offer without replacing the stored query.
	}
	return a.say(ctx, room, sess.ID, replyOfferSearch)
}

// runWebSearch executes a permitted search, emitting tool notifications
// around it, and answers from the results.
func (a *Agent) runWebSearch(ctx context.Context, room, sessionID, query string) error {
	a.notify(ctx, room, ToolStarted("search_web", fmt.Sprintf("Searching the web for: %s", query)))

	results, err := a.Searcher.Search(ctx, query)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("web search failed")
		a.notify(ctx, room, ToolError("search_web", "Failed to search the web", err.Error()))
		return a.say(ctx, room, sessionID, replySearchFailed)
	}

	a.notify(ctx, room, ToolSuccess("search_web", "Web search completed successfully"))
	if strings.TrimSpace(results) == "" {
		return a.say(ctx, room, sessionID, fmt.Sprintf("I couldn't find anything on the web for %q.", query))
	}
	return a.answer(ctx, room, sessionID, query, results)
}

// answer generates the spoken response from the retrieved context, falling
// back to the raw context when no generator is configured.
func (a *Agent) answer(ctx context.Context, room, sessionID, query, kbContext string) error {
	if a.Generator == nil {
		return a.say(ctx, room, sessionID, kbContext)
	}
	system := "You are a helpful banking voice assistant. Answer the caller's question in one or two short spoken sentences using only the provided context.\n\nContext:\n" + kbContext
	text, err := a.Generator.GenerateText(ctx, system, query)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("answer generation failed")
		return a.say(ctx, room, sessionID, replyGenerationError)
	}
	return a.say(ctx, room, sessionID, text)
}

// say records the assistant turn and speaks it. Transport failures are
// logged; the turn stays persisted.
func (a *Agent) say(ctx context.Context, room, sessionID, text string) error {
	if _, err := a.Registry.RecordTurn(ctx, sessionID, "assistant", text); err != nil {
		return err
	}
	if err := a.Transport.SendText(ctx, room, text); err != nil {
		log.Error().Err(err).Str("room", room).Msg("outbound text failed")
	}
	return nil
}

func (a *Agent) notify(ctx context.Context, room string, n Notification) {
	if err := a.Transport.SendNotification(ctx, room, n); err != nil {
		log.Warn().Err(err).Str("room", room).Str("event", n.Event).Msg("notification failed")
	}
}

// matchesAny reports whether any entry appears in the utterance. Single
// words must match a whole token; multi-word entries match as phrases.
func matchesAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	fields := strings.Fields(lower)
	for i := range fields {
		fields[i] = strings.Trim(fields[i], ".,!?")
	}
	for _, w := range words {
		if strings.Contains(w, " ") {
			if strings.Contains(lower, w) {
				return true
			}
			continue
		}
		for _, f := range fields {
			if f == w {
				return true
			}
		}
	}
	return false
}
