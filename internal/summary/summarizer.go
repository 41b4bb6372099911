// Package summary distills an ended conversation into a persisted record:
// a short summary, the caller's primary intent, overall sentiment, a
// resolution status, and the topics discussed.
//
// Analysis is rule-based and deterministic. When a text generator is
// configured the summary text and resolution status are produced by the
// model instead, falling back to the rules on any generation failure.
package summary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/ai"
	"github.com/cybertechlabs/go-voice-backend/internal/domain"
	"github.com/cybertechlabs/go-voice-backend/internal/repo"
)

// Resolution statuses persisted on conversation summaries.
const (
	ResolutionResolved   = "resolved"
	ResolutionEscalated  = "escalated"
	ResolutionInProgress = "in_progress"
	ResolutionIncomplete = "incomplete"
)

// namePatterns are phrases that introduce the caller's name; the words that
// follow are taken as the name candidate.
var namePatterns = []string{
	"my name is ", "i'm ", "i am ", "this is ", "call me ", "name's ",
}

// intentRules map a primary intent to its trigger phrases. Order matters:
// the first matching intent wins.
var intentRules = []struct {
	intent   string
	keywords []string
}{
	{"balance_check", []string{"balance", "how much", "account balance"}},
	{"transfer", []string{"transfer", "send money", "pay"}},
	{"cardless", []string{"cardless", "withdraw without card", "atm code"}},
	{"statement", []string{"statement", "transaction history"}},
	{"authentication", []string{"login", "username", "password", "pin"}},
	{"help", []string{"help", "how do i", "how to", "can you help"}},
}

// topicRules map a topic label to its trigger phrases.
var topicRules = map[string][]string{
	"balance_check":       {"balance", "how much money", "account balance"},
	"money_transfer":      {"transfer", "send money", "payment"},
	"cardless_withdrawal": {"cardless", "withdraw", "atm code", "*236"},
	"statement_request":   {"statement", "transaction history", "transactions"},
	"account_opening":     {"open account", "new account", "create account"},
	"card_issues":         {"card", "atm card", "debit card", "card blocked"},
	"banking_hours":       {"hours", "open", "working hours", "office hours"},
	"branch_location":     {"branch", "location", "where is", "address"},
	"fees_charges":        {"fee", "charge", "cost", "how much does"},
	"loan_inquiry":        {"loan", "borrow", "credit"},
	"authentication":      {"login", "username", "password", "authenticate"},
}

var (
	positiveWords = []string{"thank", "thanks", "great", "good", "perfect", "excellent", "appreciate", "helpful"}
	negativeWords = []string{"problem", "issue", "error", "wrong", "bad", "terrible", "frustrated", "annoying"}

	completionWords = []string{"thank", "goodbye", "bye", "that's all", "perfect", "done"}
	escalationWords = []string{"speak to human", "call me", "contact", "complaint"}

	authenticationWords = []string{"username", "password", "pin", "login", "authenticate"}
)

var titleCaser = cases.Title(language.English)

// Summarizer writes a conversation summary when a session ends. Implements
// the registry's Summarizer contract.
type Summarizer struct {
	DB        *gorm.DB
	Generator ai.TextGenerator // optional; nil means rule-based only
}

// NewSummarizer constructs a Summarizer. gen may be nil.
func NewSummarizer(db *gorm.DB, gen ai.TextGenerator) *Summarizer {
	return &Summarizer{DB: db, Generator: gen}
}

// Summarize loads the session's messages, analyzes them, and persists the
// summary record. Re-summarizing a session is a no-op.
func (s *Summarizer) Summarize(ctx context.Context, sessionID, profileID string) error {
	if _, err := repo.GetSummaryBySession(ctx, s.DB, sessionID); err == nil {
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	msgs, err := repo.ListMessages(ctx, s.DB, sessionID)
	if err != nil {
		return err
	}

	a := analyze(msgs)
	if s.Generator != nil && len(msgs) > 0 {
		if text, err := s.generateSummary(ctx, msgs); err == nil {
			a.Summary = text
			a.Resolution = s.generateResolution(ctx, msgs, text)
		} else {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("llm summary failed, using rule-based fallback")
		}
	}

	_, err = repo.CreateSummary(ctx, s.DB, sessionID, profileID, a.Summary, a.Intent, a.Sentiment, a.Resolution, a.Topics)
	return err
}

// analysis holds everything the rules extract from a conversation.
type analysis struct {
	UserName      string
	Intent        string
	AuthAttempted bool
	Topics        []string
	Sentiment     string
	Resolution    string
	Summary       string
}

// analyze runs the full rule-based pipeline over a conversation.
func analyze(msgs []domain.Message) analysis {
	if len(msgs) == 0 {
		return analysis{
			Sentiment:  "neutral",
			Resolution: ResolutionIncomplete,
			Summary:    "No conversation",
		}
	}

	var all, user []string
	for _, m := range msgs {
		all = append(all, m.Content)
		if m.Role == "user" {
			user = append(user, m.Content)
		}
	}
	text := strings.ToLower(strings.Join(all, " "))

	a := analysis{
		UserName:      extractName(text),
		Intent:        detectIntent(text),
		AuthAttempted: containsAny(text, authenticationWords),
		Topics:        extractTopics(text),
		Sentiment:     detectSentiment(user),
		Resolution:    resolutionCheck(msgs),
	}
	a.Summary = ruleSummary(msgs, a)
	return a
}

// extractName looks for a self-introduction and returns the following words
// title-cased, or "" when nothing plausible is found.
func extractName(text string) string {
	for _, pat := range namePatterns {
		idx := strings.Index(text, pat)
		if idx < 0 {
			continue
		}
		after := strings.Fields(text[idx+len(pat):])
		if len(after) > 3 {
			after = after[:3]
		}
		candidate := strings.Trim(strings.Join(after, " "), ".,!?")
		if candidate != "" && len(candidate) < 30 {
			return titleCaser.String(candidate)
		}
	}
	return ""
}

func detectIntent(text string) string {
	for _, rule := range intentRules {
		if containsAny(text, rule.keywords) {
			return rule.intent
		}
	}
	return ""
}

func extractTopics(text string) []string {
	var topics []string
	for topic, keywords := range topicRules {
		if containsAny(text, keywords) {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// detectSentiment counts positive and negative indicator words in the
// user's messages only.
func detectSentiment(userMsgs []string) string {
	if len(userMsgs) == 0 {
		return "neutral"
	}
	text := strings.ToLower(strings.Join(userMsgs, " "))
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(text, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}

// resolutionCheck inspects the closing turns for completion or escalation
// signals.
func resolutionCheck(msgs []domain.Message) string {
	if len(msgs) < 2 {
		return ResolutionIncomplete
	}
	tail := msgs
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	var parts []string
	for _, m := range tail {
		parts = append(parts, m.Content)
	}
	last := strings.ToLower(strings.Join(parts, " "))

	if containsAny(last, completionWords) {
		return ResolutionResolved
	}
	if containsAny(last, escalationWords) {
		return ResolutionEscalated
	}
	return ResolutionInProgress
}

// ruleSummary builds a compact human-readable summary from the analysis.
func ruleSummary(msgs []domain.Message, a analysis) string {
	userCount := 0
	for _, m := range msgs {
		if m.Role == "user" {
			userCount++
		}
	}

	parts := []string{
		fmt.Sprintf("Conversation with %d messages (%d from user).", len(msgs), userCount),
	}
	if a.UserName != "" {
		parts = append(parts, fmt.Sprintf("User identified as %s.", a.UserName))
	}
	if a.Intent != "" {
		parts = append(parts, fmt.Sprintf("Primary purpose: %s.", humanize(a.Intent)))
	}
	if len(a.Topics) > 0 {
		shown := a.Topics
		if len(shown) > 3 {
			shown = shown[:3]
		}
		labels := make([]string, len(shown))
		for i, t := range shown {
			labels[i] = humanize(t)
		}
		parts = append(parts, fmt.Sprintf("Topics discussed: %s.", strings.Join(labels, ", ")))
	}
	if a.AuthAttempted {
		parts = append(parts, "User attempted authentication.")
	}
	return strings.Join(parts, " ")
}

// generateSummary asks the text generator for a 2-3 sentence summary.
func (s *Summarizer) generateSummary(ctx context.Context, msgs []domain.Message) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(m.Role), m.Content)
	}
	system := "You summarize customer service conversations in 2-3 sentences, covering what the user wanted, what information was provided, and the outcome or next steps."
	user := "Conversation:\n" + b.String() + "\nSummary:"

	text, err := s.Generator.GenerateText(ctx, system, user)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty summary from generator")
	}
	return text, nil
}

// generateResolution asks the generator to classify the outcome, falling
// back to the rules when the answer is unusable.
func (s *Summarizer) generateResolution(ctx context.Context, msgs []domain.Message, summaryText string) string {
	system := "You classify customer service conversation outcomes. Answer with exactly one word: resolved, escalated, or incomplete."
	user := "Summary: " + summaryText + "\n\nStatus:"

	answer, err := s.Generator.GenerateText(ctx, system, user)
	if err != nil {
		log.Warn().Err(err).Msg("llm resolution detection failed, using rule-based fallback")
		return resolutionCheck(msgs)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case ResolutionResolved:
		return ResolutionResolved
	case ResolutionEscalated:
		return ResolutionEscalated
	case ResolutionIncomplete:
		return ResolutionIncomplete
	}
	return ResolutionInProgress
}

// humanize turns a snake_case label into Title Case words.
func humanize(label string) string {
	return titleCaser.String(strings.ReplaceAll(label, "_", " "))
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
