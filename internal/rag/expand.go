// Package rag – query expansion
//
// Voice transcripts mangle domain vocabulary: "USSD" arrives as "U.S.S.D",
// "uss d", or "you ss d". Expansion normalizes the query, detects known
// topics through their trigger forms, and appends canonical synonyms so the
// embedding sees the vocabulary the knowledge base was written in. The
// matched terms double as keywords for the hybrid ranking boost.
package rag

import (
	"regexp"
	"strings"
)

// starCodeRe matches telco service codes like *236# or *100.
var starCodeRe = regexp.MustCompile(`\*\d+#?`)

// nonAlnumRe collapses everything that is not a letter or digit.
var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

var spaceRe = regexp.MustCompile(`\s+`)

// expansion maps a topic's trigger forms to the canonical synonyms appended
// to the query. Triggers are matched against the normalized query; single
// tokens are additionally matched against its space-free compact form, which
// is what survives transcription artifacts like "u.s.s.d" and "uss d".
type expansion struct {
	triggers []string
	synonyms []string
}

var expansions = []expansion{
	{
		triggers: []string{"ussd", "short code", "star code", "dial code"},
		synonyms: []string{"USSD", "service code", "dial", "shortcode"},
	},
	{
		triggers: []string{"balance", "how much money", "funds"},
		synonyms: []string{"account balance", "balance inquiry", "check balance"},
	},
	{
		triggers: []string{"cardless", "without card", "no card"},
		synonyms: []string{"cardless withdrawal", "ATM withdrawal without card"},
	},
	{
		triggers: []string{"transfer", "send money", "wire"},
		synonyms: []string{"money transfer", "funds transfer", "remittance"},
	},
	{
		triggers: []string{"statement", "transactions list", "history"},
		synonyms: []string{"account statement", "transaction history", "mini statement"},
	},
	{
		triggers: []string{"open account", "account opening", "new account"},
		synonyms: []string{"open a bank account", "account opening requirements"},
	},
	{
		triggers: []string{"branch", "opening hours", "working hours"},
		synonyms: []string{"branch hours", "branch location", "business hours"},
	},
	{
		triggers: []string{"card", "debit card", "credit card"},
		synonyms: []string{"bank card", "card services", "card activation"},
	},
	{
		triggers: []string{"loan", "borrow", "credit"},
		synonyms: []string{"loan application", "lending", "interest rate"},
	},
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "day": {}, "get": {}, "has": {}, "him": {},
	"his": {}, "how": {}, "what": {}, "when": {}, "where": {}, "who": {},
	"will": {}, "with": {}, "about": {}, "would": {}, "there": {},
	"their": {}, "this": {}, "that": {}, "have": {}, "from": {},
	"they": {}, "been": {}, "much": {}, "some": {}, "your": {},
	"want": {}, "need": {}, "please": {}, "tell": {}, "know": {},
}

// normalizeQuery lowercases, strips punctuation, and squeezes whitespace.
// Star codes are preserved verbatim because punctuation stripping would
// destroy them.
func normalizeQuery(q string) (normalized string, codes []string) {
	lower := strings.ToLower(strings.TrimSpace(q))
	codes = starCodeRe.FindAllString(lower, -1)
	normalized = nonAlnumRe.ReplaceAllString(lower, " ")
	normalized = strings.TrimSpace(spaceRe.ReplaceAllString(normalized, " "))
	return normalized, codes
}

// ExpandQuery rewrites a raw transcript query for embedding and extracts the
// keyword set used by hybrid ranking.
//
// The returned query is the original text with canonical synonyms of every
// matched topic appended. Keywords contain the matched synonyms, preserved
// star codes, and the significant terms of the query itself (longer than
// three characters, not stopwords). Order is deterministic; duplicates are
// removed case-insensitively.
func ExpandQuery(query string) (expanded string, keywords []string) {
	normalized, codes := normalizeQuery(query)
	if normalized == "" && len(codes) == 0 {
		return query, nil
	}
	compact := strings.ReplaceAll(normalized, " ", "")

	seen := map[string]struct{}{}
	add := func(term string) {
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keywords = append(keywords, term)
	}

	var extra []string
	for _, ex := range expansions {
		matched := false
		for _, trig := range ex.triggers {
			if strings.Contains(normalized, trig) {
				matched = true
				break
			}
			// Single-token triggers also match the compact form, so
			// "u.s.s.d" and "uss d" both hit "ussd".
			if !strings.Contains(trig, " ") && strings.Contains(compact, trig) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, syn := range ex.synonyms {
			extra = append(extra, syn)
			add(syn)
		}
	}

	for _, code := range codes {
		add(code)
	}
	for _, term := range strings.Fields(normalized) {
		if len(term) <= 3 {
			continue
		}
		if _, stop := stopwords[term]; stop {
			continue
		}
		add(term)
	}

	expanded = query
	if len(extra) > 0 {
		expanded = query + " " + strings.Join(extra, " ")
	}
	return expanded, keywords
}
