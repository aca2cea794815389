package session

import "strings"

// GoodbyePolicy decides whether a transcript line ends the call. The matching
// rule is a case-insensitive substring check against a configurable phrase
// list, applied to both roles' completed lines.
type GoodbyePolicy struct {
	phrases []string
}

var defaultGoodbyePhrases = []string{
	"goodbye",
	"bye for now",
	"have a great day",
	"talk to you later",
}

// NewGoodbyePolicy builds a policy from the given phrases, falling back to the
// default farewell list when none are configured.
func NewGoodbyePolicy(phrases []string) GoodbyePolicy {
	if len(phrases) == 0 {
		phrases = defaultGoodbyePhrases
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return GoodbyePolicy{phrases: lowered}
}

// Match reports whether the text contains a farewell phrase.
func (p GoodbyePolicy) Match(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range p.phrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
