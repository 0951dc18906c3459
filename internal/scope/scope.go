// Package scope classifies user utterances before they reach the LLM.
// The assistant only talks about travel, so anything clearly hostile or
// clearly off-topic gets redirected without spending tokens.
package scope

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of classifying one utterance.
type Verdict struct {
	Valid bool
	// Confidence is in [0,1]. Higher means the classifier is more sure
	// of its Valid decision.
	Confidence float64
	Reason     string
}

var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:drop|truncate|alter)\s+(?:table|database|schema)\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?i)\bunion\b[\s\S]*?\bselect\b`),
	regexp.MustCompile(`(?i)\b(?:or|and)\b\s*['"]?\s*1\s*=\s*1`),
	regexp.MustCompile(`(?i)\b(?:hack|exploit|bypass|jailbreak)\b.*\b(?:system|auth|password|security|prompt)\b`),
	regexp.MustCompile(`(?i)\b(?:rm\s+-rf|chmod|chown|sudo|mkfs)\b`),
	regexp.MustCompile(`(?i)\b(?:dump|steal|exfiltrate|leak)\b.*\b(?:password|credential|token|secret|database)\b`),
	regexp.MustCompile(`(?i)(?:\.\./){2,}`),
	regexp.MustCompile(`(?i)/etc/(?:passwd|shadow)`),
	regexp.MustCompile(`(?i)<script[\s>]`),
	regexp.MustCompile("\\$\\([^)]*\\)|`[^`]+`"),
}

var greetingPattern = regexp.MustCompile(`(?i)^\s*(?:hi|hiya|hello|hey|howdy|yo|good\s+(?:morning|afternoon|evening)|thanks?|thank\s+you|ok(?:ay)?|sure|yes|no|yep|nope|bye|goodbye|help|what\s+can\s+you\s+do)[\s!.?]*$`)

var travelKeywords = []string{
	"flight", "flights", "fly", "airline", "airfare", "airport",
	"hotel", "hotels", "stay", "resort", "accommodation",
	"trip", "trips", "travel", "vacation", "holiday", "getaway",
	"price", "prices", "fare", "fares", "cost", "cheap", "deal", "deals",
	"alert", "alerts", "notify", "notification", "threshold",
	"track", "tracking", "watch", "monitor", "refresh",
	"pause", "resume", "cancel", "delete",
	"depart", "departure", "return", "round trip", "one way",
	"book", "booking", "destination", "itinerary", "layover",
}

// IATA codes show up bare in utterances like "JFK to LIS in June".
var iataPattern = regexp.MustCompile(`\b[A-Z]{3}\b`)

// Classify runs the rule chain in order and returns the first verdict
// that fires. It is pure: no I/O, no state.
func Classify(utterance string) Verdict {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return Verdict{Valid: false, Confidence: 1.0, Reason: "empty"}
	}

	for _, re := range maliciousPatterns {
		if re.MatchString(trimmed) {
			return Verdict{Valid: false, Confidence: 0.95, Reason: "malicious"}
		}
	}

	if greetingPattern.MatchString(trimmed) {
		return Verdict{Valid: true, Confidence: 1.0, Reason: "greeting"}
	}

	if k := travelMatches(trimmed); k > 0 {
		conf := 0.7 + 0.1*float64(k)
		if conf > 1.0 {
			conf = 1.0
		}
		return Verdict{Valid: true, Confidence: conf, Reason: "travel"}
	}

	if len(strings.Fields(trimmed)) <= 5 {
		return Verdict{Valid: true, Confidence: 0.5, Reason: "short"}
	}

	return Verdict{Valid: true, Confidence: 0.3, Reason: "unclear"}
}

func travelMatches(s string) int {
	lower := strings.ToLower(s)
	count := 0
	for _, kw := range travelKeywords {
		if containsWord(lower, kw) {
			count++
		}
	}
	if iataPattern.MatchString(s) {
		count++
	}
	return count
}

// containsWord reports whether kw appears in s on word boundaries.
// Keywords with spaces match as plain substrings.
func containsWord(s, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(s, kw)
	}
	idx := 0
	for {
		i := strings.Index(s[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

// RedirectMessage is the canned reply for out-of-scope utterances. The
// wording is fixed so it cannot echo attacker-controlled input.
const RedirectMessage = "I can help you track vacation prices: create trips, " +
	"watch flight and hotel fares, and set price alerts. What destination " +
	"are you thinking about?"
