// Package intent maps raw guest utterances to coarse intents using an ordered
// keyword rule table. Classification is deterministic and never calls out to
// an AI model; callers escalate Unknown results themselves.
package intent

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Intent is a coarse classification label.
type Intent string

const (
	Unknown        Intent = "unknown"
	Booking        Intent = "booking"
	SameDayBooking Intent = "same_day_booking"
	OrderQuery     Intent = "order_query"
	Cancel         Intent = "cancel"
	Interrupt      Intent = "interrupt"
	Confirmation   Intent = "confirmation"
	Rejection      Intent = "rejection"
)

// Valid reports whether i is one of the known labels.
func (i Intent) Valid() bool {
	switch i {
	case Unknown, Booking, SameDayBooking, OrderQuery, Cancel, Interrupt, Confirmation, Rejection:
		return true
	}
	return false
}

// Disengages reports whether the intent means the guest wants out of the
// current flow.
func (i Intent) Disengages() bool {
	return i == Interrupt || i == Cancel
}

// Result is the outcome of one classification. It is never persisted.
type Result struct {
	Intent     Intent
	Confidence float64
	Rule       string
	Entities   Entities
}

// Rule is one row of the classification table. A rule matches when the
// message contains a keyword from every group in Groups; ASCII keywords must
// stand as whole words. When MaxRunes is
// positive a substring hit only counts for messages no longer than MaxRunes
// runes; a message equal to a keyword always matches.
type Rule struct {
	Name       string
	Intent     Intent
	Precedence int
	Groups     [][]string
	MaxRunes   int
	// NeedsOrderNumber matches on the extracted entity instead of keywords.
	NeedsOrderNumber bool
	Confidence       float64
}

func (r Rule) matches(lower string, runes int, ents Entities) bool {
	if r.NeedsOrderNumber && ents.OrderNumber == "" {
		return false
	}
	for _, group := range r.Groups {
		if !r.groupHit(group, lower, runes) {
			return false
		}
	}
	return r.NeedsOrderNumber || len(r.Groups) > 0
}

func (r Rule) groupHit(group []string, lower string, runes int) bool {
	for _, kw := range group {
		kw = strings.ToLower(kw)
		if lower == kw {
			return true
		}
		if r.MaxRunes > 0 && runes > r.MaxRunes {
			continue
		}
		if containsKeyword(lower, kw) {
			return true
		}
	}
	return false
}

// containsKeyword is substring containment, except that ASCII words only
// match whole words: "ok" does not hit "booking".
func containsKeyword(lower, kw string) bool {
	if !isASCIIWord(kw) {
		return strings.Contains(lower, kw)
	}
	for from := 0; from < len(lower); {
		i := strings.Index(lower[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if (start == 0 || !isASCIIAlnum(lower[start-1])) && (end == len(lower) || !isASCIIAlnum(lower[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isASCIIWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isASCIIAlnum(s[i]) {
			return false
		}
	}
	return true
}

func isASCIIAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// Classifier evaluates rules in ascending Precedence; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier copies and orders the supplied rules.
func NewClassifier(rules []Rule) *Classifier {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Precedence < ordered[j].Precedence
	})
	return &Classifier{rules: ordered}
}

// Rules returns the table in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify is total: it always returns a result, Unknown when nothing matches.
func (c *Classifier) Classify(text string) Result {
	ents := ExtractEntities(text)
	lower := strings.ToLower(strings.TrimSpace(text))
	runes := utf8.RuneCountInString(lower)

	for _, r := range c.rules {
		if r.matches(lower, runes, ents) {
			return Result{Intent: r.Intent, Confidence: r.Confidence, Rule: r.Name, Entities: ents}
		}
	}
	return Result{Intent: Unknown, Entities: ents}
}

var defaultClassifier = NewClassifier(DefaultRules())

// Classify runs the default rule table.
func Classify(text string) Result {
	return defaultClassifier.Classify(text)
}

// IsConfirmation applies only the confirmation rule, for states that ask a
// yes/no question.
func IsConfirmation(text string) bool {
	return matchOnly(text, Confirmation)
}

// IsRejection applies only the rejection rule.
func IsRejection(text string) bool {
	return matchOnly(text, Rejection)
}

func matchOnly(text string, want Intent) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	runes := utf8.RuneCountInString(lower)
	for _, r := range defaultClassifier.rules {
		if r.Intent == want && r.matches(lower, runes, Entities{}) {
			return true
		}
	}
	return false
}
