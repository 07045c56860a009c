package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Entities are values pulled out of an utterance alongside its intent.
type Entities struct {
	Phone       string    `json:"phone,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	Date        *DateHint `json:"date,omitempty"`
}

const (
	mobilePrefix   = "09"
	mobileLength   = 10
	orderNumberMin = 5
	orderNumberMax = 10
)

// ExtractEntities tokenizes the text into maximal digit runs. A 10-digit run
// starting with 09 is a mobile number and is never considered as an order
// number; any other run of 5-10 digits not starting with 0 is an order number.
func ExtractEntities(text string) Entities {
	ents := Entities{Phone: ExtractPhone(text)}
	for _, run := range digitRuns(normalizeDigits(text)) {
		if isMobile(run) {
			continue
		}
		if isOrderNumber(run) {
			ents.OrderNumber = run
			break
		}
	}
	ents.Date = ParseDate(text)
	return ents
}

// ExtractPhone returns the first mobile number in text, tolerating dashes.
func ExtractPhone(text string) string {
	for _, run := range digitRuns(joinHyphenatedDigits(normalizeDigits(text))) {
		if isMobile(run) {
			return run
		}
	}
	return ""
}

// ExtractOrderNumber returns the first order-number-shaped run, skipping phones.
func ExtractOrderNumber(text string) string {
	return ExtractEntities(text).OrderNumber
}

// Digits returns every digit run in order. Fullwidth digits are normalized.
func Digits(text string) []string {
	return digitRuns(normalizeDigits(text))
}

func isMobile(run string) bool {
	return len(run) == mobileLength && strings.HasPrefix(run, mobilePrefix)
}

func isOrderNumber(run string) bool {
	return len(run) >= orderNumberMin && len(run) <= orderNumberMax && run[0] != '0'
}

func digitRuns(text string) []string {
	var (
		runs []string
		cur  strings.Builder
	)
	for _, r := range text {
		if r >= '0' && r <= '9' {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			runs = append(runs, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	return runs
}

// NormalizeDigits maps fullwidth digits (０-９) to ASCII.
func NormalizeDigits(text string) string {
	return normalizeDigits(text)
}

func normalizeDigits(text string) string {
	return strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, text)
}

// joinHyphenatedDigits drops hyphens sitting between two digits so that
// "0912-345-678" reads as one run.
func joinHyphenatedDigits(text string) string {
	rs := []rune(text)
	var b strings.Builder
	for i, r := range rs {
		if r == '-' && i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DateKind distinguishes relative phrasing from a calendar date.
type DateKind string

const (
	DateToday    DateKind = "today"
	DateTomorrow DateKind = "tomorrow"
	DateDayAfter DateKind = "day_after"
	DateExplicit DateKind = "explicit"
)

// DateHint is an unresolved date mention. Year is zero when the guest gave
// only month and day.
type DateHint struct {
	Kind  DateKind `json:"kind"`
	Year  int      `json:"year,omitempty"`
	Month int      `json:"month,omitempty"`
	Day   int      `json:"day,omitempty"`
}

var (
	fullDatePattern  = regexp.MustCompile(`(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})`)
	slashDatePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})`)
	cjkDatePattern   = regexp.MustCompile(`(\d{1,2})月(\d{1,2})[日號]?`)

	todayWords    = []string{"今天", "今日", "今晚", "當日", "當天", "現在", "馬上", "立刻"}
	tomorrowWords = []string{"明天", "明日"}
	dayAfterWords = []string{"後天"}
)

// ParseDate finds a date mention. Relative words win over numerals, matching
// how guests usually phrase same-day requests ("今天 7/1 還有房嗎").
func ParseDate(text string) *DateHint {
	text = normalizeDigits(text)
	switch {
	case containsAny(text, todayWords):
		return &DateHint{Kind: DateToday}
	case containsAny(text, tomorrowWords):
		return &DateHint{Kind: DateTomorrow}
	case containsAny(text, dayAfterWords):
		return &DateHint{Kind: DateDayAfter}
	}

	if m := fullDatePattern.FindStringSubmatch(text); m != nil {
		return explicitHint(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := cjkDatePattern.FindStringSubmatch(text); m != nil {
		return explicitHint(0, atoi(m[1]), atoi(m[2]))
	}
	if m := slashDatePattern.FindStringSubmatch(text); m != nil {
		return explicitHint(0, atoi(m[1]), atoi(m[2]))
	}
	return nil
}

func explicitHint(year, month, day int) *DateHint {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	probeYear := year
	if probeYear == 0 {
		probeYear = 2024 // leap year, so 2/29 survives the probe
	}
	t := time.Date(probeYear, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return nil
	}
	return &DateHint{Kind: DateExplicit, Year: year, Month: month, Day: day}
}

// Resolve turns the hint into a calendar date relative to now. A month/day
// already past this year rolls into next year.
func (h DateHint) Resolve(now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch h.Kind {
	case DateToday:
		return today
	case DateTomorrow:
		return today.AddDate(0, 0, 1)
	case DateDayAfter:
		return today.AddDate(0, 0, 2)
	}
	year := h.Year
	if year == 0 {
		year = today.Year()
		if time.Date(year, time.Month(h.Month), h.Day, 0, 0, 0, 0, now.Location()).Before(today) {
			year++
		}
	}
	return time.Date(year, time.Month(h.Month), h.Day, 0, 0, 0, 0, now.Location())
}

// IsToday reports whether the hint resolves to now's calendar date.
func (h DateHint) IsToday(now time.Time) bool {
	d := h.Resolve(now)
	return d.Year() == now.Year() && d.YearDay() == now.YearDay()
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
