package flow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ktwhotel/concierge/internal/intent"
)

// GuestInfo is what one message contributed toward the booking contact
// fields. Empty fields were not found.
type GuestInfo struct {
	Name        string
	Phone       string
	ArrivalTime string
}

// The period word stays attached to the clock so "晚上10:30" keeps its
// evening reading.
var arrivalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:晚上|晚間|下午|傍晚|上午|早上)\s*\d{1,2}(?:點(?:半|\d{1,2}分?)?|[:：]\d{2})`),
	regexp.MustCompile(`大約\S+`),
	regexp.MustCompile(`約\S+點`),
	regexp.MustCompile(`\d{1,2}[點:：]\d{0,2}`),
}

var (
	namePattern = regexp.MustCompile(`[\p{Han}A-Za-z]{2,10}`)
	hourPattern = regexp.MustCompile(`\d{1,2}`)

	// a mobile number as typed, dashes and spaces included
	phonePattern = regexp.MustCompile(`09(?:[-\s]?\d){8}`)

	// filler the guest wraps around their details
	fillerWords = []string{
		"姓名", "名字", "聯絡電話", "電話號碼", "電話", "手機", "我叫", "我是",
		"預計", "抵達", "入住", "到達", "時間", "大概",
	}
	// words that are never a name on their own
	notNames = []string{"晚上", "下午", "傍晚", "上午", "點", "間", "房"}

	nextDayWords   = []string{"明天", "明日", "隔天", "隔日", "凌晨"}
	eveningWords   = []string{"晚上", "晚間"}
	afternoonWords = []string{"下午", "傍晚"}
)

// ParseGuestInfo pulls a mobile number, an arrival time and a name out of a
// free-form message such as "王小明 0912-345-678 晚上7點".
func ParseGuestInfo(text string) GuestInfo {
	var info GuestInfo
	rest := intent.NormalizeDigits(text)

	phone := intent.ExtractPhone(rest)
	if phone == "" {
		phone = intent.ExtractPhone(strings.ReplaceAll(rest, " ", ""))
	}
	if phone != "" {
		info.Phone = phone
		rest = phonePattern.ReplaceAllString(rest, " ")
	}
	for _, p := range arrivalPatterns {
		if m := p.FindString(rest); m != "" {
			info.ArrivalTime = m
			rest = strings.Replace(rest, m, " ", 1)
			break
		}
	}
	for _, w := range fillerWords {
		rest = strings.ReplaceAll(rest, w, " ")
	}
	for _, m := range namePattern.FindAllString(rest, -1) {
		if isNotName(m) {
			continue
		}
		info.Name = m
		break
	}
	return info
}

func isNotName(s string) bool {
	for _, w := range notNames {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// InvalidArrival reports whether an arrival answer falls at or after the
// cutoff hour or implies a next-day arrival. Answers without a readable hour
// are accepted.
func InvalidArrival(text string, cutoffHour int) bool {
	text = intent.NormalizeDigits(text)
	for _, w := range nextDayWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	m := hourPattern.FindString(text)
	if m == "" {
		return false
	}
	hour, err := strconv.Atoi(m)
	if err != nil {
		return false
	}

	switch {
	case containsAny(text, eveningWords):
		// 晚上12點 is midnight
		if hour == 12 {
			return true
		}
		if hour < 12 {
			hour += 12
		}
		return hour >= cutoffHour
	case containsAny(text, afternoonWords):
		if hour < 12 {
			hour += 12
		}
		return hour >= cutoffHour
	}
	// a bare 0-6 reads as the small hours of the next day
	return hour >= cutoffHour || hour <= 6
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
