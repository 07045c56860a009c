package assistant

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ktwhotel/concierge/internal/intent"
	"github.com/ktwhotel/concierge/pkg/logging"
)

const (
	classifyPrompt = `你是飯店 LINE 客服的意圖判斷器。請判斷旅客訊息的意圖，只能回覆下列其中一個標籤：
same_day_booking - 想要今天入住的訂房（例如：今晚還有房嗎、現在想住）
booking - 想訂房但沒說今天（例如：我想訂房、下週有房嗎）
order_query - 查詢已有的訂單（例如：我有訂房、幫我查訂單）
cancel - 取消已送出的當日訂房
general_question - 一般問題（例如：幾點退房、早餐時間、停車）
unknown - 無法判斷
只回覆標籤，或回覆 {"intent": "標籤"} 格式的 JSON，不要加其他內容。`

	answerPrompt = `你是高雄 KTW 飯店的 LINE 客服助理，使用繁體中文、語氣親切簡潔。
只回答一般住宿問題（入住退房時間、交通、停車、早餐、設施）。
不確定的資訊請請旅客致電櫃台確認，不要自行承諾房價、房況或訂單結果。
回覆不超過 120 字。`

	defaultTimeout = 8 * time.Second
)

// Fallback asks a language model about messages no rule matched.
type Fallback struct {
	llm     LLMClient
	timeout time.Duration
	logger  *logging.Logger
}

func NewFallback(llm LLMClient, logger *logging.Logger) *Fallback {
	if llm == nil {
		panic("assistant: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Fallback{llm: llm, timeout: defaultTimeout, logger: logger}
}

// ClassifyFreeform returns an advisory intent for text. Only labels that can
// start a flow from idle are returned; anything else, including model
// errors, is intent.Unknown.
func (f *Fallback) ClassifyFreeform(ctx context.Context, text string) intent.Intent {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.llm.Complete(ctx, LLMRequest{
		System:      []string{classifyPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: text}},
		MaxTokens:   32,
		Temperature: 0,
	})
	if err != nil {
		f.logger.Warn("assistant: classify failed", "error", err)
		return intent.Unknown
	}
	label := parseLabel(resp.Text)
	switch label {
	case "same_day_booking":
		return intent.SameDayBooking
	case "booking":
		return intent.Booking
	case "order_query":
		return intent.OrderQuery
	}
	f.logger.Debug("assistant: advisory label ignored", "label", label)
	return intent.Unknown
}

// Answer replies to a general question. An empty string means the caller
// should fall back to canned help text.
func (f *Fallback) Answer(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.llm.Complete(ctx, LLMRequest{
		System:      []string{answerPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: text}},
		MaxTokens:   400,
		Temperature: 0.3,
	})
	if err != nil {
		f.logger.Warn("assistant: answer failed", "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

func parseLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.Trim(raw, "`\n ")
	if strings.HasPrefix(raw, "{") {
		var out struct {
			Intent string `json:"intent"`
		}
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			raw = out.Intent
		}
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
}
