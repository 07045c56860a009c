package intent

// Keyword lists. Matching is case-insensitive substring containment; ASCII
// keywords only match whole words.
var (
	cancelBookingKeywords = []string{
		"取消訂單", "取消預訂", "取消訂房", "取消了", "我要取消", "幫我取消",
		"想取消", "需要取消", "退訂", "不住了", "不來了",
	}

	interruptKeywords = []string{
		"算了", "不用了", "先不用", "不要了", "不訂", "不定", "放棄",
		"停止", "退出", "重新開始", "重來", "reset", "restart",
		"不需要", "暫時不用", "先這樣", "我再想想", "下次", "改天",
		"取消", "不要",
	}

	orderQueryKeywords = []string{
		"查訂單", "查詢訂單", "訂單查詢", "我有訂", "確認訂單", "我的訂單",
		"我訂了", "已經訂", "訂單狀態", "訂單資訊", "訂單編號", "訂單號碼",
	}

	sameDayWords = []string{
		"今天", "今日", "今晚", "當天", "當日", "現在", "馬上", "立刻",
	}

	bookingVerbs = []string{
		"訂房", "預訂", "訂", "住", "入住", "有房", "還有房", "空房", "房間",
	}

	strongBookingKeywords = []string{
		"訂房", "預訂", "有房", "還有房", "空房", "想住", "要住", "可以住",
		"加訂", "加定", "多訂", "再訂", "多一間", "再一間",
	}

	weakBookingKeywords = []string{
		"訂", "住", "房間", "入住",
	}

	rejectionKeywords = []string{
		"不是", "錯了", "有錯", "不對", "不正確", "no",
	}

	confirmationKeywords = []string{
		"是", "對", "沒錯", "正確", "確認", "yes", "好", "ok",
	}
)

// shortMessageRunes gates substring matches for yes/no answers so that a
// stray "是" inside a long sentence is not read as assent.
const shortMessageRunes = 10

// DefaultRules is the production rule table. Lower Precedence is evaluated
// first. Disengagement is checked before any booking keyword so "算了不訂"
// never starts a booking, and rejection precedes confirmation because "不是"
// contains "是".
func DefaultRules() []Rule {
	return []Rule{
		{Name: "cancel_booking", Intent: Cancel, Precedence: 10, Groups: [][]string{cancelBookingKeywords}, Confidence: 0.95},
		{Name: "interrupt", Intent: Interrupt, Precedence: 20, Groups: [][]string{interruptKeywords}, Confidence: 0.9},
		{Name: "order_query", Intent: OrderQuery, Precedence: 30, Groups: [][]string{orderQueryKeywords}, Confidence: 0.9},
		{Name: "order_number", Intent: OrderQuery, Precedence: 35, NeedsOrderNumber: true, Confidence: 0.7},
		{Name: "same_day_booking", Intent: SameDayBooking, Precedence: 40, Groups: [][]string{sameDayWords, bookingVerbs}, Confidence: 0.95},
		{Name: "booking", Intent: Booking, Precedence: 50, Groups: [][]string{strongBookingKeywords}, Confidence: 0.9},
		{Name: "rejection", Intent: Rejection, Precedence: 60, Groups: [][]string{rejectionKeywords}, MaxRunes: shortMessageRunes, Confidence: 0.85},
		{Name: "confirmation", Intent: Confirmation, Precedence: 70, Groups: [][]string{confirmationKeywords}, MaxRunes: shortMessageRunes, Confidence: 0.85},
		{Name: "booking_weak", Intent: Booking, Precedence: 80, Groups: [][]string{weakBookingKeywords}, Confidence: 0.6},
	}
}
