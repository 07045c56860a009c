package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ktwhotel/concierge/internal/inventory"
	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/session"
)

const (
	msgAskDate = `請問您想預訂哪一天入住？

您可以回覆：
• 今天 / 今日
• 明天 / 明日
• 12/25
• 12月25日`

	msgDateUnclear = `抱歉，我無法理解您的日期格式。

請用以下方式回覆：
• 今天 / 今日
• 12/25
• 12月25日

或者直接告訴我「今天想住」！`

	msgSelectionHelp = `• 單一房型：直接輸入編號（如：2）
• 多種房型：輸入組合（如：1間雙人1間三人）`

	msgInfoRequest = `請提供以下資訊以完成預訂：
1️⃣ 您的姓名
2️⃣ 聯絡電話
3️⃣ 預計抵達時間

（您可以一次提供，例如：王小明、0912345678、晚上7點）`

	msgAccessibleOnly = "⚠️ 目前僅剩無障礙房型，此房型只有淋浴間為無障礙設計，其餘房內設施與一般房間相同。"

	msgConfirmOptions = `請輸入：
1️⃣ 確認預訂
2️⃣ 取消預訂`

	msgCountNotNumber   = "請輸入數字，例如：1"
	msgCountNotPositive = "房間數量需大於 0，請重新輸入。"

	msgDisengaged      = "好的，如有需要隨時再詢問！"
	msgBookingDeclined = "好的，已取消預訂。如有需要歡迎再次詢問！"

	msgCancelNone = `您目前沒有待處理的當日訂單。

如有其他問題，請隨時詢問！`

	msgCancelOptions = `請輸入：
1️⃣ 確認取消
2️⃣ 保留訂單`

	msgCancelKept = "好的，已為您保留訂單。期待您的光臨！🌊"

	msgOrderAsk = "請提供您的訂單編號或訂房大名，我來幫您查詢。"

	msgOrderNotFound = `抱歉，查不到符合的訂單。

請確認：
• 訂房大名
• 入住日期
• 或訂單編號`

	msgOrderConfirmHint = "請問這是您的訂單嗎？\n（回覆「是」繼續確認資訊，或「不是」重新查詢）"
	msgOrderRequery     = "好的，請重新提供訂單編號或訂房大名。"
	msgOrderAskPhone    = "請提供您的聯絡電話，以便我們在需要時聯繫您。"
	msgOrderBadPhone    = "電話格式不正確，請輸入正確的電話號碼"
	msgOrderAskArrival  = "請問您預計幾點抵達？"
	msgOrderEnded       = "好的，已結束查詢流程。有需要隨時再和我說！"

	msgOrderResume = "接著為您查詢訂單，" + msgOrderAsk

	msgBookingNotice = `⚠️ 當日預訂注意事項：
• 當日或即時預訂不收取訂金，館方保留臨時取消之權利
• 如需確保必能有房間，可透過官網預訂並線上刷卡支付訂金：%s
• 請務必於預定時間抵達飯店櫃檯辦理入住
• 如需變更或取消預訂，請務必 LINE 告知`

	divider = "━━━━━━━━━━━━━━━"
)

// Texts renders replies that embed configured values.
type Texts struct {
	BookingURL string
	CutoffHour int
}

func (t Texts) clock() string {
	h := t.CutoffHour
	if h > 12 {
		return fmt.Sprintf("晚上 %d 點", h-12)
	}
	return fmt.Sprintf("%d 點", h)
}

func (t Texts) bookingClosed() string {
	return fmt.Sprintf("抱歉，當日預訂服務僅開放至%s。\n\n若您有住宿需求，歡迎透過官網預訂：\n🌐 %s", t.clock(), t.BookingURL)
}

func (t Texts) futureDate(date time.Time, explicit bool) string {
	var b strings.Builder
	b.WriteString("感謝您的預訂！\n\n")
	if explicit {
		fmt.Fprintf(&b, "您預訂的日期是：%s\n\n", date.Format("2006年01月02日"))
	} else {
		b.WriteString("由於您預訂的是未來日期，")
	}
	fmt.Fprintf(&b, "請透過我們的官網完成預訂：\n\n🌐 線上訂房：%s\n\n", t.BookingURL)
	b.WriteString("📋 預訂資訊：\n• 入住/退房時間：15:00 入住 / 11:00 退房\n• 早餐：含自助式早餐\n• 停車：提供免費停車位")
	return b.String()
}

func (t Texts) tooManyRooms(max int) string {
	return fmt.Sprintf("感謝您的訂房需求！\n\n由於您預訂的房間數較多（%d間以上），為確保您的權益並享有完整服務，請透過官網預訂：\n\n🌐 %s\n\n官網預訂可線上刷卡支付訂金，確保房間保留。感謝您的理解！", max, t.BookingURL)
}

func (t Texts) soldOut(what string) string {
	return fmt.Sprintf("抱歉，目前%s已無空房。\n\n建議您可以查看其他日期的空房：\n🌐 %s", what, t.BookingURL)
}

func (t Texts) lateArrival() string {
	return fmt.Sprintf("抱歉，當日預訂僅接受今日%s前抵達的訂單。\n\n如需隔日入住，請透過官網預訂：\n🌐 %s", t.clock(), t.BookingURL)
}

func roomList(d *session.BookingDraft) string {
	var lines []string
	for _, rc := range inventory.Bookable() {
		lines = append(lines, fmt.Sprintf("%d. %s - NT$%s/晚（含早餐）", rc.Capacity, rc.Name, money(d.PriceOf(rc))))
	}
	return "📋 今日可預訂房型：\n\n" + strings.Join(lines, "\n") + "\n\n請輸入您想預訂的房型：\n" + msgSelectionHelp
}

func selectionRetry() string {
	var lines []string
	for _, rc := range inventory.Bookable() {
		lines = append(lines, fmt.Sprintf("%d. %s", rc.Capacity, rc.Name))
	}
	return "抱歉，請輸入正確的格式。\n\n可選房型：\n" + strings.Join(lines, "\n") + "\n\n" + msgSelectionHelp
}

func askCount(rc inventory.RoomClass, max int) string {
	return fmt.Sprintf("好的，您選擇了：%s\n\n請問需要幾間？（請輸入數字，1-%d間）", rc.Name, max-1)
}

func bedList(beds []string) string {
	lines := make([]string, len(beds))
	for i, b := range beds {
		lines[i] = fmt.Sprintf("%d. %s", i+1, b)
	}
	return strings.Join(lines, "\n")
}

func askBed(beds []string) string {
	return "請選擇床型：\n\n" + bedList(beds) + "\n\n請輸入編號（例如：1）"
}

func bedRetry(beds []string) string {
	return "請輸入正確的編號。\n\n可選床型：\n" + bedList(beds)
}

func accessibleSuffix(d *session.BookingDraft) string {
	if d.AccessibleOnly {
		return "\n\n" + msgAccessibleOnly
	}
	return ""
}

func singleLine(d *session.BookingDraft) string {
	return fmt.Sprintf("%s%s x %d 間", d.Room.Name, bedSuffix(d.Bed), d.Count)
}

func multiLines(d *session.BookingDraft) string {
	lines := make([]string, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = fmt.Sprintf("• %s x %d 間 - NT$%s", l.Room.Name, l.Count, money(d.PriceOf(l.Room)*l.Count))
	}
	return strings.Join(lines, "\n")
}

func roomsConfirmed(d *session.BookingDraft) string {
	if d.Multi {
		return fmt.Sprintf("好的，已確認您要預訂：\n\n%s\n%s\n💰 總計：NT$%s（含早餐）%s\n\n%s",
			multiLines(d), divider, money(d.TotalPrice), accessibleSuffix(d), msgInfoRequest)
	}
	return fmt.Sprintf("好的，已確認：\n🏨 %s%s\n\n%s", singleLine(d), accessibleSuffix(d), msgInfoRequest)
}

func missingInfo(d *session.BookingDraft) string {
	var missing []string
	if d.GuestName == "" {
		missing = append(missing, "姓名")
	}
	if d.Phone == "" {
		missing = append(missing, "聯絡電話")
	}
	if d.ArrivalTime == "" {
		missing = append(missing, "預計抵達時間")
	}
	if len(missing) == 0 {
		return ""
	}
	return "請再提供：" + strings.Join(missing, "、")
}

func bookingDetails(d *session.BookingDraft, displayName string, today time.Time) string {
	var b strings.Builder
	if d.Multi {
		fmt.Fprintf(&b, "🏨 房型：\n%s\n💰 總計：NT$%s（含早餐）\n", multiLines(d), money(d.TotalPrice))
	} else {
		fmt.Fprintf(&b, "🏨 房型：%s\n", singleLine(d))
	}
	if displayName == "" {
		displayName = "未提供"
	}
	fmt.Fprintf(&b, "📅 入住日期：%s\n👤 姓名：%s\n📞 電話：%s\n🕐 抵達時間：%s\n💬 LINE 姓名：%s",
		today.Format("2006-01-02"), d.GuestName, d.Phone, d.ArrivalTime, displayName)
	return b.String()
}

func confirmBooking(d *session.BookingDraft, displayName string, today time.Time) string {
	return "📋 請確認預訂資訊：\n\n" + bookingDetails(d, displayName, today) + "\n\n" + msgConfirmOptions
}

func (t Texts) bookingSucceeded(d *session.BookingDraft, displayName string, today time.Time, created []pms.Booking, failed int) string {
	ids := make([]string, 0, len(created))
	for _, c := range created {
		if c.OrderID != "" {
			ids = append(ids, c.OrderID)
		}
	}
	var b strings.Builder
	b.WriteString("✅ 預訂成功！\n\n")
	if len(ids) > 0 {
		fmt.Fprintf(&b, "🔖 訂單編號：%s\n", strings.Join(ids, "、"))
	}
	fmt.Fprintf(&b, "📋 預訂資訊：\n%s\n%s\n%s\n\n", divider, bookingDetails(d, displayName, today), divider)
	if failed > 0 {
		fmt.Fprintf(&b, "⚠️ 另有 %d 項房型未能完成預訂，請直接與櫃檯聯繫。\n\n", failed)
	}
	fmt.Fprintf(&b, msgBookingNotice, t.BookingURL)
	b.WriteString("\n\n期待您的光臨！🌊")
	return b.String()
}

func statusText(s pms.BookingStatus) string {
	if s == pms.StatusPending {
		return "待入住"
	}
	return "預約中斷"
}

func bedSuffix(bed string) string {
	if bed == "" {
		return ""
	}
	return " - " + bed
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func askCancel(bk pms.Booking) string {
	count := bk.RoomCount
	if count <= 0 {
		count = 1
	}
	return fmt.Sprintf("📋 您有一筆%s的當日訂單：\n\n🏨 房型：%s%s x %d 間\n👤 姓名：%s\n🕐 預計抵達：%s\n\n請問確定要取消嗎？\n1️⃣ 確認取消\n2️⃣ 保留訂單",
		statusText(bk.Status), bk.RoomName(), bedSuffix(bk.BedType), count, orDash(bk.GuestName), orDash(bk.ArrivalTime))
}

func cancelDone(bk pms.Booking) string {
	return fmt.Sprintf("✅ 已為您取消訂單！\n\n📋 已取消的訂單資訊：\n%s\n🏨 房型：%s\n👤 姓名：%s\n%s\n\n如有需要隨時歡迎再次預訂！",
		divider, bk.RoomName(), orDash(bk.GuestName), divider)
}

func orderSummary(o pms.Order) string {
	return fmt.Sprintf("📋 查詢結果\n\n🔖 訂單編號：%s\n👤 姓名：%s\n📅 入住：%s\n📅 退房：%s\n🏠 房型：%s\n🔢 數量：%d 間\n🌙 晚數：%d 晚\n\n%s",
		o.OrderID, o.GuestName, o.CheckIn, o.CheckOut, o.RoomType, o.RoomCount, o.Nights, msgOrderConfirmHint)
}

func orderChoices(orders []pms.Order) string {
	lines := []string{fmt.Sprintf("找到 %d 筆訂單，請輸入編號選擇：", len(orders)), ""}
	for i, o := range orders {
		lines = append(lines, fmt.Sprintf("%d. %s｜%s 入住｜%s", i+1, o.GuestName, o.CheckIn, o.RoomType))
	}
	return strings.Join(lines, "\n")
}

func orderConfirmed(o pms.Order, phone, arrival string) string {
	return fmt.Sprintf("✅ 已為您完成預訂資訊確認！\n\n📅 入住：%s\n📅 退房：%s\n🏠 房型：%s\n📞 電話：%s\n🕐 抵達：%s\n\n如有任何問題，歡迎隨時詢問！\n祝您旅途愉快！ 🎉",
		o.CheckIn, o.CheckOut, o.RoomType, phone, arrival)
}

func parkedAck(target session.Flow) string {
	switch target {
	case session.FlowOrderQuery:
		return "好的，完成目前的步驟後，我會接著幫您查詢訂單。"
	case session.FlowBooking:
		return "好的，完成目前的步驟後，我會接著幫您訂房。"
	}
	return "好的，完成目前的步驟後再為您處理。"
}

// money formats an amount with thousands separators.
func money(n int) string {
	if n < 0 {
		return "-" + money(-n)
	}
	s := strconv.Itoa(n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
