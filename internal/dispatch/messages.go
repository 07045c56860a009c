package dispatch

const (
	msgRetry = "系統忙碌中，暫時無法完成您的需求，請稍後再傳一次訊息，謝謝您的耐心 🙏"

	msgHelp = `您好，我是 KTW 飯店小幫手 😊
您可以輸入：
・「今天訂房」預訂今晚入住的房間
・「查訂單」查詢並確認已有的訂單
・「取消訂房」取消剛送出的當日訂房
其他問題歡迎直接致電櫃台，我們會盡快為您服務。`

	msgFollow = `感謝您加入 KTW 飯店好友！
今晚需要住宿嗎？輸入「今天訂房」即可查看今日空房；查詢訂單請輸入「查訂單」。`
)

// Greeting is the reply for a new follower.
func Greeting() string {
	return msgFollow
}

// RetryReply is sent when a queued message could not be dispatched at all.
func RetryReply() string {
	return msgRetry
}
