package line

import "time"

// EventKind is the subset of LINE events the concierge reacts to.
type EventKind string

const (
	KindFollow EventKind = "follow"
	KindText   EventKind = "text"
)

// InboundEvent is a parsed webhook event ready for the dispatcher.
type InboundEvent struct {
	Kind         EventKind
	EventID      string
	UserID       string
	ReplyToken   string
	Text         string
	Timestamp    time.Time
	IsRedelivery bool
}

// Profile is the public profile of a LINE user.
type Profile struct {
	UserID        string
	DisplayName   string
	PictureURL    string
	StatusMessage string
}
