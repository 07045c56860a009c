package worker

import (
	"context"

	"github.com/ktwhotel/concierge/pkg/logging"
)

// LogMessenger stands in for the LINE client when no channel token is
// configured. Replies are logged and dropped.
type LogMessenger struct {
	logger *logging.Logger
}

func NewLogMessenger(logger *logging.Logger) *LogMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogMessenger{logger: logger}
}

func (m *LogMessenger) Reply(_ context.Context, replyToken string, texts ...string) error {
	m.logger.Info("line reply (not sent)", "reply_token", replyToken, "messages", len(texts), "text", first(texts))
	return nil
}

func (m *LogMessenger) Push(_ context.Context, userID string, texts ...string) error {
	m.logger.Info("line push (not sent)", "user_id", userID, "messages", len(texts), "text", first(texts))
	return nil
}

func first(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	return texts[0]
}

var _ Messenger = (*LogMessenger)(nil)
