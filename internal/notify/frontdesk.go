// Package notify emails the front desk when a guest completes a same-day
// booking, cancels one, or confirms an existing order.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ktwhotel/concierge/pkg/logging"
)

const (
	defaultFromName = "KTW Hotel Concierge"
	sendTimeout     = 10 * time.Second
)

// FrontDesk delivers staff notices. Delivery is best-effort: failures are
// logged and swallowed so a guest's conversation never depends on email.
type FrontDesk struct {
	email    EmailSender
	to       string
	tenantID string
	prefix   string
	logger   *logging.Logger
}

// NewFrontDesk returns a notifier that sends to the given address. A nil
// sender or empty address yields a notifier that only logs.
func NewFrontDesk(email EmailSender, to, tenantID string, logger *logging.Logger) *FrontDesk {
	if logger == nil {
		logger = logging.Default()
	}
	prefix := "[Concierge]"
	if tenantID != "" {
		prefix = fmt.Sprintf("[Concierge %s]", tenantID)
	}
	return &FrontDesk{email: email, to: strings.TrimSpace(to), tenantID: tenantID, prefix: prefix, logger: logger}
}

// NotifyStaff sends one notice about the given guest.
func (f *FrontDesk) NotifyStaff(ctx context.Context, userID, subject, body string) {
	if f == nil {
		return
	}
	if f.email == nil || f.to == "" {
		f.logger.Debug("notify: front desk email not configured", "user_id", userID, "subject", subject)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	msg := EmailMessage{
		To:       f.to,
		ToName:   "Front Desk",
		Subject:  f.prefix + " " + subject,
		Body:     body + "\n\nLINE user: " + userID,
		TenantID: f.tenantID,
		UserID:   userID,
	}
	if err := f.email.Send(ctx, msg); err != nil {
		f.logger.Warn("notify: front desk email failed", "error", err, "user_id", userID, "subject", subject)
	}
}
