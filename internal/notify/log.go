package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender writes notifications to the log. Used when no realtime
// transport is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, n Notification) error {
	logrus.WithFields(logrus.Fields{
		"user_id": n.UserID,
		"event":   n.Event,
		"data":    n.Data,
	}).Debug("Notification")
	return nil
}
