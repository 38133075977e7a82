package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"
)

// FCMSender pushes notifications through Firebase Cloud Messaging. Devices
// subscribe to the "user-{id}" topic of their signed-in user.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender initializes a Firebase app from a service account file.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	return &FCMSender{client: client}, nil
}

// Topic returns the FCM topic for a user.
func Topic(userID string) string {
	return "user-" + userID
}

func (s *FCMSender) Send(ctx context.Context, n Notification) error {
	_, err := s.client.Send(ctx, Message(n))
	return err
}

// Message builds the FCM payload. Data values are stringified because FCM
// data payloads only carry strings.
func Message(n Notification) *messaging.Message {
	data := make(map[string]string, len(n.Data)+1)
	data["event"] = n.Event
	for k, v := range n.Data {
		data[k] = fmt.Sprint(v)
	}
	msg := &messaging.Message{
		Topic: Topic(n.UserID),
		Data:  data,
	}
	if title, body := display(n); title != "" {
		msg.Notification = &messaging.Notification{Title: title, Body: body}
	}
	return msg
}

// display returns the visible text for events worth a system notification.
func display(n Notification) (string, string) {
	switch n.Event {
	case EventTipReceived:
		return "New tip", fmt.Sprintf("You received %v tokens", n.Data["amount"])
	case EventCallRinging:
		return "Incoming call", "Someone is calling you"
	case EventCallEnded:
		return "Call ended", fmt.Sprintf("Reason: %v", n.Data["end_reason"])
	case EventWalletFrozen:
		return "Wallet on hold", "Your wallet is under review"
	}
	return "", ""
}
