package protocol

import "context"

// Channel selects the delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
)

// Notification is one message handed to a NotificationSender.
type Notification struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
}

// NotificationSender delivers email and in-app messages.
type NotificationSender interface {
	Send(ctx context.Context, notification Notification) error
}
