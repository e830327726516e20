package model

type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusSkipped NotificationStatus = "skipped"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is an email rendered from a booking event.
type Notification struct {
	To      string
	Subject string
	Body    string
}
