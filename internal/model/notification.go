package model

// EventType событие жизненного цикла занятия, о котором уведомляются участники
type EventType string

const (
	EventSessionRequested EventType = "session.requested"
	EventSessionAccepted  EventType = "session.accepted"
	EventSessionRefused   EventType = "session.refused"
	EventSessionCountered EventType = "session.countered"
	EventSessionCancelled EventType = "session.cancelled"
	EventSessionCompleted EventType = "session.completed"
)

// Notification адресное уведомление. Payload содержит только строки,
// чтобы его можно было положить в очередь без потерь.
type Notification struct {
	UserID  int64             `json:"user_id"`
	Event   EventType         `json:"event"`
	Payload map[string]string `json:"payload"`
}
