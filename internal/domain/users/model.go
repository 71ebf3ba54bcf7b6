package users

import "time"

// User — контактная запись, заводится при первом /start.
// SubscriptionExpiry оставлено под будущий учёт, движок подписок его
// не заполняет: срок действия живёт в accounts.
type User struct {
	ID                 int64
	TelegramID         int64
	Username           string
	SubscriptionExpiry *time.Time
	CreatedAt          time.Time
}
