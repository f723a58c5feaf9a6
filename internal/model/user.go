package model

import "time"

type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	IsTeacher  bool      `json:"is_teacher"`
	PaymentRef string    `json:"payment_ref"` // плательщик во внешней платёжной системе
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayName имя для уведомлений
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	}
	return "пользователь"
}
