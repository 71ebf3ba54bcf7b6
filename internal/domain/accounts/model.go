package accounts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Account struct {
	Login      string
	TelegramID int64
	Password   string
	ExpiresAt  time.Time
	IsTrial    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Active — запись с истёкшим сроком считается отозванной, даже если строка
// ещё не удалена из базы.
func (a *Account) Active(now time.Time) bool {
	return a != nil && a.ExpiresAt.After(now)
}

// LoginForID строит логин по Telegram ID ("User12345").
func LoginForID(telegramID int64) string {
	return fmt.Sprintf("User%d", telegramID)
}

// IDForLogin — обратное преобразование для логинов вида User<id>;
// для логинов, заведённых администратором вручную, возвращает 0.
func IDForLogin(login string) int64 {
	s := strings.TrimPrefix(login, "User")
	if s == login {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
