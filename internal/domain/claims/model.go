package claims

import "time"

type Channel string

const (
	ChannelSBP    Channel = "sbp"
	ChannelWallet Channel = "wallet"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Claim — заявка пользователя «я перевёл деньги», ждущая решения
// администратора. В callback-данные кнопок попадает только ID.
type Claim struct {
	ID         string
	TelegramID int64
	Username   string
	Amount     int
	Channel    Channel
	Status     Status
	CreatedAt  time.Time
	DecidedAt  *time.Time
}

// ShortID — первые 8 символов UUID; их пользователь указывает
// в комментарии к переводу.
func (c *Claim) ShortID() string {
	if len(c.ID) < 8 {
		return c.ID
	}
	return c.ID[:8]
}
