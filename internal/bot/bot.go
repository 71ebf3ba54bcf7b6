package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rutils/torrbot/internal/domain/users"
	"github.com/rutils/torrbot/internal/engine"
)

// Config — презентационные настройки: реквизиты, адрес сервера, ссылки.
type Config struct {
	AdminID         int64
	SupportChatURL  string
	SBPPhone        string
	Wallet          string
	ServerAddress   string
	RateLimitPerSec float64
}

// Sender — отправка сообщений без остального бота. Движку подписок
// нужен только он: доставка best effort, заблокированный бот не должен
// ломать переходы.
type Sender struct {
	api *tgbotapi.BotAPI
	log *slog.Logger
}

func NewSender(api *tgbotapi.BotAPI, log *slog.Logger) *Sender {
	return &Sender{api: api, log: log}
}

func (s *Sender) send(msg tgbotapi.Chattable) {
	if _, err := s.api.Send(msg); err != nil {
		s.log.Error("send failed", "err", err)
	}
}

// Notify — реализация engine.Notifier.
func (s *Sender) Notify(telegramID int64, text string) {
	if telegramID == 0 {
		return
	}
	s.send(tgbotapi.NewMessage(telegramID, text))
}

type Bot struct {
	*Sender
	eng     *engine.Engine
	users   *users.Repo
	cfg     Config
	limiter *userLimiter
}

func New(sender *Sender, eng *engine.Engine, usersRepo *users.Repo, cfg Config) *Bot {
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 1
	}
	return &Bot{
		Sender:  sender,
		eng:     eng,
		users:   usersRepo,
		cfg:     cfg,
		limiter: newUserLimiter(cfg.RateLimitPerSec),
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				if !b.throttle(upd.Message.From.ID, upd.Message.Chat.ID) {
					continue
				}
				b.onMessage(ctx, upd.Message)
			} else if upd.CallbackQuery != nil {
				if !b.limiter.allow(upd.CallbackQuery.From.ID) {
					_ = b.answerCallback(upd.CallbackQuery, "Слишком много запросов. Подождите немного!", false)
					continue
				}
				b.onCallback(ctx, upd.CallbackQuery)
			}
		}
	}
}

// throttle отвечает на слишком частые сообщения вежливым отказом.
func (b *Bot) throttle(userID, chatID int64) bool {
	if b.limiter.allow(userID) {
		return true
	}
	b.send(tgbotapi.NewMessage(chatID, "Слишком много запросов. Подождите немного!"))
	return false
}

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) error {
	resp := tgbotapi.NewCallback(cb.ID, text)
	resp.ShowAlert = alert
	_, err := b.api.Request(resp)
	return err
}

func (b *Bot) editText(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	b.send(edit)
}

func (b *Bot) editTextMarkdown(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.send(edit)
}

func (b *Bot) isAdmin(userID int64) bool {
	return userID == b.cfg.AdminID
}
