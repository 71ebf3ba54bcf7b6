package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rutils/torrbot/internal/engine"
)

const timeLayout = "2006-01-02 15:04:05"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	// контактная запись: только факт знакомства, подписками движок
	// управляет отдельно
	if err := b.users.UpsertFromTelegram(ctx, msg.From.ID, msg.From.UserName); err != nil {
		b.log.Error("сохранение контакта", "telegram_id", msg.From.ID, "err", err)
	}

	m := tgbotapi.NewMessage(msg.Chat.ID,
		"Привет! Я бот для подписок TorrServer. Выберите нужное действие из меню ниже:")
	m.ReplyMarkup = b.mainMenuKeyboard()
	b.send(m)
}

func (b *Bot) showMainMenu(cb *tgbotapi.CallbackQuery) {
	b.editText(cb.Message.Chat.ID, cb.Message.MessageID,
		"Выберите нужное действие:", b.mainMenuKeyboard())
	_ = b.answerCallback(cb, "", false)
}

func (b *Bot) handleTrial(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	grant, err := b.eng.RequestTrial(ctx, cb.From.ID)
	switch {
	case errors.Is(err, engine.ErrAlreadyActive):
		b.editText(chatID, msgID,
			"У вас уже есть активная подписка. Пробный период недоступен.\n\n"+
				"Продлите подписку через главное меню.", backToMainKeyboard())
		_ = b.answerCallback(cb, "", false)
		return
	case errors.Is(err, engine.ErrTrialUsed):
		b.editText(chatID, msgID,
			"Вы уже использовали пробный период.\n\n"+
				"Если вы хотите продолжить пользоваться сервисом, оформите подписку через главное меню.",
			backToMainKeyboard())
		_ = b.answerCallback(cb, "", false)
		return
	case err != nil:
		b.log.Error("активация пробного периода", "telegram_id", cb.From.ID, "err", err)
		b.editText(chatID, msgID,
			"Произошла ошибка. Пожалуйста, попробуйте позже.", b.supportKeyboard())
		_ = b.answerCallback(cb, "", false)
		return
	}

	b.editTextMarkdown(chatID, msgID, fmt.Sprintf(
		"Ваш пробный период активирован на 8 часов.\n\n"+
			"*Ваши данные для подключения:*\n"+
			"*Адрес:* %s\n"+
			"*Логин:* %s\n"+
			"*Пароль:* %s\n"+
			"*Срок действия:* %s\n\n"+
			"Спасибо, что выбрали наш сервис!",
		b.cfg.ServerAddress, grant.Login, grant.Password, grant.ExpiresAt.Format(timeLayout),
	), backToMainKeyboard())

	username := cb.From.UserName
	if username == "" {
		username = "Без имени"
	}
	b.Notify(b.cfg.AdminID, fmt.Sprintf(
		"Пользователь @%s (ID: %d) активировал пробный период.\n\n"+
			"Логин: %s\nСрок действия: %s\nПароль: %s",
		username, cb.From.ID, grant.Login, grant.ExpiresAt.Format(timeLayout), grant.Password,
	))
	_ = b.answerCallback(cb, "", false)
}

func (b *Bot) handleStatus(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	st, err := b.eng.GetStatus(ctx, cb.From.ID)
	if err != nil {
		b.log.Error("статус подписки", "telegram_id", cb.From.ID, "err", err)
		b.editText(chatID, msgID,
			"Ошибка в данных подписки. Пожалуйста, свяжитесь с поддержкой.", b.supportKeyboard())
		_ = b.answerCallback(cb, "", false)
		return
	}
	if !st.Active {
		b.editText(chatID, msgID,
			"У вас нет активной подписки. Оформите подписку через главное меню.", backToMainKeyboard())
		_ = b.answerCallback(cb, "", false)
		return
	}

	text := fmt.Sprintf(
		"Ваш статус подписки:\n\n*Логин:* %s\n*Срок действия подписки:* %s\n",
		st.Login, st.ExpiresAt.Format(timeLayout),
	)
	text += subscriptionTypeLine(st.IsTrial)

	b.editTextMarkdown(chatID, msgID, text, backToMainKeyboard())
	_ = b.answerCallback(cb, "", false)
}

func (b *Bot) handleAccount(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	st, err := b.eng.GetStatus(ctx, cb.From.ID)
	if err != nil {
		b.log.Error("данные учётной записи", "telegram_id", cb.From.ID, "err", err)
		b.editText(chatID, msgID,
			"Ошибка в данных учётной записи. Пожалуйста, свяжитесь с поддержкой.", b.supportKeyboard())
		_ = b.answerCallback(cb, "", false)
		return
	}
	if !st.Active {
		b.editText(chatID, msgID,
			"У вас нет активной подписки. Оформите подписку через главное меню.", backToMainKeyboard())
		_ = b.answerCallback(cb, "", false)
		return
	}

	text := fmt.Sprintf(
		"*Ваши данные для подключения к TorrServer:*\n\n"+
			"*Адрес:* %s\n*Логин:* %s\n*Пароль:* %s\n*Срок действия подписки:* %s\n",
		b.cfg.ServerAddress, st.Login, st.Password, st.ExpiresAt.Format(timeLayout),
	)
	text += subscriptionTypeLine(st.IsTrial)

	b.editTextMarkdown(chatID, msgID, text, backToMainKeyboard())
	_ = b.answerCallback(cb, "", false)
}

func subscriptionTypeLine(isTrial bool) string {
	if isTrial {
		return "\n*Тип подписки:* Пробный период (8 часов)\n"
	}
	return "\n*Тип подписки:* Обычная\n"
}
