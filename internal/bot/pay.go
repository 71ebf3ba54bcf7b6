package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rutils/torrbot/internal/domain/claims"
)

func (b *Bot) showPayChannels(cb *tgbotapi.CallbackQuery) {
	b.editText(cb.Message.Chat.ID, cb.Message.MessageID,
		"Выберите способ оплаты подписки:", payChannelsKeyboard())
	_ = b.answerCallback(cb, "", false)
}

func (b *Bot) showTariffs(cb *tgbotapi.CallbackQuery, channel claims.Channel) {
	var text string
	if channel == claims.ChannelSBP {
		text = fmt.Sprintf(
			"Выберите тариф для оплаты через СБП Озон Банк. Переводите средства на номер:\n\n"+
				"💳 %s\n\n"+
				"После перевода обязательно укажите уникальный идентификатор, который будет предоставлен на следующем шаге.",
			b.cfg.SBPPhone)
	} else {
		text = fmt.Sprintf(
			"Выберите тариф для оплаты через Telegram-кошелёк. Переводите средства на:\n\n"+
				"💳 %s\n\n"+
				"После перевода обязательно укажите уникальный идентификатор, который будет предоставлен на следующем шаге.",
			b.cfg.Wallet)
	}
	b.editText(cb.Message.Chat.ID, cb.Message.MessageID, text, tariffKeyboard(channel))
	_ = b.answerCallback(cb, "", false)
}

// handleTariffSelect: "tariff:<channel>:<amount>" → заявка в базе,
// пользователю — реквизиты и идентификатор для комментария к переводу.
func (b *Bot) handleTariffSelect(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parts := strings.Split(cb.Data, ":")
	if len(parts) != 3 {
		_ = b.answerCallback(cb, "Произошла ошибка. Попробуйте ещё раз.", true)
		return
	}
	channel := claims.Channel(parts[1])
	amount, err := strconv.Atoi(parts[2])
	if err != nil || (channel != claims.ChannelSBP && channel != claims.ChannelWallet) {
		_ = b.answerCallback(cb, "Произошла ошибка. Попробуйте ещё раз.", true)
		return
	}

	cl, err := b.eng.CreateClaim(ctx, cb.From.ID, cb.From.UserName, amount, channel)
	if err != nil {
		b.log.Error("создание заявки на оплату", "telegram_id", cb.From.ID, "amount", amount, "err", err)
		_ = b.answerCallback(cb, "Произошла ошибка. Попробуйте ещё раз.", true)
		return
	}

	dest := b.cfg.SBPPhone
	unit := "руб."
	via := "через СБП Озон Банк"
	if channel == claims.ChannelWallet {
		dest = b.cfg.Wallet
		unit = "USDT"
		via = "через Telegram-кошелёк"
	}

	b.editTextMarkdown(cb.Message.Chat.ID, cb.Message.MessageID, fmt.Sprintf(
		"Вы выбрали тариф на сумму *%d %s*\n\n"+
			"Переведите эту сумму %s на:\n💳 %s\n\n"+
			"‼️ Укажите уникальный идентификатор в комментарии: `%s`\n\n"+
			"После перевода нажмите кнопку 'Оплатил'.",
		amount, unit, via, dest, cl.ShortID(),
	), paidKeyboard(cl.ID))
	_ = b.answerCallback(cb, "", false)
}

// handleClaimSubmit: пользователь нажал «Оплатил» — заявка уходит
// администратору с кнопками решения.
func (b *Bot) handleClaimSubmit(ctx context.Context, cb *tgbotapi.CallbackQuery, claimID string) {
	cl, err := b.eng.GetClaim(ctx, claimID)
	if err != nil || cl == nil {
		b.log.Error("заявка не найдена", "claim", claimID, "err", err)
		_ = b.answerCallback(cb, "Произошла ошибка. Повторите попытку.", true)
		return
	}
	if cl.Status != claims.StatusPending {
		_ = b.answerCallback(cb, "Эта заявка уже обработана.", true)
		return
	}

	username := cl.Username
	if username == "" {
		username = "Без имени"
	}
	unit := "руб."
	via := "СБП"
	if cl.Channel == claims.ChannelWallet {
		unit = "USDT"
		via = "Telegram-кошелёк"
	}

	admin := tgbotapi.NewMessage(b.cfg.AdminID, fmt.Sprintf(
		"Пользователь @%s (ID: %d) сообщил о переводе через %s.\n\n"+
			"Сумма: *%d %s*\nУникальный идентификатор: `%s`",
		username, cl.TelegramID, via, cl.Amount, unit, cl.ShortID(),
	))
	admin.ParseMode = tgbotapi.ModeMarkdown
	admin.ReplyMarkup = claimDecisionKeyboard(cl.ID)
	b.send(admin)

	b.editText(cb.Message.Chat.ID, cb.Message.MessageID,
		"Ваш запрос на оплату подписки отправлен на проверку.\nОжидайте подтверждения от администратора.",
		backToMainKeyboard())
	_ = b.answerCallback(cb, "Запрос отправлен администратору.", false)
}

func (b *Bot) handleClaimConfirm(ctx context.Context, cb *tgbotapi.CallbackQuery, claimID string) {
	if !b.isAdmin(cb.From.ID) {
		_ = b.answerCallback(cb, "У вас нет прав для выполнения этой операции.", true)
		return
	}

	grant, cl, err := b.eng.ConfirmClaim(ctx, cb.From.ID, claimID)
	switch {
	case errors.Is(err, claims.ErrAlreadyDecided):
		_ = b.answerCallback(cb, "Эта заявка уже обработана.", true)
		return
	case err != nil:
		b.log.Error("подтверждение оплаты", "claim", claimID, "err", err)
		_ = b.answerCallback(cb, "Произошла ошибка. Проверьте логи.", true)
		return
	}

	unit := "руб."
	via := "СБП"
	if cl.Channel == claims.ChannelWallet {
		unit = "USDT"
		via = "Telegram-кошелёк"
	}

	user := tgbotapi.NewMessage(cl.TelegramID, fmt.Sprintf(
		"Ваш платёж на сумму *%d %s* через %s успешно подтверждён.\n\n"+
			"*Ваши данные для подключения к TorrServer:*\n"+
			"🌐 *Адрес:* %s\n"+
			"🔑 *Логин:* `%s`\n"+
			"🔑 *Пароль:* `%s`\n"+
			"📅 *Срок действия:* %s\n\n"+
			"Спасибо за использование нашего сервиса!",
		cl.Amount, unit, via, b.cfg.ServerAddress, grant.Login, grant.Password,
		grant.ExpiresAt.Format(timeLayout),
	))
	user.ParseMode = tgbotapi.ModeMarkdown
	b.send(user)

	b.editTextMarkdown(cb.Message.Chat.ID, cb.Message.MessageID, fmt.Sprintf(
		"Оплата через %s пользователя с ID %d подтверждена.\n\n"+
			"Сумма: %d %s\nЛогин: `%s`\nПароль: `%s`\nСрок действия: %s",
		via, cl.TelegramID, cl.Amount, unit, grant.Login, grant.Password,
		grant.ExpiresAt.Format(timeLayout),
	), emptyKeyboard())
	_ = b.answerCallback(cb, "Подтверждение выполнено.", false)
}

func (b *Bot) handleClaimReject(ctx context.Context, cb *tgbotapi.CallbackQuery, claimID string) {
	if !b.isAdmin(cb.From.ID) {
		_ = b.answerCallback(cb, "У вас нет прав для выполнения этой операции.", true)
		return
	}

	cl, err := b.eng.RejectClaim(ctx, cb.From.ID, claimID)
	switch {
	case errors.Is(err, claims.ErrAlreadyDecided):
		_ = b.answerCallback(cb, "Эта заявка уже обработана.", true)
		return
	case err != nil:
		b.log.Error("отклонение оплаты", "claim", claimID, "err", err)
		_ = b.answerCallback(cb, "Произошла ошибка. Проверьте логи.", true)
		return
	}

	b.Notify(cl.TelegramID, "Ваш платёж был отклонён. Проверьте данные и попробуйте снова.")

	b.editText(cb.Message.Chat.ID, cb.Message.MessageID, fmt.Sprintf(
		"Платёж от пользователя с ID %d был отклонён.", cl.TelegramID,
	), emptyKeyboard())
	_ = b.answerCallback(cb, "Платёж отклонён.", false)
}
