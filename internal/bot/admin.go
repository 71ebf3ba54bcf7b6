package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xuri/excelize/v2"

	"github.com/rutils/torrbot/internal/engine"
)

func (b *Bot) handleDeleteList(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From.ID) {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "У вас нет прав для выполнения этой команды."))
		return
	}

	list, err := b.eng.ListAccounts(ctx)
	if err != nil {
		b.log.Error("список учёток", "err", err)
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Произошла ошибка при получении списка."))
		return
	}
	if len(list) == 0 {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Нет пользователей с активными подписками."))
		return
	}

	m := tgbotapi.NewMessage(msg.Chat.ID, "Выберите пользователя для удаления подписки:")
	m.ReplyMarkup = deleteListKeyboard(list)
	b.send(m)
}

func (b *Bot) handleDelete(ctx context.Context, cb *tgbotapi.CallbackQuery, login string) {
	if !b.isAdmin(cb.From.ID) {
		_ = b.answerCallback(cb, "У вас нет прав для выполнения этой операции.", true)
		return
	}

	telegramID, err := b.eng.AdminDelete(ctx, cb.From.ID, login)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		b.editText(cb.Message.Chat.ID, cb.Message.MessageID,
			fmt.Sprintf("Пользователь %s уже удалён или не существует.", login), emptyKeyboard())
		_ = b.answerCallback(cb, "", false)
		return
	case err != nil:
		b.log.Error("удаление подписки", "login", login, "err", err)
		_ = b.answerCallback(cb, "Произошла ошибка. Проверьте логи.", true)
		return
	}

	b.Notify(telegramID,
		"Ваша подписка была удалена администратором. Обратитесь в поддержку, если у вас есть вопросы.")

	b.editText(cb.Message.Chat.ID, cb.Message.MessageID,
		fmt.Sprintf("Подписка пользователя %s успешно удалена.", login), emptyKeyboard())
	_ = b.answerCallback(cb, "Подписка удалена.", false)
}

// handleAdminCreate: /admin_create логин [пароль] [дней подписки]
func (b *Bot) handleAdminCreate(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From.ID) {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "У вас нет прав для выполнения этой команды."))
		return
	}

	usage := func() {
		m := tgbotapi.NewMessage(msg.Chat.ID,
			"Использование команды:\n`/admin_create логин [пароль] [дней подписки]`")
		m.ParseMode = tgbotapi.ModeMarkdown
		b.send(m)
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		usage()
		return
	}
	login := args[0]
	pass := ""
	days := 0
	if len(args) > 1 {
		pass = args[1]
	}
	if len(args) > 2 {
		var err error
		if days, err = strconv.Atoi(args[2]); err != nil {
			usage()
			return
		}
	}

	grant, err := b.eng.AdminCreate(ctx, msg.From.ID, login, pass, days)
	switch {
	case errors.Is(err, engine.ErrExists):
		m := tgbotapi.NewMessage(msg.Chat.ID,
			fmt.Sprintf("Учётная запись с логином `%s` уже существует.", login))
		m.ParseMode = tgbotapi.ModeMarkdown
		b.send(m)
		return
	case err != nil:
		b.log.Error("создание учётной записи", "login", login, "err", err)
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Произошла ошибка при создании учётной записи."))
		return
	}

	m := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf(
		"Учётная запись создана:\n*Логин:* %s\n*Пароль:* %s\n*Срок действия:* %s\nTorrServer перезапущен.",
		grant.Login, grant.Password, grant.ExpiresAt.Format("2006-01-02"),
	))
	m.ParseMode = tgbotapi.ModeMarkdown
	b.send(m)
}

// handleExport выгружает список учётных записей в .xlsx.
func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From.ID) {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "У вас нет прав для выполнения этой команды."))
		return
	}

	list, err := b.eng.ListAccounts(ctx)
	if err != nil {
		b.log.Error("экспорт учёток", "err", err)
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Произошла ошибка при выгрузке."))
		return
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	headers := []string{"login", "telegram_id", "expires_at", "is_trial", "active"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	now := time.Now()
	for row, a := range list {
		values := []any{
			a.Login,
			a.TelegramID,
			a.ExpiresAt.Format(timeLayout),
			a.IsTrial,
			a.Active(now),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		b.log.Error("формирование xlsx", "err", err)
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Произошла ошибка при выгрузке."))
		return
	}

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("accounts_%s.xlsx", now.Format("2006-01-02")),
		Bytes: buf.Bytes(),
	})
	doc.Caption = fmt.Sprintf("Учётные записи: %d", len(list))
	b.send(doc)
}
