package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rutils/torrbot/internal/domain/claims"
)

func (b *Bot) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "delete_subscription":
		b.handleDeleteList(ctx, msg)
	case "admin_create":
		b.handleAdminCreate(ctx, msg)
	case "export":
		b.handleExport(ctx, msg)
	}
}

func (b *Bot) onCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	switch {
	case data == "nav:main":
		b.showMainMenu(cb)
	case data == "pay":
		b.showPayChannels(cb)
	case data == "status":
		b.handleStatus(ctx, cb)
	case data == "account":
		b.handleAccount(ctx, cb)
	case data == "trial":
		b.handleTrial(ctx, cb)
	case data == "pay:ch:sbp":
		b.showTariffs(cb, claims.ChannelSBP)
	case data == "pay:ch:wallet":
		b.showTariffs(cb, claims.ChannelWallet)
	case strings.HasPrefix(data, "tariff:"):
		b.handleTariffSelect(ctx, cb)
	case strings.HasPrefix(data, "claim:"):
		b.handleClaimSubmit(ctx, cb, strings.TrimPrefix(data, "claim:"))
	case strings.HasPrefix(data, "adm:ok:"):
		b.handleClaimConfirm(ctx, cb, strings.TrimPrefix(data, "adm:ok:"))
	case strings.HasPrefix(data, "adm:no:"):
		b.handleClaimReject(ctx, cb, strings.TrimPrefix(data, "adm:no:"))
	case strings.HasPrefix(data, "adm:del:"):
		b.handleDelete(ctx, cb, strings.TrimPrefix(data, "adm:del:"))
	default:
		_ = b.answerCallback(cb, "", false)
	}
}
