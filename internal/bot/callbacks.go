package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cats_bot/internal/model"
	"cats_bot/internal/viewmodel"
)

// Actions shared by commands and inline buttons.
const (
	actionMore    = "more"
	actionOffline = "offline"
	actionRefresh = "refresh"
	actionFav     = "fav"
	actionInfo    = "info"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := ParseCallbackData(cb.Data)
	if !ok {
		return
	}

	attrs := []any{"action", action, "arg", arg, "chat_id", chatID}
	if cb.From != nil {
		attrs = append(attrs, "user_id", cb.From.ID, "username", cb.From.UserName)
	}
	b.log.Info("callback", attrs...)

	switch action {
	case actionMore:
		b.handleMore(ctx, chatID)
	case actionOffline:
		b.handleOffline(ctx, chatID)
	case actionRefresh:
		b.handleRefresh(ctx, chatID)
	case actionFav:
		b.handleFav(ctx, chatID, arg)
	case actionInfo:
		b.handleInfo(ctx, chatID, arg)
	}
}

func callbackData(action, arg string) string {
	return action + ":" + arg
}

func listingKeyboard(s viewmodel.State) *tgbotapi.InlineKeyboardMarkup {
	offline := s.Mode == model.ModeOffline

	var row []tgbotapi.InlineKeyboardButton
	if s.HasMore {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("More", callbackData(actionMore, "")))
	}
	if !s.HasConnection && !offline {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("View offline", callbackData(actionOffline, "")))
	}
	if offline || !s.HasConnection {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Refresh", callbackData(actionRefresh, "")))
	}
	if len(row) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return &markup
}

func favouriteKeyboard(id string, favourited bool) *tgbotapi.InlineKeyboardMarkup {
	label := "Add to favourites"
	if favourited {
		label = "Remove from favourites"
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(actionFav, id)),
		),
	)
	return &markup
}
