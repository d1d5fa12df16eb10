package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"cats_bot/internal/config"
	"cats_bot/internal/datasource"
	"cats_bot/internal/storage"
	"cats_bot/internal/viewmodel"
)

const (
	maxSessions = 1024
	sessionTTL  = 30 * time.Minute
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram front end of the breed catalogue. Each chat browses
// its own listing.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	fetcher datasource.Fetcher
	cfg     *config.Config
	favs    *viewmodel.Favourites
	log     *slog.Logger

	mu       sync.Mutex
	sessions *expirable.LRU[int64, *viewmodel.Breeds]
	wg       sync.WaitGroup
}

// New creates a Bot with the given Telegram token, storage, fetcher, and config.
func New(token string, store storage.Storage, f datasource.Fetcher, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, store, f, cfg, log), nil
}

func newBot(api telegramAPI, store storage.Storage, f datasource.Fetcher, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		store:    store,
		fetcher:  f,
		cfg:      cfg,
		favs:     viewmodel.NewFavourites(store, log),
		log:      log,
		sessions: expirable.NewLRU[int64, *viewmodel.Breeds](maxSessions, nil, sessionTTL),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and every in-flight update has been handled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return
		case update := <-updates:
			// Updates run concurrently so a new search can cancel a slow one.
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.From == nil {
			return
		}
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.reply(cb.Message.Chat.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}

	msg := update.Message
	if msg == nil || !msg.IsCommand() || msg.From == nil {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

// session returns the listing of chatID, creating it on first use.
func (b *Bot) session(chatID int64) *viewmodel.Breeds {
	b.mu.Lock()
	defer b.mu.Unlock()

	if vm, ok := b.sessions.Get(chatID); ok {
		return vm
	}
	log := b.log.With("chat_id", chatID)
	ds := datasource.New(b.fetcher, b.store, b.cfg.PageSize, log)
	vm := viewmodel.NewBreeds(ds, b.store, log)
	b.sessions.Add(chatID, vm)
	return vm
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	b.send(chatID, text, nil)
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "breeds", "search":
		b.handleBreeds(ctx, chatID, args)
	case actionMore:
		b.handleMore(ctx, chatID)
	case actionOffline:
		b.handleOffline(ctx, chatID)
	case actionRefresh:
		b.handleRefresh(ctx, chatID)
	case actionFav:
		b.handleFav(ctx, chatID, args)
	case "favourites", "favorites":
		b.handleFavourites(ctx, chatID)
	case actionInfo:
		b.handleInfo(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
