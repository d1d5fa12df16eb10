package bot

import (
	"context"
	"errors"
	"fmt"

	"cats_bot/internal/datasource"
	"cats_bot/internal/storage"
	"cats_bot/internal/viewmodel"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Cats Bot!

Browse cat breeds from The Cat API, even when it is offline.

Quick start:
1. /breeds: list all breeds
2. /breeds <name>: search breeds by name
3. /fav <id>: add a breed to your favourites

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Browsing:
/breeds [name]: list breeds, optionally filtered by name
/more: show the next page
/offline: browse the cached breeds only
/refresh: reload the listing from The Cat API

Breeds:
/info <id>: breed details
/fav <id>: add or remove a favourite
/favourites: list favourites with their average lifespan`)
}

func (b *Bot) handleBreeds(ctx context.Context, chatID int64, args string) {
	vm := b.session(chatID)
	vm.SetQuery(ParseQuery(args))
	b.renderListing(chatID, vm, 0, vm.LoadFirstPage(ctx))
}

func (b *Bot) handleMore(ctx context.Context, chatID int64) {
	vm := b.session(chatID)
	s := vm.State()
	switch {
	case s.Phase == viewmodel.PhaseLoadingFirst && len(vm.Breeds()) == 0:
		b.reply(chatID, "Use /breeds to start browsing.")
		return
	case s.Phase != viewmodel.PhaseLoaded:
		return
	case !s.HasMore:
		b.reply(chatID, "No more breeds.")
		return
	}

	start := len(vm.Breeds())
	b.renderListing(chatID, vm, start, vm.LoadNextPageIfNeeded(ctx))
}

func (b *Bot) handleOffline(ctx context.Context, chatID int64) {
	vm := b.session(chatID)
	b.renderListing(chatID, vm, 0, vm.ActivateOfflineMode(ctx))
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) {
	vm := b.session(chatID)
	err := vm.AttemptNetworkRefresh(ctx)
	if err != nil && !errors.Is(err, datasource.ErrCancelled) && vm.State().OfflineAlert {
		vm.ClearNotices()
		b.log.Info("refresh failed while offline", "chat_id", chatID, "error", err)
		b.send(chatID, "Still offline. Showing cached breeds.", listingKeyboard(vm.State()))
		return
	}
	b.renderListing(chatID, vm, 0, err)
}

// renderListing sends the breeds added to vm since start, or the error of
// the load that should have added them.
func (b *Bot) renderListing(chatID int64, vm *viewmodel.Breeds, start int, err error) {
	if errors.Is(err, datasource.ErrCancelled) {
		return
	}
	if err != nil {
		b.log.Warn("load breeds", "chat_id", chatID, "error", err)
		b.send(chatID, FormatError(err), listingKeyboard(vm.State()))
		return
	}

	s := vm.State()
	breeds := vm.Breeds()
	if s.IsReload {
		start = 0
	}
	start = min(start, len(breeds))

	b.send(chatID, FormatBreedList(breeds[start:], start, s, vm.Query()), listingKeyboard(s))
	if s.ReconnectedToast {
		vm.ClearNotices()
	}
}

func (b *Bot) handleFav(ctx context.Context, chatID int64, args string) {
	id, err := ParseBreedID(args)
	if err != nil {
		b.reply(chatID, "Usage: /fav <id>")
		return
	}

	breed, err := b.session(chatID).ToggleFavourite(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Breed %q not found. Use /breeds to load it first.", id))
		return
	}
	if err != nil {
		b.log.Error("toggle favourite", "chat_id", chatID, "breed_id", id, "error", err)
		b.reply(chatID, FormatError(err))
		return
	}

	text := fmt.Sprintf("Removed %s from favourites.", breed.Name)
	if breed.IsFavourited {
		text = fmt.Sprintf("Added %s to favourites %s", breed.Name, favouriteMark)
	}
	b.send(chatID, text, favouriteKeyboard(breed.ID, breed.IsFavourited))
}

func (b *Bot) handleFavourites(ctx context.Context, chatID int64) {
	breeds, err := b.favs.List(ctx)
	if err != nil {
		b.log.Error("list favourites", "chat_id", chatID, "error", err)
		b.reply(chatID, FormatError(err))
		return
	}
	b.reply(chatID, FormatFavourites(breeds, b.favs.AverageLifespan(breeds)))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseBreedID(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <id>")
		return
	}

	breed, err := b.store.GetBreed(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Breed %q not found.", id))
		return
	}
	if err != nil {
		b.log.Error("get breed", "chat_id", chatID, "breed_id", id, "error", err)
		b.reply(chatID, FormatError(err))
		return
	}
	b.send(chatID, FormatBreedInfo(breed), favouriteKeyboard(breed.ID, breed.IsFavourited))
}
