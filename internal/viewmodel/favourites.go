package viewmodel

import (
	"context"
	"fmt"
	"log/slog"

	"cats_bot/internal/model"
)

// Favourites is the view-model of the favourite breeds screen.
type Favourites struct {
	store FavouriteStore
	log   *slog.Logger
}

// NewFavourites creates a Favourites view-model.
func NewFavourites(store FavouriteStore, log *slog.Logger) *Favourites {
	return &Favourites{store: store, log: log}
}

// List returns the favourited breeds sorted by name.
func (f *Favourites) List(ctx context.Context) ([]model.Breed, error) {
	breeds, err := f.store.ListFavourites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list favourites: %w", err)
	}
	return breeds, nil
}

// Toggle flips the favourite flag of breed id and returns the updated breed.
func (f *Favourites) Toggle(ctx context.Context, id string) (model.Breed, error) {
	breed, err := toggleFavourite(ctx, f.store, id)
	if err != nil {
		return model.Breed{}, err
	}
	f.log.Debug("favourite toggled", "breed_id", id, "favourited", breed.IsFavourited)
	return breed, nil
}

// AverageLifespan returns the mean maximum lifespan of the breeds whose
// lifespan is known, or 0 if none is.
func (f *Favourites) AverageLifespan(breeds []model.Breed) float64 {
	var total, n int
	for _, b := range breeds {
		if b.MaxLifespanYears == nil {
			continue
		}
		total += *b.MaxLifespanYears
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

func toggleFavourite(ctx context.Context, store FavouriteStore, id string) (model.Breed, error) {
	breed, err := store.GetBreed(ctx, id)
	if err != nil {
		return model.Breed{}, fmt.Errorf("get breed %s: %w", id, err)
	}
	if err := store.ToggleFavourite(ctx, breed); err != nil {
		return model.Breed{}, fmt.Errorf("toggle favourite %s: %w", id, err)
	}
	return *breed, nil
}
