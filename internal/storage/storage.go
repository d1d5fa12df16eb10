// Package storage defines the breeds cache interface and its implementations.
package storage

import (
	"context"
	"errors"
	"fmt"

	"cats_bot/internal/model"
)

// Storage is the interface for all breed cache operations.
type Storage interface {
	FetchPage(ctx context.Context, query string, page, pageSize int) ([]model.Breed, error)
	Persist(ctx context.Context, dtos []model.BreedDTO) ([]model.Breed, error)
	Prune(ctx context.Context) (int, error)

	GetBreed(ctx context.Context, id string) (*model.Breed, error)
	ListFavourites(ctx context.Context) ([]model.Breed, error)
	ToggleFavourite(ctx context.Context, b *model.Breed) error

	Close() error
}

// ErrNotFound is returned when a breed id is not in the cache.
var ErrNotFound = errors.New("breed not found")

// PersistenceError reports a failed local store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
