// Package model defines the domain types used across the application.
package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DataSourceMode selects which backing store serves paging requests.
type DataSourceMode string

// Supported data source modes.
const (
	ModeOnline  DataSourceMode = "online"
	ModeOffline DataSourceMode = "offline"
)

// Breed is a cat breed persisted in the local cache.
type Breed struct {
	ID               string
	Name             string
	Origin           string
	Description      string
	Temperament      string
	MaxLifespanYears *int
	ImageURL         string
	IsFavourited     bool
	PersistedAt      *time.Time
}

// BreedDTO is a breed as received from the remote API.
type BreedDTO struct {
	ID          string
	Name        string
	Origin      string
	Description string
	Temperament string
	MaxLifespan *int
	ImageURL    string
}

type breedWire struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	Origin      string  `json:"origin"`
	Description string  `json:"description"`
	Temperament string  `json:"temperament"`
	LifeSpan    string  `json:"life_span"`
	Image       *struct {
		URL string `json:"url"`
	} `json:"image"`
}

// UnmarshalJSON decodes one API item. id and name are required.
func (d *BreedDTO) UnmarshalJSON(data []byte) error {
	var w breedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == nil {
		return errors.New("breed: missing id")
	}
	if w.Name == nil {
		return errors.New("breed: missing name")
	}

	*d = BreedDTO{
		ID:          *w.ID,
		Name:        *w.Name,
		Origin:      w.Origin,
		Description: w.Description,
		Temperament: w.Temperament,
		MaxLifespan: ParseLifespan(w.LifeSpan),
	}
	if w.Image != nil {
		d.ImageURL = w.Image.URL
	}
	return nil
}

// ParseLifespan returns the upper bound of a "low - high" life span text.
// Malformed or empty text yields nil.
func ParseLifespan(text string) *int {
	var (
		maxYears int
		found    bool
	)
	for _, part := range strings.Split(text, "-") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if !found || n > maxYears {
			maxYears = n
			found = true
		}
	}
	if !found {
		return nil
	}
	return &maxYears
}

// NewBreed builds a fresh record from a DTO, stamped with now.
func NewBreed(dto BreedDTO, now time.Time) Breed {
	var b Breed
	b.ID = dto.ID
	b.Apply(dto, now)
	return b
}

// Apply refreshes the descriptive fields and PersistedAt from dto.
// IsFavourited and ID are left untouched.
func (b *Breed) Apply(dto BreedDTO, now time.Time) {
	b.Name = dto.Name
	b.Origin = dto.Origin
	b.Description = dto.Description
	b.Temperament = dto.Temperament
	b.MaxLifespanYears = dto.MaxLifespan
	b.ImageURL = dto.ImageURL
	b.PersistedAt = &now
}

// Page is one bounded slice of results plus pagination metadata.
type Page[T any] struct {
	Items   []T
	Number  int
	HasMore bool
	Mode    DataSourceMode
}

// NewPage builds a page. HasMore is a heuristic: a full page suggests more.
func NewPage[T any](items []T, number, pageSize int, mode DataSourceMode) Page[T] {
	return Page[T]{
		Items:   items,
		Number:  number,
		HasMore: len(items) > 0 && len(items) >= pageSize,
		Mode:    mode,
	}
}

// IsReload reports whether the page starts a fresh listing.
func (p Page[T]) IsReload() bool {
	return p.Number == 1
}
