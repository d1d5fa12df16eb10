package bot

import (
	"errors"
	"fmt"
	"strings"

	"cats_bot/internal/fetcher"
	"cats_bot/internal/model"
	"cats_bot/internal/storage"
	"cats_bot/internal/viewmodel"
)

const favouriteMark = "★"

// FormatBreedList formats a slice of a listing. start is the number of
// breeds shown before this slice; 0 starts a new listing with a header.
func FormatBreedList(breeds []model.Breed, start int, s viewmodel.State, query string) string {
	var b strings.Builder
	if s.ReconnectedToast {
		b.WriteString("Back online.\n\n")
	}

	switch {
	case len(breeds) == 0 && start > 0:
		b.WriteString("No more breeds.")
	case len(breeds) == 0 && query != "":
		fmt.Fprintf(&b, "No breeds match %q.", query)
	case len(breeds) == 0:
		b.WriteString("No breeds found.")
	default:
		if start == 0 {
			if query != "" {
				fmt.Fprintf(&b, "Breeds matching %q:\n", query)
			} else {
				b.WriteString("Breeds:\n")
			}
		}
		for i, br := range breeds {
			fmt.Fprintf(&b, "\n%d. %s [%s]", start+i+1, br.Name, br.ID)
			if br.Origin != "" {
				fmt.Fprintf(&b, ", %s", br.Origin)
			}
			if br.IsFavourited {
				b.WriteString(" " + favouriteMark)
			}
		}
	}

	switch {
	case s.Mode == model.ModeOffline:
		b.WriteString("\n\nShowing cached breeds (offline).")
	case !s.HasConnection:
		b.WriteString("\n\nThe Cat API is unreachable.")
	}
	return b.String()
}

// FormatBreedInfo formats detailed information about a single breed.
func FormatBreedInfo(br *model.Breed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", br.Name, br.ID)
	if br.IsFavourited {
		b.WriteString(" " + favouriteMark)
	}
	b.WriteString("\n")
	if br.Origin != "" {
		fmt.Fprintf(&b, "Origin: %s\n", br.Origin)
	}
	if br.MaxLifespanYears != nil {
		fmt.Fprintf(&b, "Lifespan: up to %d years\n", *br.MaxLifespanYears)
	}
	if br.Temperament != "" {
		fmt.Fprintf(&b, "Temperament: %s\n", br.Temperament)
	}
	if br.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", br.Description)
	}
	if br.ImageURL != "" {
		fmt.Fprintf(&b, "\n%s\n", br.ImageURL)
	}
	if br.PersistedAt != nil {
		fmt.Fprintf(&b, "\nCached: %s", br.PersistedAt.Format("2006-01-02 15:04 UTC"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatFavourites formats the favourite breeds with their average lifespan.
func FormatFavourites(breeds []model.Breed, averageLifespan float64) string {
	if len(breeds) == 0 {
		return "You have no favourite breeds yet. Use /fav <id> to add one."
	}
	var b strings.Builder
	b.WriteString("Your favourite breeds:\n")
	for _, br := range breeds {
		fmt.Fprintf(&b, "\n%s %s [%s]", favouriteMark, br.Name, br.ID)
	}
	if averageLifespan > 0 {
		fmt.Fprintf(&b, "\n\nAverage lifespan: %.1f years", averageLifespan)
	}
	return b.String()
}

// FormatError turns a load or store failure into a user-facing message.
func FormatError(err error) string {
	var ne *fetcher.NetworkError
	var pe *storage.PersistenceError
	switch {
	case fetcher.IsOffline(err):
		return "The Cat API is unreachable. Use /offline to browse cached breeds."
	case errors.Is(err, fetcher.ErrThrottled):
		return "Too many requests to The Cat API. Try again in a minute."
	case errors.As(err, &ne) && ne.Kind == fetcher.KindServer:
		return fmt.Sprintf("The Cat API returned an error (status %d). Try again later.", ne.StatusCode)
	case errors.As(err, &ne):
		return "The Cat API sent an unexpected response. Try again later."
	case errors.Is(err, storage.ErrNotFound):
		return "Breed not found."
	case errors.As(err, &pe):
		return "The local cache failed. Try again later."
	default:
		return "Something went wrong. Try again later."
	}
}
