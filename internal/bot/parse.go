package bot

import (
	"fmt"
	"strings"
)

const maxBreedIDLen = 32

// ParseBreedID extracts a breed ID from a command argument string.
func ParseBreedID(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", fmt.Errorf("breed ID is required")
	}
	id := strings.ToLower(fields[0])
	if !validBreedID(id) {
		return "", fmt.Errorf("invalid breed ID %q", fields[0])
	}
	return id, nil
}

func validBreedID(id string) bool {
	if id == "" || len(id) > maxBreedIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// ParseQuery normalizes a search query, collapsing runs of whitespace.
func ParseQuery(args string) string {
	return strings.Join(strings.Fields(args), " ")
}

// ParseCallbackData splits inline button data of the form "action:arg".
// The argument may be empty.
func ParseCallbackData(data string) (action, arg string, ok bool) {
	action, arg, ok = strings.Cut(data, ":")
	if !ok || action == "" {
		return "", "", false
	}
	return action, arg, true
}
