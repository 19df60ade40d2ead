package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateUserID validates a principal id.
func ValidateUserID(id string) error {
	if len(id) == 0 {
		return errors.New("user ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("user ID exceeds maximum length")
	}
	return nil
}

// ValidateGroupName validates a gateway group channel name.
func ValidateGroupName(name string) error {
	if len(name) == 0 {
		return errors.New("group name cannot be empty")
	}
	if len(name) > 128 {
		return errors.New("group name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("group name must be valid UTF-8")
	}
	for _, r := range name {
		if r == ' ' || r == '*' || r == '>' {
			return errors.New("group name contains reserved characters")
		}
	}
	return nil
}

// ValidateEventData validates an event payload size.
func ValidateEventData(data map[string]any) error {
	if len(data) > 64 {
		return errors.New("event payload has too many fields")
	}
	return nil
}
