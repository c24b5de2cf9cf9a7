package utils

import (
	"fmt"
	"regexp"
	"time"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// ValidateMonth validates a YYYY-MM month
func ValidateMonth(month string) error {
	if _, err := time.Parse("2006-01", month); err != nil {
		return fmt.Errorf("invalid month format, want YYYY-MM: %s", month)
	}
	return nil
}

// ValidateDate validates a YYYY-MM-DD date
func ValidateDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date format, want YYYY-MM-DD: %s", date)
	}
	return nil
}

// ValidateRating validates a reviewer rating
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5: %d", rating)
	}
	return nil
}

// SanitizeString removes control characters and truncates to max runes. max <= 0 disables truncation.
func SanitizeString(s string, max int) string {
	sanitized := controlChars.ReplaceAllString(s, "")
	if max > 0 {
		if r := []rune(sanitized); len(r) > max {
			sanitized = string(r[:max])
		}
	}
	return sanitized
}
