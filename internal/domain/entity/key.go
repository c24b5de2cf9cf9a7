package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical local-date format used in instance keys
const DateLayout = "2006-01-02"

const keySeparator = "|"

// ErrInvalidKey is returned when an instance key cannot be built or parsed
var ErrInvalidKey = errors.New("invalid instance key")

// InstanceKey identifies exactly one obligation instance
type InstanceKey struct {
	Kind     string `json:"kind"`
	EntityID string `json:"entity_id"`
	Date     string `json:"date"`
	Window   string `json:"window"`
}

// NewInstanceKey builds a validated key
func NewInstanceKey(kind, entityID, date, window string) (InstanceKey, error) {
	key := InstanceKey{Kind: kind, EntityID: entityID, Date: date, Window: window}
	if err := key.Validate(); err != nil {
		return InstanceKey{}, err
	}
	return key, nil
}

// ParseInstanceKey parses the "kind|entity|YYYY-MM-DD|window" form
func ParseInstanceKey(s string) (InstanceKey, error) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 4 {
		return InstanceKey{}, fmt.Errorf("%w: %q must have 4 parts", ErrInvalidKey, s)
	}
	return NewInstanceKey(parts[0], parts[1], parts[2], parts[3])
}

// Validate checks every component is present and separator-free and that Date is a calendar date
func (k InstanceKey) Validate() error {
	fields := map[string]string{
		"kind":      k.Kind,
		"entity_id": k.EntityID,
		"date":      k.Date,
		"window":    k.Window,
	}
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidKey, name)
		}
		if strings.Contains(v, keySeparator) {
			return fmt.Errorf("%w: %s contains %q", ErrInvalidKey, name, keySeparator)
		}
	}
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return fmt.Errorf("%w: date %q: %v", ErrInvalidKey, k.Date, err)
	}
	return nil
}

// String returns the canonical "kind|entity|YYYY-MM-DD|window" form
func (k InstanceKey) String() string {
	return strings.Join([]string{k.Kind, k.EntityID, k.Date, k.Window}, keySeparator)
}
