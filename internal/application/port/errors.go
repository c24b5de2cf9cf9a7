package port

import "errors"

var (
	// ErrStoreUnavailable wraps any failure of the backing store
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInstanceNotFound is returned for keys with no instance
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrEntityNotFound is returned for unknown entity ids
	ErrEntityNotFound = errors.New("entity not found")

	// ErrNotificationDeliveryFailed is returned by notifiers that could not deliver
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
)
