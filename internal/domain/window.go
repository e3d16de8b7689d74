package domain

import "time"

// Default evaluation windows, in hours.
const (
	CheckoutWindowHours      = 24
	AuthorizationWindowHours = 144
	ConfirmationWindowHours  = 48
	ContestWindowHours       = 48
)

// IsExpired reports whether windowHours have fully elapsed since reference.
// A zero reference never expires.
func IsExpired(reference time.Time, windowHours int, now time.Time) bool {
	if reference.IsZero() {
		return false
	}
	return !now.Before(reference.Add(time.Duration(windowHours) * time.Hour))
}

// ExpiresAt returns the instant at which the window closes.
func ExpiresAt(reference time.Time, windowHours int) time.Time {
	return reference.Add(time.Duration(windowHours) * time.Hour)
}
