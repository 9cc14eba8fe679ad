package state

import "github.com/google/uuid"

// NewDeviceID returns a fresh owner id for this run of the app. Every
// stroke drawn here carries it.
func NewDeviceID() string {
	return uuid.NewString()
}
