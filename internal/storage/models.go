package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Instance identifies this client installation. Verification records are
// keyed to it rather than to an account.
type Instance struct {
	ID        string
	CreatedAt time.Time
}
