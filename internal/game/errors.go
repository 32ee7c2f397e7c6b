package game

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by reads and appends before Open completes.
	ErrNotReady = errors.New("game: store not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("game: store closed")
	// ErrNothingToArchive is returned when archiving with no events since the
	// last reset.
	ErrNothingToArchive = errors.New("game: nothing to archive")
)

// DurabilityError reports a batch that was applied in memory but could not be
// persisted. The batch stays queued and is retried, in order, on the next
// append or catch-up.
type DurabilityError struct {
	Height int64
	Err    error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("game: height %d not persisted: %v", e.Height, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }
