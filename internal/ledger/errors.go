package ledger

import (
	"errors"
	"fmt"

	"github.com/iliyamo/parking-reservation/internal/pricing"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// Errors returned by Ledger operations.  Callers compare with errors.Is;
// the HTTP layer maps each of them to a distinct status.
var (
	// ErrNotFound is returned when a lot or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateActiveReservation is returned when the user already
	// holds an open reservation in any lot.
	ErrDuplicateActiveReservation = errors.New("user already holds an active reservation")
	// ErrNoAvailableCapacity is returned when every spot of the lot is
	// occupied.  The ledger never waits for a spot to free up.
	ErrNoAvailableCapacity = errors.New("no available spot in lot")
	// ErrReservationNotFound covers a missing reservation, one owned by
	// another user and one already closed.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrCapacityBelowOccupied is returned when a resize or delete would
	// remove an occupied spot.
	ErrCapacityBelowOccupied = errors.New("capacity below occupied spots")
	// ErrInvalidTimeRange signals a release time earlier than the start.
	ErrInvalidTimeRange = pricing.ErrInvalidTimeRange
	// ErrConcurrentModification is returned when the record store
	// reported a conflicting transaction.  The operation may be retried.
	ErrConcurrentModification = errors.New("concurrent modification, retry")
	// ErrInvalidInput is returned for malformed lot attributes.
	ErrInvalidInput = errors.New("invalid input")
)

// storeError translates record store errors into the ledger taxonomy.
// notFound is the ledger error reported for repository.ErrNotFound.
func storeError(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrConcurrentModification, err))
	case errors.Is(err, repository.ErrNotFound) && notFound != nil:
		return fmt.Errorf("%s: %w", op, notFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isLedgerError reports whether err already carries a ledger sentinel so
// that WithinTx results are not wrapped twice.
func isLedgerError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrDuplicateActiveReservation, ErrNoAvailableCapacity,
		ErrReservationNotFound, ErrCapacityBelowOccupied, ErrInvalidTimeRange,
		ErrConcurrentModification, ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
