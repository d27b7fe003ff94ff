package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/pricing"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// MaxCapacity caps the number of spots a single lot may own.
const MaxCapacity = 10000

// LotInput carries the attributes of a new lot.
type LotInput struct {
	Name      string
	Address   string
	PinCode   string
	RateCents int64
	Capacity  int
}

// LotPatch lists the attributes to change; nil fields are left as is.
type LotPatch struct {
	Name      *string
	Address   *string
	PinCode   *string
	RateCents *int64
	Capacity  *int
}

func validateLot(l model.Lot) error {
	switch {
	case strings.TrimSpace(l.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case l.RateCents < 0 || l.RateCents > pricing.MaxRateCents:
		return fmt.Errorf("%w: rate must be between 0 and %d cents", ErrInvalidInput, pricing.MaxRateCents)
	}
	return validateCapacity(l.Capacity)
}

func validateCapacity(n int) error {
	if n < 0 || n > MaxCapacity {
		return fmt.Errorf("%w: capacity must be between 0 and %d", ErrInvalidInput, MaxCapacity)
	}
	return nil
}

// CreateLot stores a lot and its spots A1..An in one transaction.
func (l *Ledger) CreateLot(ctx context.Context, in LotInput) (model.Lot, error) {
	lot := model.Lot{
		Name:      strings.TrimSpace(in.Name),
		Address:   strings.TrimSpace(in.Address),
		PinCode:   strings.TrimSpace(in.PinCode),
		RateCents: in.RateCents,
		Capacity:  in.Capacity,
	}
	if err := validateLot(lot); err != nil {
		return model.Lot{}, err
	}
	err := l.run(ctx, "create lot", func(tx repository.Tx) error {
		if err := tx.InsertLot(ctx, &lot); err != nil {
			return storeError("insert lot", err, nil)
		}
		numbers := make([]int, lot.Capacity)
		for i := range numbers {
			numbers[i] = i + 1
		}
		return storeError("insert spots", tx.InsertSpots(ctx, lot.ID, numbers), nil)
	})
	if err != nil {
		return model.Lot{}, err
	}
	l.afterCommit(ctx, nil)
	l.log.Infof("lot %d (%s) created with %d spots", lot.ID, lot.Name, lot.Capacity)
	return lot, nil
}

// UpdateLot applies patch to the lot.  A capacity change follows the
// same rules as ResizeLot and commits together with the other fields.
func (l *Ledger) UpdateLot(ctx context.Context, lotID uint64, patch LotPatch) (model.Lot, error) {
	var out model.Lot
	err := l.run(ctx, "update lot", func(tx repository.Tx) error {
		lot, err := tx.LotForUpdate(ctx, lotID)
		if err != nil {
			return storeError("load lot", err, ErrNotFound)
		}
		if patch.Name != nil {
			lot.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Address != nil {
			lot.Address = strings.TrimSpace(*patch.Address)
		}
		if patch.PinCode != nil {
			lot.PinCode = strings.TrimSpace(*patch.PinCode)
		}
		if patch.RateCents != nil {
			lot.RateCents = *patch.RateCents
		}
		if patch.Capacity != nil {
			lot.Capacity = *patch.Capacity
		}
		if err := validateLot(lot); err != nil {
			return err
		}
		if err := resizeSpots(ctx, tx, lot.ID, lot.Capacity); err != nil {
			return err
		}
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return storeError("update lot", err, ErrNotFound)
		}
		out = lot
		return nil
	})
	if err != nil {
		return model.Lot{}, err
	}
	l.afterCommit(ctx, nil)
	return out, nil
}

// ResizeLot grows or shrinks the lot to newCapacity spots.  Growing adds
// available spots numbered after the current maximum; shrinking removes
// available spots starting from the most recently created one and fails
// with ErrCapacityBelowOccupied when occupied spots would not fit.
func (l *Ledger) ResizeLot(ctx context.Context, lotID uint64, newCapacity int) error {
	if err := validateCapacity(newCapacity); err != nil {
		return err
	}
	err := l.run(ctx, "resize lot", func(tx repository.Tx) error {
		lot, err := tx.LotForUpdate(ctx, lotID)
		if err != nil {
			return storeError("load lot", err, ErrNotFound)
		}
		if err := resizeSpots(ctx, tx, lot.ID, newCapacity); err != nil {
			return err
		}
		lot.Capacity = newCapacity
		return storeError("update lot", tx.UpdateLot(ctx, lot), ErrNotFound)
	})
	if err != nil {
		return err
	}
	l.afterCommit(ctx, nil)
	l.log.Infof("lot %d resized to %d spots", lotID, newCapacity)
	return nil
}

// resizeSpots makes the lot own exactly capacity spots.  The caller must
// hold the lot row lock.  The current spot rows are counted rather than
// trusting lots.capacity.
func resizeSpots(ctx context.Context, tx repository.Tx, lotID uint64, capacity int) error {
	spots, err := tx.SpotsForUpdate(ctx, lotID)
	if err != nil {
		return storeError("lock spots", err, nil)
	}
	occupied, maxNumber := 0, 0
	for _, s := range spots {
		if s.Status == model.SpotOccupied {
			occupied++
		}
		if s.Number > maxNumber {
			maxNumber = s.Number
		}
	}
	if capacity < occupied {
		return fmt.Errorf("%w: %d spots occupied", ErrCapacityBelowOccupied, occupied)
	}

	switch current := len(spots); {
	case capacity > current:
		numbers := make([]int, capacity-current)
		for i := range numbers {
			numbers[i] = maxNumber + i + 1
		}
		return storeError("insert spots", tx.InsertSpots(ctx, lotID, numbers), nil)
	case capacity < current:
		// spots are ordered by id, so walking backwards removes the
		// newest available spots first.
		remove := make([]uint64, 0, current-capacity)
		for i := len(spots) - 1; i >= 0 && len(remove) < current-capacity; i-- {
			if spots[i].Status == model.SpotAvailable {
				remove = append(remove, spots[i].ID)
			}
		}
		return storeError("delete spots", tx.DeleteSpots(ctx, remove), nil)
	}
	return nil
}

// DeleteLot removes the lot and all of its spots.  It fails with
// ErrCapacityBelowOccupied while any spot is occupied.  Closed
// reservations keep referring to the removed spots for history.
func (l *Ledger) DeleteLot(ctx context.Context, lotID uint64) error {
	var lot model.Lot
	err := l.run(ctx, "delete lot", func(tx repository.Tx) error {
		var err error
		lot, err = tx.LotForUpdate(ctx, lotID)
		if err != nil {
			return storeError("load lot", err, ErrNotFound)
		}
		spots, err := tx.SpotsForUpdate(ctx, lotID)
		if err != nil {
			return storeError("lock spots", err, nil)
		}
		ids := make([]uint64, 0, len(spots))
		for _, s := range spots {
			if s.Status == model.SpotOccupied {
				return fmt.Errorf("%w: spot %s is occupied", ErrCapacityBelowOccupied, s.Label)
			}
			ids = append(ids, s.ID)
		}
		if err := tx.DeleteSpots(ctx, ids); err != nil {
			return storeError("delete spots", err, nil)
		}
		return storeError("delete lot", tx.DeleteLot(ctx, lotID), ErrNotFound)
	})
	if err != nil {
		return err
	}
	ev := newEvent(KindLotDeleted, l.clock())
	ev.LotID = lot.ID
	ev.LotName = lot.Name
	l.afterCommit(ctx, &ev)
	l.log.Infof("lot %d (%s) deleted", lot.ID, lot.Name)
	return nil
}
