package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/pricing"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// Reservation is the result of a successful Reserve: the open
// reservation together with the spot it occupies and the lot's rate.
type Reservation struct {
	model.Reservation
	SpotLabel string
	LotName   string
	RateCents int64
}

// Receipt is the result of a successful Release.
type Receipt struct {
	ReservationID uint64
	UserID        uint64
	LotID         uint64
	LotName       string
	SpotID        uint64
	SpotLabel     string
	StartedAt     time.Time
	EndedAt       time.Time
	RateCents     int64
	BilledMillis  int64
	BilledHours   float64
	CostCents     int64
}

// Reserve assigns the lowest-id available spot of lotID to userID.  The
// user row is locked first so that two concurrent calls for the same user
// serialise on it and the second one observes the first reservation.
func (l *Ledger) Reserve(ctx context.Context, userID, lotID uint64) (Reservation, error) {
	var out Reservation
	err := l.run(ctx, "reserve", func(tx repository.Tx) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return storeError("lock user", err, ErrNotFound)
		}
		lot, err := tx.LotForShare(ctx, lotID)
		if err != nil {
			return storeError("load lot", err, ErrNotFound)
		}
		switch _, err := tx.OpenReservationByUser(ctx, userID); {
		case err == nil:
			return ErrDuplicateActiveReservation
		case !errors.Is(err, repository.ErrNotFound):
			return storeError("check open reservation", err, nil)
		}
		spot, err := tx.FirstAvailableSpot(ctx, lot.ID)
		if err != nil {
			return storeError("find spot", err, ErrNoAvailableCapacity)
		}
		if err := tx.SetSpotStatus(ctx, spot.ID, model.SpotAvailable, model.SpotOccupied); err != nil {
			return storeError("occupy spot", err, nil)
		}
		res := model.Reservation{
			UserID:    userID,
			SpotID:    spot.ID,
			LotID:     lot.ID,
			StartedAt: l.clock(),
		}
		if err := tx.InsertReservation(ctx, &res); err != nil {
			return storeError("insert reservation", err, nil)
		}
		out = Reservation{Reservation: res, SpotLabel: spot.Label, LotName: lot.Name, RateCents: lot.RateCents}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	ev := newEvent(KindReserved, out.StartedAt)
	ev.UserID = userID
	ev.ReservationID = out.ID
	ev.LotID = out.LotID
	ev.LotName = out.LotName
	ev.SpotID = out.SpotID
	ev.SpotLabel = out.SpotLabel
	ev.StartedAt = out.StartedAt
	l.afterCommit(ctx, &ev)
	l.log.Infof("reservation %d: user %d took spot %s in lot %d", out.ID, userID, out.SpotLabel, out.LotID)
	return out, nil
}

// Release closes the user's open reservation, prices the stay and frees
// the spot.  A missing reservation, one owned by someone else and one
// already released are indistinguishable to the caller.
func (l *Ledger) Release(ctx context.Context, userID, reservationID uint64) (Receipt, error) {
	var out Receipt
	err := l.run(ctx, "release", func(tx repository.Tx) error {
		res, err := tx.OpenReservationForUpdate(ctx, reservationID, userID)
		if err != nil {
			return storeError("load reservation", err, ErrReservationNotFound)
		}
		lot, err := tx.LotForShare(ctx, res.LotID)
		if err != nil {
			return storeError("load lot", err, nil)
		}
		spot, err := tx.SpotForUpdate(ctx, res.SpotID)
		if err != nil {
			return storeError("load spot", err, nil)
		}
		endedAt := l.clock()
		charge, err := pricing.Compute(res.StartedAt, endedAt, lot.RateCents)
		if err != nil {
			return err
		}
		if err := tx.CloseReservation(ctx, res.ID, endedAt, charge.CostCents, charge.BilledMillis); err != nil {
			return storeError("close reservation", err, nil)
		}
		if err := tx.SetSpotStatus(ctx, spot.ID, model.SpotOccupied, model.SpotAvailable); err != nil {
			return storeError("free spot", err, nil)
		}
		out = Receipt{
			ReservationID: res.ID,
			UserID:        userID,
			LotID:         lot.ID,
			LotName:       lot.Name,
			SpotID:        spot.ID,
			SpotLabel:     spot.Label,
			StartedAt:     res.StartedAt,
			EndedAt:       endedAt,
			RateCents:     lot.RateCents,
			BilledMillis:  charge.BilledMillis,
			BilledHours:   charge.BilledHours,
			CostCents:     charge.CostCents,
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	ev := newEvent(KindReleased, out.EndedAt)
	ev.UserID = userID
	ev.ReservationID = out.ReservationID
	ev.LotID = out.LotID
	ev.LotName = out.LotName
	ev.SpotID = out.SpotID
	ev.SpotLabel = out.SpotLabel
	ev.StartedAt = out.StartedAt
	endedAt := out.EndedAt
	ev.EndedAt = &endedAt
	ev.CostCents = out.CostCents
	ev.BilledHours = out.BilledHours
	l.afterCommit(ctx, &ev)
	l.log.Infof("reservation %d released: %s for %.2fh", out.ReservationID, pricing.FormatCents(out.CostCents), out.BilledHours)
	return out, nil
}
