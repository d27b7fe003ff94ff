package model

import "time"

// Reservation records a user's claim on a single spot.  A reservation is
// open while EndedAt is nil.  Release sets EndedAt, CostCents and
// BilledMillis together, after which the row never changes again.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – user holding the spot.
//  SpotID       – spot being used.
//  LotID        – lot of the spot at reservation time.
//  StartedAt    – when the spot was taken.
//  EndedAt      – when the spot was released (nil while open).
//  CostCents    – computed charge (nil while open).
//  BilledMillis – chargeable duration in milliseconds (nil while open).
type Reservation struct {
	ID           uint64     // reservations.id
	UserID       uint64     // reservations.user_id
	SpotID       uint64     // reservations.spot_id
	LotID        uint64     // reservations.lot_id
	StartedAt    time.Time  // reservations.started_at
	EndedAt      *time.Time // reservations.ended_at (nullable)
	CostCents    *int64     // reservations.cost_cents (nullable)
	BilledMillis *int64     // reservations.billed_ms (nullable)
}

// Open reports whether the reservation has not been released yet.
func (r Reservation) Open() bool { return r.EndedAt == nil }

// ReservationView joins a reservation with the labels of its spot and lot
// for listing purposes.
type ReservationView struct {
	Reservation
	SpotLabel string
	LotName   string
}
