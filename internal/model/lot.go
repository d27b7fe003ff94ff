package model

import "time"

// Lot represents a parking facility.  A lot owns a fixed set of spots
// and charges a single hourly rate for every spot it contains.
//
// Fields:
//  ID             – primary key identifier.
//  Name           – prime location name shown to users.
//  Address        – street address of the facility.
//  PinCode        – postal code.
//  RateCents      – hourly rate in cents (never negative).
//  Capacity       – number of spots owned by the lot.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Lot struct {
	ID        uint64    // lots.id
	Name      string    // lots.name
	Address   string    // lots.address
	PinCode   string    // lots.pin_code
	RateCents int64     // lots.rate_cents
	Capacity  int       // lots.capacity
	CreatedAt time.Time // lots.created_at
	UpdatedAt time.Time // lots.updated_at
}

// LotAvailability is a derived projection of a lot together with its
// current occupancy counts.  It is safe to recompute at any time.
type LotAvailability struct {
	Lot
	Available int
	Occupied  int
}
