package model

import (
	"strconv"
	"time"
)

// Spot statuses.  A spot is binary: there is no intermediate state
// between being free and being occupied by an open reservation.
const (
	SpotAvailable = "AVAILABLE"
	SpotOccupied  = "OCCUPIED"
)

// Spot describes one parking slot inside a lot.  Spots are numbered
// sequentially per lot starting at 1 and labelled "A1", "A2", ...
//
// Fields:
//  ID        – primary key identifier.
//  LotID     – lot that owns this spot.
//  Number    – 1-based sequence number within the lot.
//  Label     – display label derived from Number.
//  Status    – AVAILABLE or OCCUPIED.
//  Version   – bumped on every status change.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Spot struct {
	ID        uint64    // spots.id
	LotID     uint64    // spots.lot_id
	Number    int       // spots.number
	Label     string    // spots.label
	Status    string    // spots.status
	Version   uint32    // spots.version
	CreatedAt time.Time // spots.created_at
	UpdatedAt time.Time // spots.updated_at
}

// SpotLabel returns the display label for the given spot number.
func SpotLabel(number int) string {
	return "A" + strconv.Itoa(number)
}
