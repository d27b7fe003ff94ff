package model

// Stats aggregates counts shown on the admin dashboard.
type Stats struct {
	Users        int
	Lots         int
	Spots        int
	Available    int
	Occupied     int
	Reservations int
	RevenueCents int64
}

// SpotView joins a spot with the name and address of its lot.
type SpotView struct {
	Spot
	LotName    string
	LotAddress string
}
