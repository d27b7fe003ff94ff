package handler

import (
	"time"

	"github.com/iliyamo/parking-reservation/internal/ledger"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/pricing"
)

// Response shapes.  Money is rendered both in cents and as a number with
// two decimals.

type lotDTO struct {
	ID        uint64  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	PinCode   string  `json:"pin_code"`
	RateCents int64   `json:"rate_cents"`
	Rate      float64 `json:"price_per_hour"`
	Capacity  int     `json:"capacity"`
	Available int     `json:"available"`
	Occupied  int     `json:"occupied"`
}

type spotDTO struct {
	ID      uint64 `json:"id"`
	LotID   uint64 `json:"lot_id"`
	LotName string `json:"lot_name,omitempty"`
	Number  int    `json:"number"`
	Label   string `json:"label"`
	Status  string `json:"status"`
}

type lotDetailDTO struct {
	lotDTO
	Spots []spotDTO `json:"spots"`
}

type reservationDTO struct {
	ID          uint64     `json:"id"`
	LotID       uint64     `json:"lot_id"`
	LotName     string     `json:"lot_name"`
	SpotID      uint64     `json:"spot_id"`
	SpotLabel   string     `json:"spot_label"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at"`
	CostCents   *int64     `json:"cost_cents"`
	Cost        *float64   `json:"cost"`
	BilledHours *float64   `json:"billed_hours"`
	Status      string     `json:"status"`
}

type receiptDTO struct {
	ReservationID uint64    `json:"reservation_id"`
	LotID         uint64    `json:"lot_id"`
	LotName       string    `json:"lot_name"`
	SpotID        uint64    `json:"spot_id"`
	SpotLabel     string    `json:"spot_label"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	RateCents     int64     `json:"rate_cents"`
	BilledHours   float64   `json:"billed_hours"`
	CostCents     int64     `json:"cost_cents"`
	Cost          float64   `json:"cost"`
}

type userDTO struct {
	ID            uint64    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	PinCode       string    `json:"pincode"`
	CreatedAt     time.Time `json:"created_at"`
	CurrentSpotID *uint64   `json:"current_spot_id"`
}

func toLotDTO(a model.LotAvailability) lotDTO {
	return lotDTO{
		ID:        a.ID,
		Name:      a.Name,
		Address:   a.Address,
		PinCode:   a.PinCode,
		RateCents: a.RateCents,
		Rate:      pricing.CentsToFloat(a.RateCents),
		Capacity:  a.Capacity,
		Available: a.Available,
		Occupied:  a.Occupied,
	}
}

func toLotDTOs(in []model.LotAvailability) []lotDTO {
	out := make([]lotDTO, 0, len(in))
	for _, a := range in {
		out = append(out, toLotDTO(a))
	}
	return out
}

func toSpotDTOs(in []model.SpotView) []spotDTO {
	out := make([]spotDTO, 0, len(in))
	for _, s := range in {
		out = append(out, spotDTO{ID: s.ID, LotID: s.LotID, LotName: s.LotName, Number: s.Number, Label: s.Label, Status: s.Status})
	}
	return out
}

func toReservationDTO(v model.ReservationView) reservationDTO {
	d := reservationDTO{
		ID:        v.ID,
		LotID:     v.LotID,
		LotName:   v.LotName,
		SpotID:    v.SpotID,
		SpotLabel: v.SpotLabel,
		StartedAt: v.StartedAt,
		EndedAt:   v.EndedAt,
		CostCents: v.CostCents,
		Status:    "active",
	}
	if !v.Open() {
		d.Status = "completed"
	}
	if v.CostCents != nil {
		cost := pricing.CentsToFloat(*v.CostCents)
		d.Cost = &cost
	}
	if v.BilledMillis != nil {
		hours := float64(*v.BilledMillis) / float64(time.Hour/time.Millisecond)
		d.BilledHours = &hours
	}
	return d
}

func toReceiptDTO(r ledger.Receipt) receiptDTO {
	return receiptDTO{
		ReservationID: r.ReservationID,
		LotID:         r.LotID,
		LotName:       r.LotName,
		SpotID:        r.SpotID,
		SpotLabel:     r.SpotLabel,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
		RateCents:     r.RateCents,
		BilledHours:   r.BilledHours,
		CostCents:     r.CostCents,
		Cost:          pricing.CentsToFloat(r.CostCents),
	}
}

func toUserDTOs(in []model.UserOverview) []userDTO {
	out := make([]userDTO, 0, len(in))
	for _, u := range in {
		out = append(out, userDTO{
			ID:            u.ID,
			Username:      u.Username,
			Email:         u.Email,
			Phone:         u.Phone,
			Address:       u.Address,
			PinCode:       u.PinCode,
			CreatedAt:     u.CreatedAt,
			CurrentSpotID: u.CurrentSpotID,
		})
	}
	return out
}
