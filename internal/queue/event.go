// Package queue carries ledger lifecycle events to RabbitMQ and turns
// them into user notifications on the consuming side.
package queue

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/iliyamo/parking-reservation/internal/ledger"
	"github.com/iliyamo/parking-reservation/internal/pricing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is the wire form of a ledger.Event.  Timestamps are RFC 3339
// strings in UTC and money is carried both as cents and as a two-decimal
// string so consumers never need to do arithmetic.
type Message struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	UserID        uint64  `json:"user_id,omitempty"`
	ReservationID uint64  `json:"reservation_id,omitempty"`
	LotID         uint64  `json:"lot_id"`
	LotName       string  `json:"lot_name"`
	SpotID        uint64  `json:"spot_id,omitempty"`
	SpotLabel     string  `json:"spot_label,omitempty"`
	StartedAt     string  `json:"started_at,omitempty"`
	EndedAt       string  `json:"ended_at,omitempty"`
	CostCents     int64   `json:"cost_cents,omitempty"`
	Cost          string  `json:"cost,omitempty"`
	BilledHours   float64 `json:"billed_hours,omitempty"`
	OccurredAt    string  `json:"occurred_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FromEvent converts a ledger event into its wire form.
func FromEvent(ev ledger.Event) Message {
	m := Message{
		ID:            ev.ID,
		Kind:          ev.Kind,
		UserID:        ev.UserID,
		ReservationID: ev.ReservationID,
		LotID:         ev.LotID,
		LotName:       ev.LotName,
		SpotID:        ev.SpotID,
		SpotLabel:     ev.SpotLabel,
		StartedAt:     formatTime(ev.StartedAt),
		OccurredAt:    formatTime(ev.OccurredAt),
	}
	if ev.EndedAt != nil {
		m.EndedAt = formatTime(*ev.EndedAt)
		m.CostCents = ev.CostCents
		m.Cost = pricing.FormatCents(ev.CostCents)
		m.BilledHours = ev.BilledHours
	}
	return m
}

// Logger is satisfied by echo's logger.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
