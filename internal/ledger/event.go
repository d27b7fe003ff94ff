package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted after a committed mutation.
const (
	KindReserved   = "reserved"
	KindReleased   = "released"
	KindLotDeleted = "lot_deleted"
)

// Event describes a completed lifecycle transition.  Fields that do not
// apply to the kind are left at their zero value: EndedAt, CostCents and
// BilledHours are only set for released events.
type Event struct {
	ID            string
	Kind          string
	UserID        uint64
	ReservationID uint64
	LotID         uint64
	LotName       string
	SpotID        uint64
	SpotLabel     string
	StartedAt     time.Time
	EndedAt       *time.Time
	CostCents     int64
	BilledHours   float64
	OccurredAt    time.Time
}

// Emitter hands events to notification delivery.  Emit must return
// promptly and must not report delivery failures; the ledger calls it
// after the transaction has already committed.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}

func newEvent(kind string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: kind, OccurredAt: at}
}
