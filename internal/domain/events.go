package domain

import "time"

// Event is a best-effort domain event pushed to the outbound queue. Events
// are lost on crash; consumers must tolerate gaps.
type Event interface {
	When() time.Time
}

// StructureStateChanged is emitted whenever a structure's history gained a
// row, including tombstones.
type StructureStateChanged struct {
	TS              time.Time
	StructureID     int64
	CorporationID   int64
	SystemID        int64
	Exists          bool
	State           string
	StateTimerStart time.Time
	StateTimerEnd   time.Time
	FuelExpires     time.Time
}

func (e StructureStateChanged) When() time.Time { return e.TS }

// MoonExtractionScheduled is emitted when a new or materially changed
// scheduled extraction is observed.
type MoonExtractionScheduled struct {
	TS                  time.Time
	StructureID         int64
	CorporationID       int64
	MoonID              int64
	ExtractionStartTime time.Time
	ChunkArrivalTime    time.Time
}

func (e MoonExtractionScheduled) When() time.Time { return e.TS }

// MoonExtractionCompleted is emitted when a scheduled extraction rolls into
// a completed record.
type MoonExtractionCompleted struct {
	TS                  time.Time
	StructureID         int64
	CorporationID       int64
	MoonID              int64
	ExtractionStartTime time.Time
	ChunkArrivalTime    time.Time
	BeltDecayTime       time.Time
}

func (e MoonExtractionCompleted) When() time.Time { return e.TS }
