package domain

import "time"

// StructureSnapshot is the current view of a corporation structure as
// reported by the upstream API. CharacterID records which credential the
// snapshot was fetched with; it is not part of the structure identity and is
// excluded from change detection.
type StructureSnapshot struct {
	StructureID     int64
	CharacterID     int64
	CorporationID   int64
	SystemID        int64
	TypeID          int64
	Name            string
	State           string
	StateTimerStart time.Time
	StateTimerEnd   time.Time
	FuelExpires     time.Time
	UnanchorsAt     time.Time
	HasMoonDrill    bool
}

// ChangedFields compares two snapshots field by field, skipping the volatile
// credential/identity keys, and returns the names of fields that differ.
func (s StructureSnapshot) ChangedFields(next StructureSnapshot) []string {
	var changed []string
	if s.StructureID != next.StructureID {
		changed = append(changed, "structure_id")
	}
	if s.SystemID != next.SystemID {
		changed = append(changed, "system_id")
	}
	if s.TypeID != next.TypeID {
		changed = append(changed, "type_id")
	}
	if s.Name != next.Name {
		changed = append(changed, "name")
	}
	if s.State != next.State {
		changed = append(changed, "state")
	}
	if !s.StateTimerStart.Equal(next.StateTimerStart) {
		changed = append(changed, "state_timer_start")
	}
	if !s.StateTimerEnd.Equal(next.StateTimerEnd) {
		changed = append(changed, "state_timer_end")
	}
	if !s.FuelExpires.Equal(next.FuelExpires) {
		changed = append(changed, "fuel_expires")
	}
	if !s.UnanchorsAt.Equal(next.UnanchorsAt) {
		changed = append(changed, "unanchors_at")
	}
	if s.HasMoonDrill != next.HasMoonDrill {
		changed = append(changed, "has_moon_drill")
	}
	return changed
}

// StructureHistoryRow is an immutable, append-only record of a structure
// snapshot. A new row is written only when the snapshot materially changed
// or the structure appeared/disappeared.
type StructureHistoryRow struct {
	ID        int64
	Exists    bool
	Timestamp time.Time
	StructureSnapshot
}
