package domain

import "time"

// BeltLifetimeEstimate is the base lifetime of an arrived chunk's asteroid
// belt before any per-structure modifier is applied.
const BeltLifetimeEstimate = 48 * time.Hour

// ScheduledExtraction is the single live extraction for a structure. The
// upstream API reports at most one per structure; the table enforces that
// with its primary key.
type ScheduledExtraction struct {
	StructureID         int64
	CharacterID         int64
	CorporationID       int64
	MoonID              int64
	ExtractionStartTime time.Time
	ChunkArrivalTime    time.Time
	NaturalDecayTime    time.Time
	Timestamp           time.Time
}

// ChangedFields compares two scheduled extractions, skipping the volatile
// credential keys.
func (e ScheduledExtraction) ChangedFields(next ScheduledExtraction) []string {
	var changed []string
	if e.StructureID != next.StructureID {
		changed = append(changed, "structure_id")
	}
	if e.MoonID != next.MoonID {
		changed = append(changed, "moon_id")
	}
	if !e.ExtractionStartTime.Equal(next.ExtractionStartTime) {
		changed = append(changed, "extraction_start_time")
	}
	if !e.ChunkArrivalTime.Equal(next.ChunkArrivalTime) {
		changed = append(changed, "chunk_arrival_time")
	}
	if !e.NaturalDecayTime.Equal(next.NaturalDecayTime) {
		changed = append(changed, "natural_decay_time")
	}
	return changed
}

// CompletedExtraction records a chunk that has arrived (or decayed), with
// the estimated moment the resulting belt expires.
type CompletedExtraction struct {
	StructureID         int64
	CharacterID         int64
	CorporationID       int64
	MoonID              int64
	ExtractionStartTime time.Time
	ChunkArrivalTime    time.Time
	NaturalDecayTime    time.Time
	BeltDecayTime       time.Time
	Timestamp           time.Time
}

// ExtractionHistoryRow is the append-only mirror of scheduled extraction
// transitions, using the same diff-and-append discipline as structures.
type ExtractionHistoryRow struct {
	ID        int64
	Exists    bool
	Timestamp time.Time
	ScheduledExtraction
}

// StructureModifier tunes the belt decay estimate for one structure.
type StructureModifier struct {
	StructureID          int64   `yaml:"structure_id"`
	BeltLifetimeModifier float64 `yaml:"belt_lifetime_modifier"`
}
