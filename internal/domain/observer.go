package domain

import "time"

// Observer is a structure-attached mining sensor. Unlike structures, every
// field participates in change detection.
type Observer struct {
	ObserverID    int64
	CorporationID int64
	ObserverType  string
	LastUpdated   time.Time
}

// ChangedFields compares two observers with no skip-keys.
func (o Observer) ChangedFields(next Observer) []string {
	var changed []string
	if o.ObserverID != next.ObserverID {
		changed = append(changed, "observer_id")
	}
	if o.CorporationID != next.CorporationID {
		changed = append(changed, "corporation_id")
	}
	if o.ObserverType != next.ObserverType {
		changed = append(changed, "observer_type")
	}
	if !o.LastUpdated.Equal(next.LastUpdated) {
		changed = append(changed, "last_updated")
	}
	return changed
}

// ObserverHistoryRow is the append-only presence record for an observer.
type ObserverHistoryRow struct {
	ID        int64
	Exists    bool
	Timestamp time.Time
	Observer
}

// ObserverRecord is one per-character mined-quantity ledger entry, tied to
// the observer history row that was current when it was fetched.
type ObserverRecord struct {
	ObserverHistoryID     int64
	ObserverID            int64
	CorporationID         int64
	CharacterID           int64
	RecordedCorporationID int64
	TypeID                int64
	Quantity              int64
	LastUpdated           time.Time
}
