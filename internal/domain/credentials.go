package domain

import "time"

// PeriodicCredentials is a stored access token usable by the background
// poller, with the corporation roles that decide which endpoints it may
// call.
type PeriodicCredentials struct {
	CharacterID          int64
	CorporationID        int64
	IsEnabled            bool
	IsDirectorRole       bool
	IsAccountantRole     bool
	IsStationManagerRole bool
	AccessToken          string
	AccessTokenExpiry    time.Time
	Timestamp            time.Time
}

// CanReadStructures reports whether the credential's roles permit the
// structures and extractions endpoints.
func (c PeriodicCredentials) CanReadStructures() bool {
	return c.IsDirectorRole || c.IsStationManagerRole
}

// CanReadObservers reports whether the credential's roles permit the mining
// observers endpoints.
func (c PeriodicCredentials) CanReadObservers() bool {
	return c.IsDirectorRole || c.IsAccountantRole
}

// RefreshCursor records when a corporation was last successfully polled and
// with which character's credential. The scheduler owns all writes.
type RefreshCursor struct {
	CorporationID int64
	CharacterID   int64
	Timestamp     time.Time
}
