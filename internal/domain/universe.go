package domain

// Corporation is a reference entity backfilled before any dependent rows
// are written.
type Corporation struct {
	CorporationID int64
	AllianceID    int64
	Name          string
	Ticker        string
}

type Character struct {
	CharacterID   int64
	CorporationID int64
	AllianceID    int64
	Name          string
}

type System struct {
	SystemID        int64
	ConstellationID int64
	Name            string
}

type Moon struct {
	MoonID   int64
	SystemID int64
	Name     string
}

type Type struct {
	TypeID        int64
	GroupID       int64
	MarketGroupID int64
	Name          string
}
