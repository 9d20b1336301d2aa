package database

const schema = `
-- Reference entities backfilled from the upstream API. Dependent rows are
-- only written after their references exist.
CREATE TABLE corporations (
	corporation_id INTEGER PRIMARY KEY,
	alliance_id INTEGER,
	name TEXT NOT NULL,
	ticker TEXT NOT NULL
);

CREATE TABLE characters (
	character_id INTEGER PRIMARY KEY,
	corporation_id INTEGER NOT NULL,
	alliance_id INTEGER,
	name TEXT NOT NULL
);

CREATE TABLE universe_systems (
	system_id INTEGER PRIMARY KEY,
	constellation_id INTEGER NOT NULL,
	name TEXT NOT NULL
);

CREATE TABLE universe_moons (
	moon_id INTEGER PRIMARY KEY,
	system_id INTEGER NOT NULL REFERENCES universe_systems(system_id),
	name TEXT NOT NULL
);

CREATE TABLE universe_types (
	type_id INTEGER PRIMARY KEY,
	group_id INTEGER NOT NULL DEFAULT 0,
	market_group_id INTEGER,
	name TEXT NOT NULL
);

-- Live mirror of the latest structure snapshot per structure.
CREATE TABLE structure (
	structure_id INTEGER PRIMARY KEY,
	timestamp TEXT NOT NULL,
	character_id INTEGER NOT NULL,
	corporation_id INTEGER NOT NULL REFERENCES corporations(corporation_id),
	system_id INTEGER NOT NULL,
	type_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	state TEXT,
	state_timer_start TEXT,
	state_timer_end TEXT,
	fuel_expires TEXT,
	unanchors_at TEXT,
	has_moon_drill BOOLEAN NOT NULL DEFAULT 0
);

-- Append-only history. A row is written only when the snapshot materially
-- changed or "exists" flipped.
CREATE TABLE structure_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	"exists" BOOLEAN NOT NULL,
	timestamp TEXT NOT NULL,
	character_id INTEGER NOT NULL,
	corporation_id INTEGER NOT NULL,
	system_id INTEGER NOT NULL,
	type_id INTEGER NOT NULL,
	structure_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	state TEXT,
	state_timer_start TEXT,
	state_timer_end TEXT,
	fuel_expires TEXT,
	unanchors_at TEXT,
	has_moon_drill BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX idx_structure_history_structure_id ON structure_history(structure_id);
CREATE INDEX idx_structure_history_corporation_id ON structure_history(corporation_id);

-- At most one live extraction per structure, enforced by the primary key.
CREATE TABLE scheduled_extraction (
	structure_id INTEGER PRIMARY KEY,
	timestamp TEXT NOT NULL,
	character_id INTEGER NOT NULL,
	corporation_id INTEGER NOT NULL REFERENCES corporations(corporation_id),
	moon_id INTEGER NOT NULL REFERENCES universe_moons(moon_id),
	extraction_start_time TEXT NOT NULL,
	chunk_arrival_time TEXT NOT NULL,
	natural_decay_time TEXT NOT NULL
);

CREATE TABLE completed_extraction (
	structure_id INTEGER PRIMARY KEY,
	timestamp TEXT NOT NULL,
	character_id INTEGER NOT NULL,
	corporation_id INTEGER NOT NULL REFERENCES corporations(corporation_id),
	moon_id INTEGER NOT NULL REFERENCES universe_moons(moon_id),
	extraction_start_time TEXT NOT NULL,
	chunk_arrival_time TEXT NOT NULL,
	natural_decay_time TEXT NOT NULL,
	belt_decay_time TEXT NOT NULL
);

CREATE TABLE extraction_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	"exists" BOOLEAN NOT NULL,
	timestamp TEXT NOT NULL,
	character_id INTEGER NOT NULL,
	corporation_id INTEGER NOT NULL,
	structure_id INTEGER NOT NULL,
	moon_id INTEGER NOT NULL,
	extraction_start_time TEXT,
	chunk_arrival_time TEXT,
	natural_decay_time TEXT
);

CREATE INDEX idx_extraction_history_structure_id ON extraction_history(structure_id);
CREATE INDEX idx_extraction_history_corporation_id ON extraction_history(corporation_id);

CREATE TABLE observer_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	"exists" BOOLEAN NOT NULL,
	timestamp TEXT NOT NULL,
	observer_id INTEGER NOT NULL,
	corporation_id INTEGER NOT NULL,
	observer_type TEXT,
	last_updated TEXT
);

CREATE INDEX idx_observer_history_observer_id ON observer_history(observer_id);
CREATE INDEX idx_observer_history_corporation_id ON observer_history(corporation_id);

-- Per-character mined-quantity ledger, tied to the observer history row
-- that was current at fetch time.
CREATE TABLE observer_record_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	observer_history_id INTEGER NOT NULL REFERENCES observer_history(id),
	observer_id INTEGER NOT NULL,
	corporation_id INTEGER NOT NULL,
	character_id INTEGER NOT NULL,
	recorded_corporation_id INTEGER NOT NULL,
	type_id INTEGER NOT NULL,
	quantity INTEGER NOT NULL,
	last_updated TEXT
);

CREATE INDEX idx_observer_record_history_observer_id ON observer_record_history(observer_id);

CREATE TABLE structure_modifiers (
	structure_id INTEGER PRIMARY KEY,
	belt_lifetime_modifier REAL NOT NULL DEFAULT 1.0
);

CREATE TABLE periodic_credentials (
	character_id INTEGER PRIMARY KEY,
	timestamp TEXT NOT NULL,
	corporation_id INTEGER NOT NULL,
	is_enabled BOOLEAN NOT NULL DEFAULT 0,
	is_director_role BOOLEAN NOT NULL DEFAULT 0,
	is_accountant_role BOOLEAN NOT NULL DEFAULT 0,
	is_station_manager_role BOOLEAN NOT NULL DEFAULT 0,
	access_token TEXT NOT NULL,
	access_token_expiry TEXT NOT NULL
);

CREATE INDEX idx_periodic_credentials_corporation_id ON periodic_credentials(corporation_id);

CREATE TABLE refresh_cursor (
	corporation_id INTEGER PRIMARY KEY,
	character_id INTEGER NOT NULL,
	timestamp TEXT NOT NULL
);

-- Raw fetched JSON kept for operator forensics.
CREATE TABLE query_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	corporation_id INTEGER NOT NULL,
	character_id INTEGER NOT NULL,
	json TEXT NOT NULL
);
`

// migrations contains incremental schema changes
// Each migration is applied in order based on the current user_version
// migrations[0] is empty because version 0 uses the base schema
var migrations = []string{
	"",
}
