package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// schema returns the embedded migrations in version order.
func schema() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_standings_snapshots",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_standings_results",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STANDINGS SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per fetched standings page
CREATE TABLE IF NOT EXISTS standings_snapshots (
    id UUID PRIMARY KEY,
    contest_from VARCHAR(32) NOT NULL,
    contest_to VARCHAR(32) NOT NULL,
    topics SMALLINT NOT NULL,
    levels SMALLINT NOT NULL,
    students INTEGER NOT NULL DEFAULT 0,
    fetched_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_grid CHECK (topics > 0 AND levels > 0),
    CONSTRAINT valid_students CHECK (students >= 0)
);

CREATE INDEX IF NOT EXISTS idx_standings_snapshots_fetched_at
    ON standings_snapshots(fetched_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS standings_snapshots;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: STANDINGS RESULTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Rows of a snapshot; position keeps the order of the standings page
CREATE TABLE IF NOT EXISTS standings_results (
    snapshot_id UUID NOT NULL REFERENCES standings_snapshots(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    ejid INTEGER NOT NULL,
    grp VARCHAR(64) NOT NULL,
    last_name VARCHAR(128) NOT NULL,
    first_name VARCHAR(128) NOT NULL,
    solved SMALLINT[] NOT NULL,
    mark SMALLINT NOT NULL,

    PRIMARY KEY (snapshot_id, position),
    CONSTRAINT valid_ejid CHECK (ejid > 0),
    CONSTRAINT valid_mark CHECK (mark >= 0)
);

CREATE INDEX IF NOT EXISTS idx_standings_results_ejid
    ON standings_results(snapshot_id, ejid);
`

const migration002Down = `
DROP TABLE IF EXISTS standings_results;
`
