package postgres

import (
	"context"
	"fmt"
)

// Schema is the bootstrap DDL used by development setups and tests.
// Production schemas are owned by the main site's migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS players (
	id         BIGINT PRIMARY KEY,
	username   TEXT NOT NULL,
	country    TEXT NOT NULL DEFAULT '',
	restricted BOOLEAN NOT NULL DEFAULT FALSE,
	kudosu     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS beatmaps (
	id           BIGINT PRIMARY KEY,
	total_length INTEGER NOT NULL DEFAULT 0,
	status       SMALLINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scores (
	id           BIGINT PRIMARY KEY,
	player_id    BIGINT NOT NULL,
	beatmap_id   BIGINT NOT NULL,
	mode         SMALLINT NOT NULL,
	mods         INTEGER NOT NULL DEFAULT 0,
	total_score  BIGINT NOT NULL DEFAULT 0,
	pp           DOUBLE PRECISION NOT NULL DEFAULT 0,
	accuracy     DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_combo    INTEGER NOT NULL DEFAULT 0,
	grade        SMALLINT NOT NULL DEFAULT -1,
	status       SMALLINT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	failtime     BIGINT,
	n300         INTEGER NOT NULL DEFAULT 0,
	n100         INTEGER NOT NULL DEFAULT 0,
	n50          INTEGER NOT NULL DEFAULT 0,
	ngeki        INTEGER NOT NULL DEFAULT 0,
	nkatu        INTEGER NOT NULL DEFAULT 0,
	nmiss        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS scores_player_mode_idx ON scores (player_id, mode);
CREATE INDEX IF NOT EXISTS scores_beatmap_best_idx ON scores (beatmap_id, mode, status, total_score DESC);

CREATE TABLE IF NOT EXISTS player_stats (
	player_id    BIGINT NOT NULL,
	mode         SMALLINT NOT NULL,
	rank         INTEGER NOT NULL DEFAULT 0,
	total_score  BIGINT NOT NULL DEFAULT 0,
	ranked_score BIGINT NOT NULL DEFAULT 0,
	pp           DOUBLE PRECISION NOT NULL DEFAULT 0,
	pp_variants  DOUBLE PRECISION[] NOT NULL DEFAULT '{0,0,0}',
	accuracy     DOUBLE PRECISION NOT NULL DEFAULT 0,
	playcount    BIGINT NOT NULL DEFAULT 0,
	playtime     BIGINT NOT NULL DEFAULT 0,
	max_combo    INTEGER NOT NULL DEFAULT 0,
	total_hits   BIGINT NOT NULL DEFAULT 0,
	grade_counts INTEGER[] NOT NULL DEFAULT '{0,0,0,0,0,0,0,0}',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (player_id, mode)
);
`

// EnsureSchema creates missing tables and indexes.
func (c *Connection) EnsureSchema(ctx context.Context) error {
	if _, err := c.q(ctx).Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
