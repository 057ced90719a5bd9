package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in application order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_challenges",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_participants",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_teams",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
		{
			Version: 4,
			Name:    "create_outbox_events",
			UpSQL:   migration004Up,
			DownSQL: migration004Down,
		},
	}
}

const migration001Up = `
CREATE TABLE challenges (
	id                TEXT PRIMARY KEY,
	creator_id        TEXT NOT NULL,
	name              TEXT NOT NULL CHECK (char_length(name) BETWEEN 1 AND 150),
	description       TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL CHECK (type IN ('individual', 'team', 'global')),
	category          TEXT NOT NULL CHECK (char_length(category) BETWEEN 1 AND 50),
	goal              DOUBLE PRECISION NOT NULL CHECK (goal > 0),
	points_per_unit   DOUBLE PRECISION NOT NULL CHECK (points_per_unit >= 0),
	bonus_points      INTEGER NOT NULL DEFAULT 0 CHECK (bonus_points >= 0),
	unit              TEXT NOT NULL CHECK (char_length(unit) BETWEEN 1 AND 30),
	start_date        TIMESTAMPTZ NOT NULL,
	end_date          TIMESTAMPTZ NOT NULL,
	status            TEXT NOT NULL CHECK (status IN ('upcoming', 'active', 'completed', 'cancelled')),
	visibility        TEXT NOT NULL CHECK (visibility IN ('public', 'private', 'invite-only')),
	badge_id          TEXT NOT NULL DEFAULT '',
	participant_count INTEGER NOT NULL DEFAULT 0 CHECK (participant_count >= 0),
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	CHECK (start_date < end_date)
);

CREATE INDEX idx_challenges_status ON challenges (status);
CREATE INDEX idx_challenges_window ON challenges (start_date, end_date);
CREATE INDEX idx_challenges_creator ON challenges (creator_id);
CREATE INDEX idx_challenges_category ON challenges (category);
`

const migration001Down = `
DROP TABLE IF EXISTS challenges;
`

const migration002Up = `
CREATE TABLE participants (
	id             TEXT PRIMARY KEY,
	challenge_id   TEXT NOT NULL REFERENCES challenges (id) ON DELETE CASCADE,
	user_id        TEXT NOT NULL,
	team_id        TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL CHECK (status IN ('active', 'inactive', 'completed')),
	progress       DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_completed   BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at   TIMESTAMPTZ,
	points_earned  INTEGER NOT NULL DEFAULT 0,
	joined_at      TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	version        INTEGER NOT NULL DEFAULT 0,
	UNIQUE (challenge_id, user_id)
);

CREATE INDEX idx_participants_challenge ON participants (challenge_id, status);
CREATE INDEX idx_participants_team ON participants (team_id) WHERE team_id <> '';
CREATE INDEX idx_participants_user ON participants (user_id);
CREATE INDEX idx_participants_board
	ON participants (challenge_id, progress DESC, updated_at ASC, user_id ASC);
`

const migration002Down = `
DROP TABLE IF EXISTS participants;
`

const migration003Up = `
CREATE TABLE teams (
	id               TEXT PRIMARY KEY,
	challenge_id     TEXT NOT NULL REFERENCES challenges (id) ON DELETE CASCADE,
	name             TEXT NOT NULL CHECK (char_length(name) BETWEEN 1 AND 100),
	captain_id       TEXT NOT NULL,
	member_count     INTEGER NOT NULL DEFAULT 0 CHECK (member_count >= 0),
	total_progress   DOUBLE PRECISION NOT NULL DEFAULT 0,
	average_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_completed     BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at     TIMESTAMPTZ,
	completed_by     TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	version          INTEGER NOT NULL DEFAULT 0,
	UNIQUE (challenge_id, name)
);

CREATE INDEX idx_teams_challenge ON teams (challenge_id);
CREATE INDEX idx_teams_board
	ON teams (challenge_id, total_progress DESC, member_count ASC, updated_at ASC, id ASC);
`

const migration003Down = `
DROP TABLE IF EXISTS teams;
`

const migration004Up = `
CREATE TABLE outbox_events (
	id            TEXT PRIMARY KEY,
	event_type    TEXT NOT NULL,
	aggregate_id  TEXT NOT NULL,
	payload       JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL,
	dispatched_at TIMESTAMPTZ,
	attempts      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_outbox_pending
	ON outbox_events (created_at) WHERE dispatched_at IS NULL;
CREATE INDEX idx_outbox_dispatched
	ON outbox_events (dispatched_at) WHERE dispatched_at IS NOT NULL;
`

const migration004Down = `
DROP TABLE IF EXISTS outbox_events;
`
