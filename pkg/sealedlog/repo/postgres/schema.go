package postgres

import (
	"context"
	"fmt"
)

// Schema creates the tables used by Repository. Owners and topics are stored
// as BYTEA since both are arbitrary byte strings.
const Schema = `
CREATE TABLE IF NOT EXISTS message_log (
	owner      BYTEA  NOT NULL,
	topic      BYTEA  NOT NULL,
	next_index BIGINT NOT NULL,
	PRIMARY KEY (owner, topic)
);

CREATE TABLE IF NOT EXISTS message (
	owner      BYTEA       NOT NULL,
	topic      BYTEA       NOT NULL,
	idx        BIGINT      NOT NULL CHECK (idx >= 0),
	object_key TEXT        NOT NULL,
	size       BIGINT      NOT NULL,
	checksum   VARCHAR(64) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner, topic, idx)
);

CREATE TABLE IF NOT EXISTS instance (
	id          SMALLINT    PRIMARY KEY CHECK (id = 1),
	instance_id TEXT        NOT NULL,
	initializer TEXT        NOT NULL,
	profile     VARCHAR(16) NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS key_record (
	id            SMALLINT    PRIMARY KEY CHECK (id = 1),
	key_material  TEXT        NOT NULL,
	administrator TEXT        NOT NULL CHECK (administrator <> ''),
	updated_at    TIMESTAMPTZ NOT NULL
);
`

// Migrate applies Schema. It is safe to run on every start.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
