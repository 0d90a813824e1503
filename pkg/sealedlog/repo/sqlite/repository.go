// Package sqlite implements sealedlog.Repository on an embedded SQLite
// database using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/tendant/sealed-log/pkg/sealedlog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Schema creates the tables used by Repository. Times are stored as Unix
// nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS message_log (
	owner      BLOB    NOT NULL,
	topic      BLOB    NOT NULL,
	next_index INTEGER NOT NULL,
	PRIMARY KEY (owner, topic)
);

CREATE TABLE IF NOT EXISTS message (
	owner      BLOB    NOT NULL,
	topic      BLOB    NOT NULL,
	idx        INTEGER NOT NULL CHECK (idx >= 0),
	object_key TEXT    NOT NULL,
	size       INTEGER NOT NULL,
	checksum   TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (owner, topic, idx)
);

CREATE TABLE IF NOT EXISTS instance (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	instance_id TEXT    NOT NULL,
	initializer TEXT    NOT NULL,
	profile     TEXT    NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS key_record (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	key_material  TEXT    NOT NULL,
	administrator TEXT    NOT NULL CHECK (administrator <> ''),
	updated_at    INTEGER NOT NULL
);
`

// Repository implements sealedlog.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// keeps ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Message log operations

func (r *Repository) AppendMessage(ctx context.Context, msg *sealedlog.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	defer tx.Rollback()

	var idx int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO message_log (owner, topic, next_index) VALUES (?, ?, 1)
		ON CONFLICT (owner, topic) DO UPDATE SET next_index = next_index + 1
		RETURNING next_index - 1`,
		[]byte(msg.Owner), []byte(msg.Topic)).Scan(&idx)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO message (owner, topic, idx, object_key, size, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		[]byte(msg.Owner), []byte(msg.Topic), idx, msg.ObjectKey, msg.Size, msg.Checksum, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	msg.Index = uint64(idx)
	return nil
}

func (r *Repository) CountMessages(ctx context.Context, owner sealedlog.Identity, topic string) (uint64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT next_index FROM message_log WHERE owner = ? AND topic = ?`,
		[]byte(owner), []byte(topic)).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return uint64(n), nil
}

func (r *Repository) GetMessage(ctx context.Context, owner sealedlog.Identity, topic string, index uint64) (*sealedlog.Message, error) {
	if index > math.MaxInt64 {
		return nil, sealedlog.ErrIndexOutOfBounds
	}

	msg := sealedlog.Message{Owner: owner, Topic: topic, Index: index}
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT object_key, size, checksum, created_at
		FROM message WHERE owner = ? AND topic = ? AND idx = ?`,
		[]byte(owner), []byte(topic), int64(index)).Scan(
		&msg.ObjectKey, &msg.Size, &msg.Checksum, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sealedlog.ErrIndexOutOfBounds
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	return &msg, nil
}

func (r *Repository) ListTopics(ctx context.Context, owner sealedlog.Identity) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT topic FROM message_log WHERE owner = ? ORDER BY topic`, []byte(owner))
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	topics := []string{}
	for rows.Next() {
		var topic []byte
		if err := rows.Scan(&topic); err != nil {
			return nil, err
		}
		topics = append(topics, string(topic))
	}
	return topics, rows.Err()
}

// Instance and key record operations

func (r *Repository) Initialize(ctx context.Context, info *sealedlog.InstanceInfo, record *sealedlog.KeyRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO instance (id, instance_id, initializer, profile, created_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		info.InstanceID, string(info.Initializer), string(info.Profile), info.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO key_record (id, key_material, administrator, updated_at)
		VALUES (1, ?, ?, ?)`,
		record.KeyMaterial, string(record.Administrator), record.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) GetInstance(ctx context.Context) (*sealedlog.InstanceInfo, error) {
	var info sealedlog.InstanceInfo
	var initializer, profile string
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT instance_id, initializer, profile, created_at FROM instance WHERE id = 1`).Scan(
		&info.InstanceID, &initializer, &profile, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sealedlog.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}
	info.Initializer = sealedlog.Identity(initializer)
	info.Profile = sealedlog.Profile(profile)
	info.CreatedAt = time.Unix(0, createdAt).UTC()
	return &info, nil
}

func (r *Repository) GetKeyRecord(ctx context.Context) (*sealedlog.KeyRecord, error) {
	var record sealedlog.KeyRecord
	var admin string
	var updatedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT key_material, administrator, updated_at FROM key_record WHERE id = 1`).Scan(
		&record.KeyMaterial, &admin, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sealedlog.ErrKeyRecordNotFound
		}
		return nil, fmt.Errorf("get key record: %w", err)
	}
	record.Administrator = sealedlog.Identity(admin)
	record.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &record, nil
}

func (r *Repository) SwapKeyRecord(ctx context.Context, expected sealedlog.Identity, next *sealedlog.KeyRecord) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE key_record SET key_material = ?, administrator = ?, updated_at = ?
		WHERE id = 1 AND administrator = ?`,
		next.KeyMaterial, string(next.Administrator), next.UpdatedAt.UnixNano(), string(expected))
	if err != nil {
		return fmt.Errorf("swap key record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap key record: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := r.GetKeyRecord(ctx); err != nil {
		return err
	}
	return sealedlog.ErrUnauthorized
}

var _ sealedlog.Repository = (*Repository)(nil)
