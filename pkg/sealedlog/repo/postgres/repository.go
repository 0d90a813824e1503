package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// DBTX is an interface that allows us to use either a connection pool or a transaction
type DBTX interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements sealedlog.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) sealedlog.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) sealedlog.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.TableName == "message" {
				return sealedlog.ErrIndexConflict
			}
			return fmt.Errorf("duplicate entry in %s", pgErr.TableName)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("check constraint %s violated", pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Message log operations

func (r *Repository) AppendMessage(ctx context.Context, msg *sealedlog.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError("append message", err)
	}
	defer tx.Rollback(ctx)

	// The upsert takes a row lock on the (owner, topic) counter, so
	// concurrent writers on the same sequence are serialized here.
	var idx int64
	err = tx.QueryRow(ctx, `
		INSERT INTO message_log (owner, topic, next_index) VALUES ($1, $2, 1)
		ON CONFLICT (owner, topic) DO UPDATE SET next_index = message_log.next_index + 1
		RETURNING next_index - 1`,
		[]byte(msg.Owner), []byte(msg.Topic)).Scan(&idx)
	if err != nil {
		return r.handlePostgresError("append message", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO message (owner, topic, idx, object_key, size, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		[]byte(msg.Owner), []byte(msg.Topic), idx, msg.ObjectKey, msg.Size, msg.Checksum, msg.CreatedAt)
	if err != nil {
		return r.handlePostgresError("append message", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return r.handlePostgresError("append message", err)
	}

	msg.Index = uint64(idx)
	return nil
}

func (r *Repository) CountMessages(ctx context.Context, owner sealedlog.Identity, topic string) (uint64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT next_index FROM message_log WHERE owner = $1 AND topic = $2`,
		[]byte(owner), []byte(topic)).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, r.handlePostgresError("count messages", err)
	}
	return uint64(n), nil
}

func (r *Repository) GetMessage(ctx context.Context, owner sealedlog.Identity, topic string, index uint64) (*sealedlog.Message, error) {
	// BIGINT cannot hold indices past MaxInt64, and none can exist.
	if index > math.MaxInt64 {
		return nil, sealedlog.ErrIndexOutOfBounds
	}

	msg := sealedlog.Message{Owner: owner, Topic: topic, Index: index}
	err := r.db.QueryRow(ctx, `
		SELECT object_key, size, checksum, created_at
		FROM message WHERE owner = $1 AND topic = $2 AND idx = $3`,
		[]byte(owner), []byte(topic), int64(index)).Scan(
		&msg.ObjectKey, &msg.Size, &msg.Checksum, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sealedlog.ErrIndexOutOfBounds
		}
		return nil, r.handlePostgresError("get message", err)
	}
	return &msg, nil
}

func (r *Repository) ListTopics(ctx context.Context, owner sealedlog.Identity) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT topic FROM message_log WHERE owner = $1 ORDER BY topic`, []byte(owner))
	if err != nil {
		return nil, r.handlePostgresError("list topics", err)
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
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list topics", err)
	}
	return topics, nil
}

// Instance and key record operations

func (r *Repository) Initialize(ctx context.Context, info *sealedlog.InstanceInfo, record *sealedlog.KeyRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError("initialize", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO instance (id, instance_id, initializer, profile, created_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		info.InstanceID, string(info.Initializer), string(info.Profile), info.CreatedAt)
	if err != nil {
		return r.handlePostgresError("initialize", err)
	}
	if tag.RowsAffected() == 0 {
		// Already initialized by an earlier start or another process.
		return nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO key_record (id, key_material, administrator, updated_at)
		VALUES (1, $1, $2, $3)`,
		record.KeyMaterial, string(record.Administrator), record.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("initialize", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return r.handlePostgresError("initialize", err)
	}
	return nil
}

func (r *Repository) GetInstance(ctx context.Context) (*sealedlog.InstanceInfo, error) {
	var info sealedlog.InstanceInfo
	var initializer, profile string
	err := r.db.QueryRow(ctx,
		`SELECT instance_id, initializer, profile, created_at FROM instance WHERE id = 1`).Scan(
		&info.InstanceID, &initializer, &profile, &info.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sealedlog.ErrInstanceNotFound
		}
		return nil, r.handlePostgresError("get instance", err)
	}
	info.Initializer = sealedlog.Identity(initializer)
	info.Profile = sealedlog.Profile(profile)
	return &info, nil
}

func (r *Repository) GetKeyRecord(ctx context.Context) (*sealedlog.KeyRecord, error) {
	var record sealedlog.KeyRecord
	var admin string
	err := r.db.QueryRow(ctx,
		`SELECT key_material, administrator, updated_at FROM key_record WHERE id = 1`).Scan(
		&record.KeyMaterial, &admin, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sealedlog.ErrKeyRecordNotFound
		}
		return nil, r.handlePostgresError("get key record", err)
	}
	record.Administrator = sealedlog.Identity(admin)
	return &record, nil
}

func (r *Repository) SwapKeyRecord(ctx context.Context, expected sealedlog.Identity, next *sealedlog.KeyRecord) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE key_record SET key_material = $1, administrator = $2, updated_at = $3
		WHERE id = 1 AND administrator = $4`,
		next.KeyMaterial, string(next.Administrator), next.UpdatedAt, string(expected))
	if err != nil {
		return r.handlePostgresError("swap key record", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetKeyRecord(ctx); err != nil {
		return err
	}
	return sealedlog.ErrUnauthorized
}
