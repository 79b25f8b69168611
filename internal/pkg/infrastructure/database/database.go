package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	host     string
	user     string
	password string
	port     string
	dbname   string
	sslmode  string
}

func LoadConfiguration(ctx context.Context) Config {
	return Config{
		host:     env.GetVariableOrDefault(ctx, "POSTGRES_HOST", ""),
		user:     env.GetVariableOrDefault(ctx, "POSTGRES_USER", ""),
		password: env.GetVariableOrDefault(ctx, "POSTGRES_PASSWORD", ""),
		port:     env.GetVariableOrDefault(ctx, "POSTGRES_PORT", "5432"),
		dbname:   env.GetVariableOrDefault(ctx, "POSTGRES_DBNAME", "diwise"),
		sslmode:  env.GetVariableOrDefault(ctx, "POSTGRES_SSLMODE", "disable"),
	}
}

func (c Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.user, c.password, c.host, c.port, c.dbname, c.sslmode)
}

// Enabled reports if a database host has been configured
func (c Config) Enabled() bool {
	return c.host != ""
}

func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	conn, err := pgxpool.New(ctx, cfg.ConnStr())
	if err != nil {
		return nil, err
	}

	err = conn.Ping(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return conn, err
}

// SnapshotStore keeps a history of entity descriptions
type SnapshotStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotStore(ctx context.Context, pool *pgxpool.Pool) (*SnapshotStore, error) {
	s := &SnapshotStore{pool: pool}

	err := s.initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot table: %w", err)
	}

	return s, nil
}

func (s *SnapshotStore) initialize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			snapshotid BIGSERIAL PRIMARY KEY,
			entityid   TEXT NOT NULL,
			entitytype TEXT NOT NULL,
			body       JSONB NOT NULL,
			ts         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS snapshots_entityid_ts_idx ON snapshots (entityid, ts DESC);`)
	return err
}

func (s *SnapshotStore) Save(ctx context.Context, entityID, entityType string, body []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (entityid, entitytype, body, ts) VALUES ($1, $2, $3, $4);`,
		entityID, entityType, body, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	logging.GetFromContext(ctx).Debug("snapshot saved", "entity_id", entityID)

	return nil
}

// Latest returns the most recent snapshot of an entity
func (s *SnapshotStore) Latest(ctx context.Context, entityID string) ([]byte, error) {
	var body []byte

	err := s.pool.QueryRow(ctx,
		`SELECT body FROM snapshots WHERE entityid=$1 ORDER BY ts DESC LIMIT 1;`,
		entityID,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no snapshot of %s: %w", entityID, err)
		}
		return nil, err
	}

	return body, nil
}

func (s *SnapshotStore) Entities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT entityid FROM snapshots ORDER BY entityid;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := make([]string, 0)

	for rows.Next() {
		var e string
		err := rows.Scan(&e)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return entities, rows.Err()
}

// DeleteStale removes all but the newest keep snapshots of an entity
func (s *SnapshotStore) DeleteStale(ctx context.Context, entityID string, keep int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM snapshots WHERE snapshotid IN (
			SELECT snapshotid FROM (
				SELECT snapshotid, ROW_NUMBER() OVER(PARTITION BY entityid ORDER BY ts DESC) AS Row
				FROM snapshots
				WHERE entityid=$1
			) stale
			WHERE stale.Row > $2
		);`, entityID, keep)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (s *SnapshotStore) Vacuum(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "VACUUM ANALYZE snapshots;")
	return err
}
