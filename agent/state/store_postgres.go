package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresStoreConfig points at the database that persists sessions across
// restarts.
type PostgresStoreConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"5s"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:agent_sessions"`

	ID        string    `bun:"id,pk"`
	Payload   []byte    `bun:"payload,type:jsonb"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// PostgresStore persists sessions as one jsonb document per session.
type PostgresStore struct {
	db           *bun.DB
	queryTimeout time.Duration
}

func NewPostgresStore(cfg PostgresStoreConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &PostgresStore{
		db:           bun.NewDB(sqldb, pgdialect.New()),
		queryTimeout: timeout,
	}, nil
}

// Init creates the backing table when it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.db.NewCreateTable().Model((*sessionRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create session table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(row.Payload, &session); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	return &session, nil
}

func (s *PostgresStore) Save(ctx context.Context, session *Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := sessionRow{
		ID:        session.ID,
		Payload:   payload,
		UpdatedAt: session.UpdatedAt,
	}
	_, err = s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.db.NewDelete().Model((*sessionRow)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
