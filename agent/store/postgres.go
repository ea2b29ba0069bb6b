package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/eduverse/agent-core/agent/contract"
)

type Config struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type recordRow struct {
	bun.BaseModel `bun:"table:agent_records,alias:r"`

	ID        string          `bun:"id,pk"`
	LearnerID string          `bun:"learner_id,notnull"`
	Agent     string          `bun:"agent,notnull"`
	Kind      string          `bun:"kind,notnull"`
	Payload   json.RawMessage `bun:"payload,type:jsonb"`
	CreatedAt time.Time       `bun:"created_at,notnull"`
}

// Postgres is the durable, append-only record store. Records are only ever
// inserted; corrections are new records.
type Postgres struct {
	db *bun.DB
}

var _ contract.PersistenceStore = (*Postgres)(nil)

func NewPostgres(cfg Config) (*Postgres, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	return NewWithDB(sqldb), nil
}

// NewWithDB wraps an existing database handle; used by tests.
func NewWithDB(sqldb *sql.DB) *Postgres {
	return &Postgres{db: bun.NewDB(sqldb, pgdialect.New())}
}

// Init creates the records table when it does not exist yet.
func (p *Postgres) Init(ctx context.Context) error {
	_, err := p.db.NewCreateTable().
		Model((*recordRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create agent_records table: %w", err)
	}
	return nil
}

// WriteRecord inserts one record and returns its identifier. A record with no
// ID gets a generated UUID; a caller-provided ID is honored (exam sheets are
// keyed by exam ID).
func (p *Postgres) WriteRecord(ctx context.Context, rec *contract.Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: record is nil", contract.ErrValidation)
	}
	if strings.TrimSpace(rec.LearnerID) == "" {
		return "", fmt.Errorf("%w: record learner id is empty", contract.ErrValidation)
	}

	row := recordRow{
		ID:        strings.TrimSpace(rec.ID),
		LearnerID: rec.LearnerID,
		Agent:     string(rec.Agent),
		Kind:      rec.Kind,
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	if _, err := p.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return "", classify(err, "insert record")
	}
	return row.ID, nil
}

// ReadRecord loads one record by identifier.
func (p *Postgres) ReadRecord(ctx context.Context, recordID string) (*contract.Record, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, fmt.Errorf("%w: record id is empty", contract.ErrValidation)
	}

	var row recordRow
	err := p.db.NewSelect().
		Model(&row).
		Where("r.id = ?", recordID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%s", contract.ErrRecordNotFound, recordID)
		}
		return nil, classify(err, "select record")
	}

	return &contract.Record{
		ID:        row.ID,
		LearnerID: row.LearnerID,
		Agent:     contract.AgentKind(row.Agent),
		Kind:      row.Kind,
		Payload:   row.Payload,
		CreatedAt: row.CreatedAt,
	}, nil
}

func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", contract.ErrAdapterTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", contract.ErrAdapterUnavailable, op, err)
}
