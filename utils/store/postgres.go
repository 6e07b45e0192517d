package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// pgRecord PostgreSQL中的相位状态行
type pgRecord struct {
	JunctionID    int32     `db:"junction_id"`
	Epoch         string    `db:"epoch"`
	Version       int64     `db:"version"`
	ActiveIndex   int32     `db:"active_index"`
	PhaseStart    time.Time `db:"phase_start"`
	PhaseDuration int32     `db:"phase_duration"`
}

// Postgres PostgreSQL存储
// 功能：每个路口一行，CAS通过 UPDATE ... WHERE epoch = $n AND version = $m 实现
type Postgres struct {
	db    *sqlx.DB
	table string
}

// NewPostgres 连接PostgreSQL并确保表存在
// 参数：ctx-上下文，dsn-连接字符串，table-表名
func NewPostgres(ctx context.Context, dsn string, table string) (*Postgres, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	p := &Postgres{db: db, table: table}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("use postgres storage table %s", table)
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + p.table + ` (
			junction_id    INTEGER PRIMARY KEY,
			epoch          TEXT        NOT NULL,
			version        BIGINT      NOT NULL,
			active_index   INTEGER     NOT NULL,
			phase_start    TIMESTAMPTZ NOT NULL,
			phase_duration INTEGER     NOT NULL
		)`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.table, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, junctionID int32) (Record, error) {
	query := `
		SELECT junction_id, epoch, version, active_index, phase_start, phase_duration
		FROM ` + p.table + `
		WHERE junction_id = $1`
	var row pgRecord
	if err := p.db.GetContext(ctx, &row, query, junctionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to query phase state: %w", err)
	}
	rec := Record(row)
	if err := rec.Check(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (p *Postgres) Create(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO ` + p.table + ` (junction_id, epoch, version, active_index, phase_start, phase_duration)
		VALUES (:junction_id, :epoch, :version, :active_index, :phase_start, :phase_duration)`
	_, err := p.db.NamedExecContext(ctx, query, pgRecord(rec))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		// unique_violation
		return ErrConflict
	}
	return err
}

func (p *Postgres) CompareAndSwap(ctx context.Context, prev, next Record) error {
	query := `
		UPDATE ` + p.table + `
		SET epoch = $4, version = $5, active_index = $6, phase_start = $7, phase_duration = $8
		WHERE junction_id = $1 AND epoch = $2 AND version = $3`
	res, err := p.db.ExecContext(ctx, query,
		prev.JunctionID, prev.Epoch, prev.Version,
		next.Epoch, next.Version, next.ActiveIndex, next.PhaseStart, next.PhaseDuration,
	)
	if err != nil {
		return fmt.Errorf("failed to update phase state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, junctionID int32) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE junction_id = $1`, junctionID)
	return err
}

func (p *Postgres) Close(ctx context.Context) error {
	return p.db.Close()
}
