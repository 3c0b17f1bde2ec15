package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

type Postgres struct{ DB *sql.DB }

var _ Store = (*Postgres)(nil)

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// connection pool tune
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.DB.PingContext(ctx) }

func (p *Postgres) Close() error { return p.DB.Close() }

func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS damage_analyses (
            id                TEXT PRIMARY KEY,
            created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
            session_id        TEXT,
            image_name        TEXT NOT NULL DEFAULT '',
            image_hash        TEXT NOT NULL,
            engine            TEXT NOT NULL,
            model             TEXT NOT NULL,
            overall_condition TEXT NOT NULL,
            damage_count      INTEGER NOT NULL DEFAULT 0,
            total_cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
            result_json       JSONB NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_damage_analyses_hash ON damage_analyses(image_hash, engine, model, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_damage_analyses_created ON damage_analyses(created_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := p.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, r Record) error {
	js, err := json.Marshal(r.Result)
	if err != nil {
		return err
	}
	const q = `
insert into damage_analyses
    (id, created_at, session_id, image_name, image_hash, engine, model,
     overall_condition, damage_count, total_cost, result_json)
values ($1, $2, nullif($3,''), $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = p.DB.ExecContext(ctx, q, r.ID, r.CreatedAt, r.SessionID, r.ImageName, r.ImageHash, r.Engine, r.Model,
		string(r.Result.OverallCondition), len(r.Result.Damages), r.totalCost(), js)
	return err
}

const selectCols = `id, created_at, coalesce(session_id,'') as session_id, image_name, image_hash, engine, model, result_json`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var (
		r  Record
		js []byte
	)
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.SessionID, &r.ImageName, &r.ImageHash, &r.Engine, &r.Model, &js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if err := json.Unmarshal(js, &r.Result); err != nil {
		return Record{}, fmt.Errorf("record %s: bad result_json: %w", r.ID, err)
	}
	return r, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (Record, error) {
	return scanRecord(p.DB.QueryRowContext(ctx, `select `+selectCols+` from damage_analyses where id = $1`, id))
}

func (p *Postgres) List(ctx context.Context, limit, offset int) (Page, error) {
	limit, offset = NormalizePage(limit, offset)
	page := Page{Data: []Record{}, Limit: limit, Offset: offset}

	if err := p.DB.QueryRowContext(ctx, `select count(*) from damage_analyses`).Scan(&page.Total); err != nil {
		return Page{}, err
	}
	rows, err := p.DB.QueryContext(ctx,
		`select `+selectCols+` from damage_analyses order by created_at desc limit $1 offset $2`, limit, offset)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return Page{}, err
		}
		page.Data = append(page.Data, r)
	}
	return page, rows.Err()
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `delete from damage_analyses where id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByHash достаёт самую свежую запись по ключу (image_hash + engine + model).
// Если maxAge > 0, проверяет "свежесть", иначе игнорирует возраст.
func (p *Postgres) FindByHash(ctx context.Context, imageHash, engine, model string, maxAge time.Duration) (Record, error) {
	const q = `select ` + selectCols + `
from damage_analyses
where image_hash = $1 and engine = $2 and model = $3
order by created_at desc
limit 1`
	r, err := scanRecord(p.DB.QueryRowContext(ctx, q, imageHash, engine, model))
	if err != nil {
		return Record{}, err
	}
	if maxAge > 0 && time.Since(r.CreatedAt) > maxAge {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (p *Postgres) Statistics(ctx context.Context) (Statistics, error) {
	st := Statistics{ByCondition: map[string]int64{}, ByEngine: map[string]int64{}}
	err := p.DB.QueryRowContext(ctx,
		`select count(*), coalesce(sum(damage_count),0), coalesce(sum(total_cost),0), coalesce(avg(total_cost),0) from damage_analyses`).
		Scan(&st.TotalAnalyses, &st.TotalDamages, &st.TotalEstimatedCost, &st.AvgEstimatedCost)
	if err != nil {
		return Statistics{}, err
	}
	if err := p.countBy(ctx, "overall_condition", st.ByCondition); err != nil {
		return Statistics{}, err
	}
	if err := p.countBy(ctx, "engine", st.ByEngine); err != nil {
		return Statistics{}, err
	}
	return st, nil
}

// col: только константы из Statistics, не пользовательский ввод.
func (p *Postgres) countBy(ctx context.Context, col string, into map[string]int64) error {
	rows, err := p.DB.QueryContext(ctx, `select `+col+`, count(*) from damage_analyses group by `+col)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			n int64
		)
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		into[k] = n
	}
	return rows.Err()
}
