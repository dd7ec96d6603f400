package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres opens the reference database holding the location tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Table returns a Source reading one of the location tables. Expected columns:
// code, city, country, lat, lon (names and coordinates nullable).
func (p *Postgres) Table(name string) Source {
	return pgTable{db: p.db, table: name}
}

type pgTable struct {
	db    *sql.DB
	table string
}

func (t pgTable) Name() string { return "postgres:" + t.table }

// allowedTables keeps the table name out of reach of configuration typos
// turning into arbitrary SQL.
var allowedTables = map[string]bool{"geo_locations": true, "locality_locations": true}

func (t pgTable) Load(ctx context.Context) (Table, error) {
	if !allowedTables[t.table] {
		return nil, fmt.Errorf("unknown location table %q", t.table)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := t.db.QueryContext(ctx, `SELECT code, city, country, lat, lon FROM `+t.table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := Table{}
	for rows.Next() {
		var (
			code          string
			city, country sql.NullString
			lat, lon      sql.NullFloat64
		)
		if err := rows.Scan(&code, &city, &country, &lat, &lon); err != nil {
			return nil, err
		}
		code = NormalizeCode(code)
		if !validCode(code) {
			continue
		}
		e := Entry{City: city.String, Country: country.String}
		if lat.Valid && lon.Valid {
			e.Lat, e.Lon, e.HasGeo = lat.Float64, lon.Float64, true
		}
		out[code] = e
	}
	return out, rows.Err()
}
