package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"signal-streamer/src/logger"
	"signal-streamer/src/models"

	_ "github.com/lib/pq"
)

var schemaUnsafe = regexp.MustCompile(`[^a-z0-9_]`)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config models.MStorageConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewPostgresDB creates a journal whose tables live in a schema named after
// the service.
func NewPostgresDB(cfg models.MStorageConfig, serviceName string, log *logger.Logger) (*PostgresDB, error) {
	if cfg.DBConnectionString == "" {
		return nil, fmt.Errorf("postgres journal requires db_connection_string")
	}
	return &PostgresDB{
		Config: cfg,
		Schema: SchemaName(serviceName),
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

// SchemaName lowercases name and replaces anything outside [a-z0-9_].
func SchemaName(name string) string {
	s := schemaUnsafe.ReplaceAllString(strings.ToLower(name), "_")
	if s == "" {
		return "signal_streamer"
	}
	return s
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	db, err := sql.Open("postgres", d.Config.DBConnectionString)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s".trade_signals (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			dataset TEXT,
			action TEXT NOT NULL,
			price DOUBLE PRECISION,
			stop_price DOUBLE PRECISION,
			position TEXT,
			bar_time BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create trade_signals: %w", err)
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveSignal(sig models.MTradeSignal) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s".trade_signals (symbol, dataset, action, price, stop_price, position, bar_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))`, d.Schema)

	var created interface{}
	if !sig.CreatedAt.IsZero() {
		created = sig.CreatedAt
	}
	if _, err := d.DB.Exec(query, sig.Symbol, sig.Dataset, string(sig.Action), sig.Price, sig.StopPrice, string(sig.Position), sig.BarTime, created); err != nil {
		return fmt.Errorf("insert trade signal: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RecentSignals(limit int) ([]models.MTradeSignal, error) {
	query := fmt.Sprintf(`
		SELECT id, symbol, dataset, action, price, stop_price, position, bar_time, created_at
		FROM "%s".trade_signals ORDER BY id DESC LIMIT $1`, d.Schema)

	rows, err := d.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MTradeSignal
	for rows.Next() {
		var (
			s        models.MTradeSignal
			action   string
			position string
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Dataset, &action, &s.Price, &s.StopPrice, &position, &s.BarTime, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Action = models.Action(action)
		s.Position = models.Position(position)
		out = append(out, s)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
