package storage

import (
	"database/sql"
	"fmt"
	"time"

	"signal-streamer/src/logger"
	"signal-streamer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config models.MStorageConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg models.MStorageConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("sqlite journal requires db_path")
	}
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	db, err := sql.Open("sqlite", d.Config.DBPath)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	// single writer; the dispatcher worker is the only caller of SaveSignal
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS trade_signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			dataset TEXT,
			action TEXT NOT NULL,
			price REAL,
			stop_price REAL,
			position TEXT,
			bar_time INTEGER,
			created_at INTEGER
		);`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create trade_signals: %w", err)
	}
	if _, err := d.DB.Exec("CREATE INDEX IF NOT EXISTS idx_trade_signals_symbol ON trade_signals(symbol, bar_time)"); err != nil {
		return fmt.Errorf("failed to create trade_signals index: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveSignal(sig models.MTradeSignal) error {
	created := sig.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := d.DB.Exec(
		`INSERT INTO trade_signals (symbol, dataset, action, price, stop_price, position, bar_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.Symbol, sig.Dataset, string(sig.Action), sig.Price, sig.StopPrice, string(sig.Position), sig.BarTime, created.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert trade signal: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) RecentSignals(limit int) ([]models.MTradeSignal, error) {
	rows, err := d.DB.Query(
		`SELECT id, symbol, dataset, action, price, stop_price, position, bar_time, created_at
		 FROM trade_signals ORDER BY id DESC LIMIT ?`, limit)
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
			created  int64
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Dataset, &action, &s.Price, &s.StopPrice, &position, &s.BarTime, &created); err != nil {
			return nil, err
		}
		s.Action = models.Action(action)
		s.Position = models.Position(position)
		s.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
