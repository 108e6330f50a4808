package payload

import (
	"database/sql"
	"embed"

	"github.com/jaennil/plateserve/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

type SQLiteCache struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteCache(path string, l logger.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	c := &SQLiteCache{
		db:     db,
		logger: l,
	}

	err = c.runMigrations()
	if err != nil {
		return nil, err
	}

	l.Info("sqlite payload cache initialized", "path", path)

	return c, nil
}

func (c *SQLiteCache) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	err = goose.Up(c.db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

var _ Cache = (*SQLiteCache)(nil)

func (c *SQLiteCache) Get(k Key) (Value, bool, error) {
	query := `SELECT payload
	FROM tile_payload
	WHERE platefile_id = ? AND level = ? AND col = ? AND row = ? AND transaction_id = ?`

	var payload []byte
	err := c.db.QueryRow(query, k.PlatefileID, k.Level, k.Col, k.Row, k.Transaction).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		c.logger.Error("sqlite payload cache get failed", "key", k, "error", err)
		return nil, false, err
	}

	return payload, true, nil
}

func (c *SQLiteCache) Set(k Key, v Value) error {
	query := `INSERT INTO tile_payload (platefile_id, level, col, row, transaction_id, payload)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(platefile_id, level, col, row, transaction_id) DO UPDATE SET payload = excluded.payload`

	_, err := c.db.Exec(query, k.PlatefileID, k.Level, k.Col, k.Row, k.Transaction, []byte(v))
	if err != nil {
		c.logger.Error("sqlite payload cache set failed", "key", k, "error", err)
		return err
	}

	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
