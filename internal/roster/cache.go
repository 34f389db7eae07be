package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Database locates the roster cache: a local sqlite file, or a remote libsql database when Url
// is set.
type Database struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Database) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		values := url.Values{}
		if config.AuthToken != "" {
			values.Add("authToken", config.AuthToken)
		}
		return sql.Open("libsql", config.Url+"?"+values.Encode())
	}

	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	if config.File != ":memory:" {
		err := os.MkdirAll(filepath.Dir(config.File), 0o755)
		if err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
create table if not exists roster (
	id integer primary key check (id = 1),
	entries text not null,
	saved_at integer not null
);
`

// Cache persists the latest instrument list, only one list is ever kept.
type Cache struct {
	db *sql.DB
}

func NewCache(ctx context.Context, db *sql.DB) (*Cache, error) {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("create roster table: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Save(ctx context.Context, entries []Entry) error {
	encoded, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(
		ctx,
		`insert into roster (id, entries, saved_at) values (1, ?, unixepoch())
		on conflict (id) do update set entries = excluded.entries, saved_at = excluded.saved_at`,
		string(encoded),
	)
	return err
}

// Load returns the persisted list, or nil when nothing was saved yet.
func (c *Cache) Load(ctx context.Context) ([]Entry, error) {
	var encoded string
	err := c.db.QueryRowContext(ctx, "select entries from roster where id = 1").Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	err = json.Unmarshal([]byte(encoded), &entries)
	if err != nil {
		return nil, err
	}
	return entries, nil
}
