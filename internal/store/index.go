package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// indexSchema mirrors GonzoDMX's embedded SchemaSQL pattern: one
// CREATE TABLE IF NOT EXISTS block applied on open.
const indexSchema = `
CREATE TABLE IF NOT EXISTS scripts (
    name TEXT PRIMARY KEY,
    folder_path TEXT NOT NULL DEFAULT '',
    author TEXT,
    description TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    legacy INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME,
    modified_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_scripts_folder ON scripts(folder_path);
`

// Index is the sqlite-backed metadata catalogue for List/folder queries.
// The script body and signature live only in the on-disk JSON record;
// the index exists purely to make List() and folder browsing fast.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (and migrates) the sqlite metadata index.
func OpenIndex(dsn string) (*Index, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying script index schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error { return i.db.Close() }

// Upsert inserts or replaces a script's metadata row.
func (i *Index) Upsert(m ScriptMetadata) error {
	_, err := i.db.Exec(`
		INSERT INTO scripts (name, folder_path, author, description, version, legacy, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			folder_path=excluded.folder_path,
			author=excluded.author,
			description=excluded.description,
			version=excluded.version,
			legacy=excluded.legacy,
			modified_at=excluded.modified_at
	`, m.Name, m.FolderPath, m.Metadata.Author, m.Metadata.Description, m.Metadata.Version,
		boolToInt(m.Legacy), m.Metadata.CreatedAt, m.Metadata.ModifiedAt)
	return err
}

// Delete removes a script's metadata row. Idempotent.
func (i *Index) Delete(name string) error {
	_, err := i.db.Exec(`DELETE FROM scripts WHERE name = ?`, name)
	return err
}

// List returns every indexed script's metadata.
func (i *Index) List() ([]ScriptMetadata, error) {
	rows, err := i.db.Query(`SELECT name, folder_path, author, description, version, legacy, created_at, modified_at FROM scripts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScriptMetadata
	for rows.Next() {
		var m ScriptMetadata
		var legacy int
		if err := rows.Scan(&m.Name, &m.FolderPath, &m.Metadata.Author, &m.Metadata.Description,
			&m.Metadata.Version, &legacy, &m.Metadata.CreatedAt, &m.Metadata.ModifiedAt); err != nil {
			return nil, err
		}
		m.Legacy = legacy != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
