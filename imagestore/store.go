// Package imagestore keeps a catalogue of named heap images in SQLite.
package imagestore

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/dspearson/lisp9/vm"
)

// ErrImageNotFound indicates the requested image doesn't exist
var ErrImageNotFound = errors.New("image not found")

var log = commonlog.GetLogger("ls9.image")

// Entry describes a stored image.
type Entry struct {
	Name    string
	ID      uuid.UUID
	Size    int
	Created time.Time
}

// Store handles SQLite storage for images
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalogue at path. ":memory:" gives a private
// in-memory catalogue.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS images (
		name    TEXT PRIMARY KEY,
		id      TEXT NOT NULL,
		created INTEGER NOT NULL,
		data    BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Put saves the machine's heap under name, replacing any image of that
// name.
func (s *Store) Put(name string, m *vm.Machine) (uuid.UUID, error) {
	var buf bytes.Buffer
	id, err := m.SaveImage(&buf)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.PutBytes(name, id, buf.Bytes()); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// PutBytes stores an encoded image.
func (s *Store) PutBytes(name string, id uuid.UUID, data []byte) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO images (name, id, created, data) VALUES (?, ?, ?, ?)",
		name, id.String(), time.Now().Unix(), data,
	)
	if err != nil {
		return fmt.Errorf("saving image %s: %w", name, err)
	}
	log.Infof("stored image %s as %q (%d bytes)", id, name, len(data))
	return nil
}

// GetBytes returns the encoded image stored under name.
func (s *Store) GetBytes(name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM images WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, name)
		}
		return nil, fmt.Errorf("querying image %s: %w", name, err)
	}
	return data, nil
}

// Get loads the image stored under name into m.
func (s *Store) Get(name string, m *vm.Machine) error {
	data, err := s.GetBytes(name)
	if err != nil {
		return err
	}
	return m.LoadImage(bytes.NewReader(data))
}

// List returns all stored images ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, id, created, length(data) FROM images ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			id      string
			created int64
		)
		if err := rows.Scan(&e.Name, &id, &created, &e.Size); err != nil {
			return nil, fmt.Errorf("scanning image row: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("image %s: bad id: %w", e.Name, err)
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the image stored under name.
func (s *Store) Delete(name string) error {
	res, err := s.db.Exec("DELETE FROM images WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting image %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrImageNotFound, name)
	}
	return nil
}
