/*
Package store implements a small sqlite database of PNG images, so that
images can be kept on the device and drawn by name without touching the
filesystem or the network.
*/
package store

import (
	"bytes"
	"crypto/sha1"
	"database/sql"
	"errors"
	"fmt"
	"image/png"
	"io"
	"io/ioutil"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no image with the requested name exists.
var ErrNotFound = errors.New("store: image not found")

// Image describes a stored image.
type Image struct {
	Name   string
	SHA1   string
	Width  int
	Height int
	Size   int
}

// Store is a database of PNG images.
type Store struct {
	db *sql.DB
}

// Open opens the database in file, creating it if necessary.
func Open(file string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS image (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL UNIQUE, sha1 TEXT NOT NULL, width INTEGER NOT NULL, height INTEGER NOT NULL, data BLOB NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db: db,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put reads a PNG image from r and stores it under name, replacing any
// image already stored with that name.
func (s *Store) Put(name string, r io.Reader) (*Image, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	config, err := png.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", name, err)
	}

	img := &Image{
		Name:   name,
		SHA1:   fmt.Sprintf("%X", sha1.Sum(b)),
		Width:  config.Width,
		Height: config.Height,
		Size:   len(b),
	}

	if _, err := s.db.Exec("INSERT OR REPLACE INTO image (name, sha1, width, height, data) VALUES (?, ?, ?, ?, ?)", img.Name, img.SHA1, img.Width, img.Height, b); err != nil {
		return nil, err
	}

	return img, nil
}

// Get returns the PNG image stored under name.
func (s *Store) Get(name string) ([]byte, error) {
	var b []byte
	switch err := s.db.QueryRow("SELECT data FROM image WHERE name = ?", name).Scan(&b); err {
	case sql.ErrNoRows:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	case nil:
		return b, nil
	default:
		return nil, err
	}
}

// Delete removes the image stored under name.
func (s *Store) Delete(name string) error {
	result, err := s.db.Exec("DELETE FROM image WHERE name = ?", name)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// List returns every stored image, ordered by name.
func (s *Store) List() ([]Image, error) {
	rows, err := s.db.Query("SELECT name, sha1, width, height, length(data) FROM image ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.Name, &img.SHA1, &img.Width, &img.Height, &img.Size); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
