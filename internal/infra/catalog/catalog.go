// Package catalog stores song metadata in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/osa030/playdeck/internal/domain/track"
)

const (
	appName    = "playdeck"
	dbFileName = "catalog.db"
	memoryPath = ":memory:"
)

// ErrNotFound is returned when no song has the requested id.
var ErrNotFound = errors.New("song not found")

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	author      TEXT NOT NULL DEFAULT '',
	song_path   TEXT NOT NULL,
	image_path  TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_songs_user_created ON songs(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_songs_created ON songs(created_at DESC);
`

const songColumns = `id, user_id, title, author, song_path, image_path, duration_ms, created_at`

// Store is the song catalog.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the catalog location under the XDG data directory.
func DefaultPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}

// Open opens (creating if needed) the catalog at path. An empty path
// selects DefaultPath; ":memory:" opens a private in-memory catalog.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve catalog path")
		}
		path = p
	}

	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create catalog directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog")
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if path != memoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "failed to set pragma: %s", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize catalog schema")
	}

	zlog.Debug().Msgf("catalog: opened: path=%s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSongs inserts or replaces songs in one transaction. A zero
// CreatedAt is stamped with the current time.
func (s *Store) SaveSongs(ctx context.Context, songs []track.Song) error {
	if len(songs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO songs (`+songColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			author = excluded.author,
			song_path = excluded.song_path,
			image_path = excluded.image_path,
			duration_ms = excluded.duration_ms,
			created_at = excluded.created_at`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare upsert")
	}
	defer stmt.Close()

	now := time.Now()
	for _, song := range songs {
		if song.ID == "" {
			return errors.New("song id is required")
		}
		if song.SongPath == "" {
			return errors.Newf("song %s has no song_path", song.ID)
		}
		created := song.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx,
			song.ID, song.UserID, song.Title, song.Author,
			song.SongPath, song.ImagePath,
			song.Duration.Milliseconds(), created.UnixMilli(),
		); err != nil {
			return errors.Wrapf(err, "failed to save song %s", song.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit songs")
	}
	return nil
}

// GetSong returns a song by id.
func (s *Store) GetSong(ctx context.Context, id track.ID) (*track.Song, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE id = ?`, id)
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get song %s", id)
	}
	return &song, nil
}

// ListByUser returns a user's songs, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]track.Song, error) {
	return s.query(ctx, `SELECT `+songColumns+` FROM songs WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
}

// SearchByTitle returns songs whose title contains query, ignoring case,
// newest first. An empty query returns every song.
func (s *Store) SearchByTitle(ctx context.Context, query string) ([]track.Song, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListAll(ctx)
	}
	pattern := "%" + escapeLike(query) + "%"
	return s.query(ctx, `SELECT `+songColumns+` FROM songs WHERE title LIKE ? ESCAPE '\' ORDER BY created_at DESC, id`, pattern)
}

// ListAll returns every song, newest first.
func (s *Store) ListAll(ctx context.Context) ([]track.Song, error) {
	return s.query(ctx, `SELECT `+songColumns+` FROM songs ORDER BY created_at DESC, id`)
}

// DeleteSongs removes songs by id and returns how many existed.
func (s *Store) DeleteSongs(ctx context.Context, ids []track.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM songs WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete songs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted songs")
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]track.Song, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query songs")
	}
	defer rows.Close()

	songs := make([]track.Song, 0)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan song")
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read songs")
	}
	return songs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSong(row scanner) (track.Song, error) {
	var (
		song       track.Song
		durationMs int64
		createdMs  int64
	)
	if err := row.Scan(
		&song.ID, &song.UserID, &song.Title, &song.Author,
		&song.SongPath, &song.ImagePath, &durationMs, &createdMs,
	); err != nil {
		return track.Song{}, err
	}
	song.Duration = time.Duration(durationMs) * time.Millisecond
	song.CreatedAt = time.UnixMilli(createdMs)
	return song, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
