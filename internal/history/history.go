// Package history keeps the project journal in SQLite with FTS5 and
// sqlite-vec indexes alongside the context document.
package history

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver with database/sql

	"github.com/go-ports/contextmgr/internal/models"
)

func init() { //nolint:gochecknoinits // registers sqlite-vec extension with go-sqlite3 before any DB connection opens
	vec.Auto()
}

// FileName is the journal database inside the .context directory.
const FileName = "history.db"

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrDimensionMismatch is returned when a new embedding dimension differs from the one stored.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DB wraps a *sql.DB with the path it was opened from.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the journal at path and initialises the schema.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history.Open: %w", err)
	}
	d := &DB{db: sqldb, path: path}
	if err := d.createSchema(); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("history.Open createSchema: %w", err)
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

func (d *DB) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT UNIQUE NOT NULL,
			kind       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL DEFAULT '',
			project    TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_created_at ON events(created_at)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
			title, body, kind, project,
			content='events', content_rowid='rowid',
			tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
			INSERT INTO events_fts(rowid, title, body, kind, project)
			VALUES (new.rowid, new.title, new.body, new.kind, new.project);
		END`,
		`CREATE TRIGGER IF NOT EXISTS events_ad AFTER DELETE ON events BEGIN
			INSERT INTO events_fts(events_fts, rowid, title, body, kind, project)
			VALUES ('delete', old.rowid, old.title, old.body, old.kind, old.project);
		END`,
	}

	for _, s := range stmts {
		if _, err := d.db.Exec(s); err != nil {
			return fmt.Errorf("createSchema exec: %w\nSQL: %s", err, s)
		}
	}

	// Recreate vec table if dimension was previously persisted.
	if dim, ok, err := d.GetEmbeddingDim(); err == nil && ok {
		if err := d.createVecTable(dim); err != nil {
			return fmt.Errorf("createSchema createVecTable: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Vector table helpers
// ---------------------------------------------------------------------------

func (d *DB) createVecTable(dim int) error {
	_, err := d.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS events_vec USING vec0(
			rowid INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, dim,
	))
	return err
}

// HasVecTable returns true if the events_vec table exists.
func (d *DB) HasVecTable() (bool, error) {
	var name string
	err := d.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='events_vec'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// DropVecTable drops the vector table and forgets its dimension.
func (d *DB) DropVecTable() error {
	if _, err := d.db.Exec("DROP TABLE IF EXISTS events_vec"); err != nil {
		return err
	}
	_, err := d.db.Exec(`DELETE FROM meta WHERE key = 'embedding_dim'`)
	return err
}

// GetEmbeddingDim reads the stored embedding dimension from the meta table.
func (d *DB) GetEmbeddingDim() (int, bool, error) {
	val, ok, err := d.GetMeta("embedding_dim")
	if !ok || err != nil {
		return 0, false, err
	}
	dim, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return dim, true, nil
}

// EnsureVecTable ensures the vector table exists with the given dimension.
// Returns ErrDimensionMismatch if the stored dimension differs.
func (d *DB) EnsureVecTable(dim int) error {
	stored, ok, err := d.GetEmbeddingDim()
	if err != nil {
		return err
	}
	if !ok {
		if err := d.SetMeta("embedding_dim", strconv.Itoa(dim)); err != nil {
			return err
		}
		return d.createVecTable(dim)
	}
	if stored != dim {
		return fmt.Errorf("%w: journal has %d, provider returned %d. Run 'contextmgr context reindex' to rebuild",
			ErrDimensionMismatch, stored, dim)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Record appends e to the journal and returns its rowid.
func (d *DB) Record(e *models.Event) (int64, error) {
	res, err := d.db.Exec(`
		INSERT INTO events (id, kind, title, body, project, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Title, e.Body, e.Project,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("history.Record: %w", err)
	}
	return res.LastInsertId()
}

// InsertVector stores an embedding for the event at rowid.
// It is a no-op until EnsureVecTable has run.
func (d *DB) InsertVector(rowid int64, embedding []float32) error {
	ok, err := d.HasVecTable()
	if err != nil || !ok {
		return err
	}
	_, err = d.db.Exec(
		`INSERT OR REPLACE INTO events_vec (rowid, embedding) VALUES (?, ?)`,
		rowid, encodeVector(embedding),
	)
	return err
}

// Recent returns up to limit events, newest first. An empty kind matches all.
func (d *DB) Recent(limit int, kind models.EventKind) ([]models.Event, error) {
	rows, err := d.db.Query(`
		SELECT `+eventColumns+`
		FROM events e
		WHERE (?1 = '' OR e.kind = ?1)
		ORDER BY e.created_at DESC, e.rowid DESC
		LIMIT ?2`,
		string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history.Recent: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("history.Recent: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of events of kind, or of every kind when empty.
func (d *DB) Count(kind models.EventKind) (int, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE (?1 = '' OR kind = ?1)`, string(kind),
	).Scan(&n)
	return n, err
}

// Prune deletes events created before the cutoff and returns how many went.
func (d *DB) Prune(before time.Time) (int, error) {
	cutoff := before.UTC().Format(timeLayout)
	if ok, err := d.HasVecTable(); err == nil && ok {
		if _, err := d.db.Exec(
			`DELETE FROM events_vec WHERE rowid IN (SELECT rowid FROM events WHERE created_at < ?)`, cutoff,
		); err != nil {
			slog.Debug("history.Prune: vec cleanup skipped", "err", err)
		}
	}
	res, err := d.db.Exec(`DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history.Prune: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Entry is the embeddable text of one stored event.
type Entry struct {
	RowID int64
	Text  string
}

// Entries returns every event as title and body joined by a newline, oldest first.
func (d *DB) Entries() ([]Entry, error) {
	rows, err := d.db.Query(`SELECT rowid, title, body FROM events ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("history.Entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			title, body string
		)
		if err := rows.Scan(&e.RowID, &title, &body); err != nil {
			return nil, fmt.Errorf("history.Entries: %w", err)
		}
		e.Text = title + "\n" + body
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// Hit is an event returned by a search with its raw relevance.
// Higher scores are better; scales differ between FTSSearch and VectorSearch.
type Hit struct {
	models.Event
	Score float64
}

// FTSSearch ranks events by BM25 over title, body, kind and project.
// Each whitespace-separated term matches as a prefix; any term may match.
func (d *DB) FTSSearch(query string, limit int, kind models.EventKind) ([]Hit, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}

	rows, err := d.db.Query(`
		SELECT `+eventColumns+`, -fts.rank
		FROM events_fts fts
		JOIN events e ON e.rowid = fts.rowid
		WHERE fts.events_fts MATCH ?1 AND (?2 = '' OR e.kind = ?2)
		ORDER BY fts.rank
		LIMIT ?3`,
		strings.Join(terms, " OR "), string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history.FTSSearch: %w", err)
	}
	defer rows.Close()
	return scanHits(rows, "", func(score float64) float64 { return score })
}

// VectorSearch returns the nearest embeddings to query, scored as 1 - distance.
// The kind filter runs after the k-nearest lookup, so fewer than limit hits
// may come back. Nothing is returned before a vector table exists.
func (d *DB) VectorSearch(query []float32, limit int, kind models.EventKind) ([]Hit, error) {
	ok, err := d.HasVecTable()
	if err != nil || !ok {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT `+eventColumns+`, v.distance
		FROM events_vec v
		JOIN events e ON e.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		encodeVector(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history.VectorSearch: %w", err)
	}
	defer rows.Close()
	return scanHits(rows, kind, func(distance float64) float64 { return 1 - distance })
}

// ---------------------------------------------------------------------------
// Meta
// ---------------------------------------------------------------------------

// GetMeta returns the value for key, or ("", false, nil) if not set.
func (d *DB) GetMeta(key string) (string, bool, error) {
	var val string
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetMeta upserts a key-value pair in the meta table.
func (d *DB) SetMeta(key, value string) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value,
	)
	return err
}

// eventColumns is the projection scanEvent expects, aliased as e.
const eventColumns = "e.id, e.kind, e.title, e.body, e.project, e.created_at"

// scanEvent reads eventColumns followed by extra destinations.
// Unparsable timestamps come back zero.
func scanEvent(rows *sql.Rows, extra ...any) (models.Event, error) {
	var (
		e             models.Event
		kind, created string
	)
	dest := append([]any{&e.ID, &kind, &e.Title, &e.Body, &e.Project, &created}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return models.Event{}, err
	}
	e.Kind = models.EventKind(kind)
	e.CreatedAt, _ = time.Parse(timeLayout, created)
	return e, nil
}

// scanHits reads eventColumns plus one raw value per row, skipping events
// whose kind differs from a non-empty kind.
func scanHits(rows *sql.Rows, kind models.EventKind, score func(float64) float64) ([]Hit, error) {
	var hits []Hit
	for rows.Next() {
		var raw float64
		e, err := scanEvent(rows, &raw)
		if err != nil {
			return nil, err
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		hits = append(hits, Hit{Event: e, Score: score(raw)})
	}
	return hits, rows.Err()
}

// encodeVector packs v as little-endian float32s, the sqlite-vec blob format.
func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}
