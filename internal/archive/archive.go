// Package archive persists compressed vector tiles to an MBTiles
// archive on SQLite: schema setup, WAL/pragma tuning, metadata rows,
// TMS row-coordinate conversion, and one write transaction per batch
// of tiles.
package archive

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/valpere/tiledeck/internal"
	"github.com/valpere/tiledeck/internal/coord"
)

// Metadata is the MBTiles metadata table contents, using the
// conventional key set MBTiles readers expect bit-exact.
type Metadata struct {
	Name        string
	Description string
	Attribution string
	Version     string
	Type        string // "baselayer" or "overlay"
	Bounds      [4]float64 // west, south, east, north
	Center      [3]float64 // lon, lat, zoom
	MinZoom     int
	MaxZoom     int
	JSON        string // opaque upstream-provided per-layer statistics blob
}

func (m Metadata) toRows() map[string]string {
	return map[string]string{
		"name":        m.Name,
		"format":      "pbf",
		"description": m.Description,
		"attribution": m.Attribution,
		"version":     m.Version,
		"type":        m.Type,
		"bounds":      fmt.Sprintf("%g,%g,%g,%g", m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3]),
		"center":      fmt.Sprintf("%g,%g,%g", m.Center[0], m.Center[1], m.Center[2]),
		"minzoom":     fmt.Sprintf("%d", m.MinZoom),
		"maxzoom":     fmt.Sprintf("%d", m.MaxZoom),
		"json":        m.JSON,
	}
}

// BatchedTileWriter appends tiles within a single write transaction
// and either commits or rolls back as a unit.
type BatchedTileWriter interface {
	// Write appends one tile's compressed bytes at the given
	// coordinate, converted to the TMS row convention.
	Write(tile coord.Tile, gzippedData []byte) error
	// Commit durably applies every Write call made through this
	// writer and releases the transaction.
	Commit() error
	// Rollback discards every Write call made through this writer.
	Rollback() error
}

// Archive is the tile archive contract the pipeline writer consumes:
// schema setup, optional eager indexing, metadata persistence,
// transactional per-batch tile writers, and close-time maintenance.
type Archive interface {
	SetupSchema() error
	AddIndex() error
	SetMetadata(m Metadata) error
	// SetExtra stores one metadata row outside the standard MBTiles
	// key set, e.g. an embedded run summary for later inspection.
	SetExtra(key, value string) error
	NewBatchedTileWriter() (BatchedTileWriter, error)
	VacuumAnalyze() error
	Close() error
}

// mbtilesArchive is the SQLite-backed Archive implementation.
type mbtilesArchive struct {
	db           *sql.DB
	indexCreated bool
	deferIndex   bool
}

// Open opens (creating if necessary) an MBTiles archive at path.
// deferIndexCreation controls whether SetupSchema creates the tile
// index itself, before any writes (false), or leaves it to Close
// (true), per the pipeline's deferIndexCreation configuration option.
func Open(path string, deferIndexCreation bool) (Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeArchiveIO, "open mbtiles database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, internal.NewError(internal.ErrorCodeArchiveIO, fmt.Sprintf("set pragma %q", pragma), err)
		}
	}

	return &mbtilesArchive{db: db, deferIndex: deferIndexCreation}, nil
}

func (a *mbtilesArchive) SetupSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL
		);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "create mbtiles schema", err)
	}
	if !a.deferIndex {
		if err := a.AddIndex(); err != nil {
			return err
		}
	}
	return nil
}

func (a *mbtilesArchive) AddIndex() error {
	if a.indexCreated {
		return nil
	}
	const stmt = `CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row)`
	if _, err := a.db.Exec(stmt); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "create tile index", err)
	}
	a.indexCreated = true
	return nil
}

func (a *mbtilesArchive) SetMetadata(m Metadata) error {
	if _, err := a.db.Exec("DELETE FROM metadata"); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "clear metadata", err)
	}

	stmt, err := a.db.Prepare("INSERT INTO metadata (name, value) VALUES (?, ?)")
	if err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "prepare metadata insert", err)
	}
	defer stmt.Close()

	for key, value := range m.toRows() {
		if _, err := stmt.Exec(key, value); err != nil {
			return internal.NewError(internal.ErrorCodeArchiveIO, fmt.Sprintf("insert metadata %q", key), err)
		}
	}
	return nil
}

func (a *mbtilesArchive) SetExtra(key, value string) error {
	if _, err := a.db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", key, value); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, fmt.Sprintf("set metadata %q", key), err)
	}
	return nil
}

func (a *mbtilesArchive) NewBatchedTileWriter() (BatchedTileWriter, error) {
	tx, err := a.db.Begin()
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeArchiveIO, "begin batch transaction", err)
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return nil, internal.NewError(internal.ErrorCodeArchiveIO, "prepare tile insert", err)
	}

	return &batchWriter{tx: tx, stmt: stmt}, nil
}

func (a *mbtilesArchive) VacuumAnalyze() error {
	if _, err := a.db.Exec("VACUUM"); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "vacuum", err)
	}
	if _, err := a.db.Exec("ANALYZE"); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "analyze", err)
	}
	return nil
}

func (a *mbtilesArchive) Close() error {
	if !a.indexCreated {
		if err := a.AddIndex(); err != nil {
			a.db.Close()
			return err
		}
	}
	if err := a.db.Close(); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "close mbtiles database", err)
	}
	return nil
}

// ReadMetadata opens the archive read-only and loads its metadata
// table into a Metadata value, plus any rows outside the standard key
// set (e.g. an embedded run summary) keyed by their raw names.
func ReadMetadata(path string) (Metadata, map[string]string, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Metadata{}, nil, internal.NewError(internal.ErrorCodeArchiveIO, "open mbtiles database", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, nil, internal.NewError(internal.ErrorCodeArchiveIO, "read metadata table", err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, nil, internal.NewError(internal.ErrorCodeArchiveIO, "scan metadata row", err)
		}
		raw[name] = value
	}
	if err := rows.Err(); err != nil {
		return Metadata{}, nil, internal.NewError(internal.ErrorCodeArchiveIO, "iterate metadata rows", err)
	}

	m := Metadata{
		Name:        raw["name"],
		Description: raw["description"],
		Attribution: raw["attribution"],
		Version:     raw["version"],
		Type:        raw["type"],
		JSON:        raw["json"],
	}
	fmt.Sscanf(raw["bounds"], "%g,%g,%g,%g", &m.Bounds[0], &m.Bounds[1], &m.Bounds[2], &m.Bounds[3])
	fmt.Sscanf(raw["center"], "%g,%g,%g", &m.Center[0], &m.Center[1], &m.Center[2])
	fmt.Sscanf(raw["minzoom"], "%d", &m.MinZoom)
	fmt.Sscanf(raw["maxzoom"], "%d", &m.MaxZoom)

	standard := map[string]bool{
		"name": true, "format": true, "description": true, "attribution": true,
		"version": true, "type": true, "bounds": true, "center": true,
		"minzoom": true, "maxzoom": true, "json": true,
	}
	extra := make(map[string]string)
	for k, v := range raw {
		if !standard[k] {
			extra[k] = v
		}
	}
	return m, extra, nil
}

// batchWriter is the transactional scope for one TileBatch's writes.
type batchWriter struct {
	tx   *sql.Tx
	stmt *sql.Stmt
}

// Write stores gzippedData under the TMS row convention:
// y_tms = (2^z - 1) - y.
func (w *batchWriter) Write(tile coord.Tile, gzippedData []byte) error {
	z, x, yTMS := tile.TMS()
	if _, err := w.stmt.Exec(z, x, yTMS, gzippedData); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO,
			fmt.Sprintf("write tile %s", tile), err)
	}
	return nil
}

func (w *batchWriter) Commit() error {
	if err := w.stmt.Close(); err != nil {
		w.tx.Rollback()
		return internal.NewError(internal.ErrorCodeArchiveIO, "close prepared tile insert", err)
	}
	if err := w.tx.Commit(); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "commit batch transaction", err)
	}
	return nil
}

func (w *batchWriter) Rollback() error {
	w.stmt.Close()
	if err := w.tx.Rollback(); err != nil {
		return internal.NewError(internal.ErrorCodeArchiveIO, "rollback batch transaction", err)
	}
	return nil
}
