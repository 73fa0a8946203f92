package claims

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// SQLiteHost stores every world's regions in one SQLite database.
type SQLiteHost struct {
	db *sql.DB
}

// OpenSQLiteHost opens (or creates) the database at path and registers the
// given worlds.
func OpenSQLiteHost(path string, worlds []string) (*SQLiteHost, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	h := &SQLiteHost{db: db}
	for _, w := range worlds {
		if err := h.AddWorld(w); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return h, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worlds (
			name TEXT PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS regions (
			world    TEXT NOT NULL,
			id       TEXT NOT NULL,
			parent   TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 0,
			min_x    REAL NOT NULL,
			min_z    REAL NOT NULL,
			max_x    REAL NOT NULL,
			max_z    REAL NOT NULL,
			geometry TEXT NOT NULL,
			owners   TEXT NOT NULL,
			members  TEXT NOT NULL,
			flags    TEXT NOT NULL,
			PRIMARY KEY (world, id)
		);`,
		`CREATE INDEX IF NOT EXISTS regions_bounds ON regions(world, min_x, max_x, min_z, max_z);`,
		`CREATE INDEX IF NOT EXISTS regions_parent ON regions(world, parent);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (h *SQLiteHost) Close() error {
	return h.db.Close()
}

// AddWorld registers a world name.
func (h *SQLiteHost) AddWorld(name string) error {
	if name == "" {
		return fmt.Errorf("empty world name")
	}
	if _, err := h.db.Exec(`INSERT OR IGNORE INTO worlds(name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("add world %s: %w", name, err)
	}
	return nil
}

// World returns the named world or an InvalidWorldError.
func (h *SQLiteHost) World(name string) (WorldStore, error) {
	var found string
	err := h.db.QueryRow(`SELECT name FROM worlds WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &InvalidWorldError{World: name}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup world %s: %w", name, err)
	}
	return &SQLiteWorld{db: h.db, name: found}, nil
}

// Worlds returns the registered world names in sorted order.
func (h *SQLiteHost) Worlds() []string {
	rows, err := h.db.Query(`SELECT name FROM worlds ORDER BY name`)
	if err != nil {
		log.Printf("[STORE] listing worlds: %v", err)
		return nil
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			log.Printf("[STORE] listing worlds: %v", err)
			return out
		}
		out = append(out, n)
	}
	return out
}

// SQLiteWorld is one world inside a SQLiteHost.
type SQLiteWorld struct {
	db   *sql.DB
	name string
}

const regionColumns = `id, parent, priority, geometry, owners, members, flags`

func (w *SQLiteWorld) Name() string { return w.name }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegion(s rowScanner) (*Region, error) {
	var (
		r                               Region
		geometry, owners, members, flag string
	)
	if err := s.Scan(&r.ID, &r.Parent, &r.Priority, &geometry, &owners, &members, &flag); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(geometry), &r.Geometry); err != nil {
		return nil, fmt.Errorf("region %s geometry: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(owners), &r.Owners); err != nil {
		return nil, fmt.Errorf("region %s owners: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(members), &r.Members); err != nil {
		return nil, fmt.Errorf("region %s members: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(flag), &r.Flags); err != nil {
		return nil, fmt.Errorf("region %s flags: %w", r.ID, err)
	}
	return &r, nil
}

func (w *SQLiteWorld) query(where string, args ...any) []*Region {
	q := `SELECT ` + regionColumns + ` FROM regions WHERE world = ?`
	if where != "" {
		q += ` AND ` + where
	}
	q += ` ORDER BY id`

	rows, err := w.db.Query(q, append([]any{w.name}, args...)...)
	if err != nil {
		log.Printf("[STORE] query %s: %v", w.name, err)
		return nil
	}
	defer rows.Close()

	var out []*Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			log.Printf("[STORE] scan %s: %v", w.name, err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[STORE] query %s: %v", w.name, err)
	}
	return out
}

func (w *SQLiteWorld) Regions() []*Region {
	return w.query("")
}

func (w *SQLiteWorld) Region(id string) (*Region, bool) {
	row := w.db.QueryRow(`SELECT `+regionColumns+` FROM regions WHERE world = ? AND id = ?`, w.name, id)
	r, err := scanRegion(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[STORE] load %s/%s: %v", w.name, id, err)
		}
		return nil, false
	}
	return r, true
}

// Overlapping narrows candidates by bounding box in SQL, then compares cells.
func (w *SQLiteWorld) Overlapping(r *Region) []*Region {
	if r == nil || len(r.Geometry) == 0 {
		return nil
	}
	b := r.Bound()
	candidates := w.query(`id != ? AND min_x <= ? AND max_x >= ? AND min_z <= ? AND max_z >= ?`,
		r.ID, b.Max[0], b.Min[0], b.Max[1], b.Min[1])

	cells := Rasterize(r.Geometry)
	var out []*Region
	for _, c := range candidates {
		if cells.Intersects(Rasterize(c.Geometry)) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *SQLiteWorld) IsManagedClaim(r *Region) bool {
	return IsManagedClaim(r)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertRegion(e execer, world string, r *Region) error {
	geometry, err := json.Marshal(r.Geometry)
	if err != nil {
		return fmt.Errorf("marshal geometry: %w", err)
	}
	owners, err := json.Marshal(r.Owners)
	if err != nil {
		return fmt.Errorf("marshal owners: %w", err)
	}
	members, err := json.Marshal(r.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}
	flags := r.Flags
	if flags == nil {
		flags = Flags{}
	}
	flagJSON, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}

	b := r.Bound()
	_, err = e.Exec(`INSERT INTO regions
		(world, id, parent, priority, min_x, min_z, max_x, max_z, geometry, owners, members, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(world, id) DO UPDATE SET
			parent = excluded.parent,
			priority = excluded.priority,
			min_x = excluded.min_x, min_z = excluded.min_z,
			max_x = excluded.max_x, max_z = excluded.max_z,
			geometry = excluded.geometry,
			owners = excluded.owners,
			members = excluded.members,
			flags = excluded.flags`,
		world, r.ID, r.Parent, r.Priority, b.Min[0], b.Min[1], b.Max[0], b.Max[1],
		string(geometry), string(owners), string(members), string(flagJSON))
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", world, r.ID, err)
	}
	return nil
}

// PutRegion creates or replaces a region after checking its parent chain.
func (w *SQLiteWorld) PutRegion(r *Region) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("region id is required")
	}
	if err := CheckParent(w, r.ID, r.Parent); err != nil {
		return err
	}
	return upsertRegion(w.db, w.name, r)
}

// RemoveRegion deletes a region by id.
func (w *SQLiteWorld) RemoveRegion(id string) error {
	res, err := w.db.Exec(`DELETE FROM regions WHERE world = ? AND id = ?`, w.name, id)
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", w.name, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("removing %s: %w", id, ErrRegionNotFound)
	}
	return nil
}

// CommitMerge applies a merge in one transaction.
func (w *SQLiteWorld) CommitMerge(merged *Region, absorbed []string) (err error) {
	if merged == nil || merged.ID == "" {
		return fmt.Errorf("merged region id is required")
	}
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = upsertRegion(tx, w.name, merged); err != nil {
		return err
	}
	for _, id := range absorbed {
		if id == merged.ID {
			continue
		}
		res, execErr := tx.Exec(`DELETE FROM regions WHERE world = ? AND id = ?`, w.name, id)
		if execErr != nil {
			return fmt.Errorf("remove %s/%s: %w", w.name, id, execErr)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("absorbing %s: %w", id, ErrRegionNotFound)
		}
		if _, execErr = tx.Exec(`UPDATE regions SET parent = ? WHERE world = ? AND parent = ?`,
			merged.ID, w.name, id); execErr != nil {
			return fmt.Errorf("reparent children of %s: %w", id, execErr)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}
