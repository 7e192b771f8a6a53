package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string
	Path   string
	DSN    string
}

type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

// Open connects to SQLite at cfg.Path or, for the postgres driver, to
// cfg.DSN through pgx, and creates the schema.
func Open(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		db, err = sql.Open("sqlite", cfg.Path)
	case DriverPostgres:
		db, err = sql.Open("pgx", strings.TrimSpace(cfg.DSN))
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		} {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if err := s.migrate(); err != nil {
		return err
	}

	var cleanLines []string
	for _, line := range strings.Split(GetSchema(), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "--") && trimmed != "" {
			cleanLines = append(cleanLines, line)
		}
	}

	for _, stmt := range strings.Split(strings.Join(cleanLines, "\n"), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	_, _ = s.db.Exec(s.rebind(`INSERT INTO schema_version (version) VALUES (?) ON CONFLICT (version) DO NOTHING`), GetSchemaVersion())
	return nil
}

// migrate discards what an older schema version stored differently. Version
// 1 keyed graphs by name and cached edge counts with a column for the lone
// edge; census entries are rebuilt by the next scan.
func (s *Store) migrate() error {
	var version sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		// fresh database
		return nil
	}
	if !version.Valid || version.Int64 >= SchemaVersion {
		return nil
	}
	if version.Int64 < 2 {
		if _, err := s.db.Exec(`DROP TABLE IF EXISTS graphs`); err != nil {
			return fmt.Errorf("migrate graphs table: %w", err)
		}
		if _, err := s.db.Exec(`DELETE FROM count_results WHERE task = 'edge'`); err != nil {
			return fmt.Errorf("migrate cached edge counts: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetCount(ctx context.Context, key string) (*CountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := &CountRecord{}
	var created int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT cache_key, task, size, nodes, edges, output, created_at
		FROM count_results WHERE cache_key = ?
	`), key).Scan(&rec.Key, &rec.Task, &rec.Size, &rec.Nodes, &rec.Edges, &rec.Output, &created)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get count: %w", err)
	}
	rec.CreatedAt = time.Unix(created, 0).UTC()
	return rec, nil
}

func (s *Store) PutCount(ctx context.Context, rec *CountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO count_results (cache_key, task, size, nodes, edges, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key) DO NOTHING
	`), rec.Key, rec.Task, rec.Size, rec.Nodes, rec.Edges, rec.Output, created.Unix())
	if err != nil {
		return fmt.Errorf("put count: %w", err)
	}
	return nil
}

func (s *Store) UpsertGraph(ctx context.Context, g *GraphRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO graphs (name, path, content_hash, encoding, status, error_message, run_id, size, nodes, edges, gdm, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			name = excluded.name,
			content_hash = excluded.content_hash,
			encoding = excluded.encoding,
			status = excluded.status,
			error_message = excluded.error_message,
			run_id = excluded.run_id,
			size = excluded.size,
			nodes = excluded.nodes,
			edges = excluded.edges,
			gdm = excluded.gdm,
			updated_at = excluded.updated_at
	`), g.Name, g.Path, g.ContentHash, g.Encoding, string(g.Status), nullString(g.ErrorMessage),
		g.RunID, g.Size, g.Nodes, g.Edges, nullString(g.GDM), now.Unix())
	if err != nil {
		return fmt.Errorf("upsert graph: %w", err)
	}
	g.UpdatedAt = time.Unix(now.Unix(), 0).UTC()
	return nil
}

// UpdateGraphStatus records a status without touching the stored GDM, creating
// the entry when it does not exist yet.
func (s *Store) UpdateGraphStatus(ctx context.Context, name, path string, status GraphStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO graphs (name, path, status, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`), name, path, string(status), nullString(errMsg), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("update graph status: %w", err)
	}
	return nil
}

const graphColumns = `name, path, content_hash, encoding, status, error_message, run_id, size, nodes, edges, gdm, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGraph(row rowScanner, withGDM bool) (*GraphRecord, error) {
	g := &GraphRecord{}
	var (
		hash, encoding, errMsg, runID, gdm sql.NullString
		size, nodes, edges                 sql.NullInt64
		updated                            int64
		status                             string
	)
	if err := row.Scan(&g.Name, &g.Path, &hash, &encoding, &status, &errMsg, &runID,
		&size, &nodes, &edges, &gdm, &updated); err != nil {
		return nil, err
	}
	g.ContentHash = hash.String
	g.Encoding = encoding.String
	g.Status = GraphStatus(status)
	g.ErrorMessage = errMsg.String
	g.RunID = runID.String
	g.Size = int(size.Int64)
	g.Nodes = int(nodes.Int64)
	g.Edges = int(edges.Int64)
	if withGDM {
		g.GDM = gdm.String
	}
	g.UpdatedAt = time.Unix(updated, 0).UTC()
	return g, nil
}

// GraphsByName returns the census entries carrying name, ordered by path.
// Names are unique within one census root but not across roots.
func (s *Store) GraphsByName(ctx context.Context, name string) ([]*GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+graphColumns+` FROM graphs WHERE name = ? ORDER BY path`), name)
	if err != nil {
		return nil, fmt.Errorf("get graphs by name: %w", err)
	}
	defer rows.Close()

	var out []*GraphRecord
	for rows.Next() {
		g, err := scanGraph(rows, true)
		if err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetGraphByPath(ctx context.Context, path string) (*GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+graphColumns+` FROM graphs WHERE path = ?`), path)
	g, err := scanGraph(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get graph by path: %w", err)
	}
	return g, nil
}

// ListGraphs returns census entries without their GDM payload, optionally
// filtered by status, ordered by name and path.
func (s *Store) ListGraphs(ctx context.Context, status GraphStatus) ([]*GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + graphColumns + ` FROM graphs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY name, path`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	var out []*GraphRecord
	for rows.Next() {
		g, err := scanGraph(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) DeleteGraphByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM graphs WHERE path = ?`), path); err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM count_results`).Scan(&stats.CachedCounts); err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM graphs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("graph stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.Graphs += n
		switch GraphStatus(status) {
		case StatusDone:
			stats.Done = n
		case StatusFailed:
			stats.Failed = n
		case StatusSkipped:
			stats.Skipped = n
		case StatusPending:
			stats.Pending = n
		}
	}
	return stats, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
