// Package scancache keeps per-bundle stylesheet scans between runs so the
// cross-asset registry can be built without decoding every asset again.
package scancache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/amazon-ion/ion-go/ion"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"fmskin/patch"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	path    TEXT PRIMARY KEY,
	size    INTEGER NOT NULL,
	mtime   INTEGER NOT NULL,
	indexes BLOB NOT NULL
);`

// Fingerprint identifies bundle file state. Any change of size or
// modification time invalidates cached scan.
type Fingerprint struct {
	Path  string
	Size  int64
	MTime int64
}

// Stat builds fingerprint for bundle at path.
func Stat(path string) (Fingerprint, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Fingerprint{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Path: abs, Size: info.Size(), MTime: info.ModTime().UnixNano()}, nil
}

type record struct {
	Indexes []patch.Index `ion:"indexes"`
}

// Cache is a sqlite backed scan store. Safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// Open opens (creating when necessary) cache database at path. Database with
// a different schema version is reset.
func Open(path string, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open scan cache: %w", err)
	}
	c := &Cache{conn: conn, log: log.Named("scancache")}
	if err := c.prepare(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) prepare() error {
	var version int64
	err := sqlitex.Execute(c.conn, `PRAGMA user_version`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt64(0)
			return nil
		}})
	if err != nil {
		return fmt.Errorf("read scan cache version: %w", err)
	}
	if version != schemaVersion {
		if version != 0 {
			c.log.Info("Resetting scan cache", zap.Int64("version", version), zap.Int("expected", schemaVersion))
		}
		if err := sqlitex.ExecuteScript(c.conn, `DROP TABLE IF EXISTS scans;`, nil); err != nil {
			return fmt.Errorf("reset scan cache: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(c.conn, schema, nil); err != nil {
		return fmt.Errorf("create scan cache schema: %w", err)
	}
	if err := sqlitex.ExecuteScript(c.conn, fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion), nil); err != nil {
		return fmt.Errorf("set scan cache version: %w", err)
	}
	return nil
}

// Lookup returns cached scan when fingerprint matches stored one.
func (c *Cache) Lookup(fp Fingerprint) ([]patch.Index, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		data  []byte
		found bool
	)
	err := sqlitex.Execute(c.conn, `SELECT indexes FROM scans WHERE path = ? AND size = ? AND mtime = ?`,
		&sqlitex.ExecOptions{
			Args: []any{fp.Path, fp.Size, fp.MTime},
			ResultFunc: func(stmt *sqlite.Stmt) (err error) {
				found = true
				data, err = io.ReadAll(stmt.ColumnReader(0))
				return err
			}})
	if err != nil {
		return nil, false, fmt.Errorf("query scan cache: %w", err)
	}
	if !found {
		c.log.Debug("Scan cache miss", zap.String("path", fp.Path))
		return nil, false, nil
	}

	var rec record
	if err := ion.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decode cached scan for %s: %w", fp.Path, err)
	}
	c.log.Debug("Scan cache hit", zap.String("path", fp.Path), zap.Int("assets", len(rec.Indexes)))
	return rec.Indexes, true, nil
}

// Store saves scan replacing whatever was cached for the same path.
func (c *Cache) Store(fp Fingerprint, indexes []patch.Index) error {
	data, err := ion.MarshalBinary(&record{Indexes: indexes})
	if err != nil {
		return fmt.Errorf("encode scan for %s: %w", fp.Path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err = sqlitex.Execute(c.conn, `INSERT OR REPLACE INTO scans (path, size, mtime, indexes) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{fp.Path, fp.Size, fp.MTime, data}})
	if err != nil {
		return fmt.Errorf("store scan for %s: %w", fp.Path, err)
	}
	return nil
}

// Forget drops cached scan for path.
func (c *Cache) Forget(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := sqlitex.Execute(c.conn, `DELETE FROM scans WHERE path = ?`,
		&sqlitex.ExecOptions{Args: []any{path}}); err != nil {
		return fmt.Errorf("forget scan for %s: %w", path, err)
	}
	return nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
