package pkgmanager

import (
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// CacheDBPath is where the resolution cache lives, per SPEC_FULL.md §3: a
// small SQLite database recording what `Get` has already resolved, so a
// repeated `noxy get` of a package/version whose recorded local path still
// exists doesn't re-invoke git.
const CacheDBPath = NoxyLibsDir + "/cache.db"

// CacheEntry is one resolved package: the import path, the version string
// passed to Get (a tag, branch, or "HEAD"), the commit git actually
// checked out, the local path it was cloned to, and when that happened.
type CacheEntry struct {
	Package     string
	Version     string
	Commit      string
	LocalPath   string
	ResolvedAt  time.Time
}

// Cache wraps the modernc.org/sqlite-backed resolution database.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if necessary) the cache database at path,
// using the pure-Go modernc.org/sqlite driver so the package manager
// carries no cgo dependency.
func OpenCache(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS packages (
	package     TEXT NOT NULL,
	version     TEXT NOT NULL,
	commit_hash TEXT NOT NULL,
	local_path  TEXT NOT NULL,
	resolved_at TEXT NOT NULL,
	PRIMARY KEY (package, version)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Lookup returns the cached resolution for pkg@version, if any.
func (c *Cache) Lookup(pkg, version string) (*CacheEntry, bool, error) {
	row := c.db.QueryRow(
		`SELECT package, version, commit_hash, local_path, resolved_at
		 FROM packages WHERE package = ? AND version = ?`,
		pkg, version,
	)
	var e CacheEntry
	var resolvedAt string
	switch err := row.Scan(&e.Package, &e.Version, &e.Commit, &e.LocalPath, &resolvedAt); err {
	case nil:
		e.ResolvedAt, _ = time.Parse(time.RFC3339, resolvedAt)
		return &e, true, nil
	case sql.ErrNoRows:
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Record upserts the resolution of pkg@version to localPath, called after
// Get successfully clones/checks out a package. The commit is read from
// localPath with `git rev-parse HEAD` and stored as "unknown" when that
// fails.
func (c *Cache) Record(pkg, version, localPath string) error {
	commit, err := resolvedCommit(localPath)
	if err != nil {
		commit = "unknown"
	}
	_, err = c.db.Exec(
		`INSERT INTO packages (package, version, commit_hash, local_path, resolved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(package, version) DO UPDATE SET
		   commit_hash = excluded.commit_hash,
		   local_path = excluded.local_path,
		   resolved_at = excluded.resolved_at`,
		pkg, version, commit, localPath, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func resolvedCommit(dir string) (string, error) {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
