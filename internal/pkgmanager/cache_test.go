package pkgmanager

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheRecordAndLookup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	cache, err := OpenCache(dbPath)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer cache.Close()

	if _, hit, _ := cache.Lookup("github.com/user/repo", "v1.0.0"); hit {
		t.Fatalf("Lookup on empty cache reported a hit")
	}

	localDir := t.TempDir()
	if err := cache.Record("github.com/user/repo", "v1.0.0", localDir); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entry, hit, err := cache.Lookup("github.com/user/repo", "v1.0.0")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !hit {
		t.Fatalf("Lookup after Record reported no hit")
	}
	if entry.LocalPath != localDir {
		t.Errorf("LocalPath = %q, want %q", entry.LocalPath, localDir)
	}
}

func TestCacheRecordUpserts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	cache, err := OpenCache(dbPath)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer cache.Close()

	first := t.TempDir()
	second := t.TempDir()
	if err := cache.Record("github.com/user/repo", "HEAD", first); err != nil {
		t.Fatalf("Record first: %v", err)
	}
	if err := cache.Record("github.com/user/repo", "HEAD", second); err != nil {
		t.Fatalf("Record second: %v", err)
	}

	entry, hit, _ := cache.Lookup("github.com/user/repo", "HEAD")
	if !hit {
		t.Fatalf("expected a hit after two Records")
	}
	if entry.LocalPath != second {
		t.Errorf("LocalPath = %q, want the most recent path %q", entry.LocalPath, second)
	}
}

func TestOpenCacheCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	dbPath := filepath.Join(dir, "cache.db")

	cache, err := OpenCache(dbPath)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer cache.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("parent dir was not created: %v", err)
	}
}
