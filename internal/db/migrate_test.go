package db

import (
	"testing"
	"testing/fstest"
)

func TestUpMigrationsOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_b.up.sql":   {Data: []byte("SELECT 2")},
		"migrations/001_a.up.sql":   {Data: []byte("SELECT 1")},
		"migrations/001_a.down.sql": {Data: []byte("SELECT 0")},
		"migrations/README":         {Data: []byte("notes")},
	}

	files, err := upMigrations(fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 || files[0] != "001_a.up.sql" || files[1] != "002_b.up.sql" {
		t.Errorf("unexpected files: %v", files)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := upMigrations(migrations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) == 0 || files[0] != "001_audit_log.up.sql" {
		t.Errorf("unexpected embedded migrations: %v", files)
	}
}
