package sqlite

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVerifyIntegrityHealthy(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "healthy.sqlite")

	db, err := Open(dbPath, DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT);"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	db.Close()

	issues, err := VerifyIntegrity(dbPath, "quick")
	if err != nil {
		t.Fatalf("verification failed with system error: %v", err)
	}
	if issues != nil {
		t.Fatalf("expected healthy database, got issues: %v", issues)
	}
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "corruptible.sqlite")

	db, err := Open(dbPath, DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	// Create enough rows to span several pages, so there is something to corrupt.
	if _, err := db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT);"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	payload := strings.Repeat("A", 100)
	for i := 0; i < 100; i++ {
		if _, err := db.Exec("INSERT INTO t (data) VALUES (?);", payload); err != nil {
			t.Fatalf("failed to insert row %d: %v", i, err)
		}
	}
	// Checkpoint so the rows land in the main file, not the WAL.
	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		t.Fatalf("failed to checkpoint: %v", err)
	}
	db.Close()

	issues, err := VerifyIntegrity(dbPath, "quick")
	if err != nil {
		t.Fatalf("initial verification failed with system error: %v", err)
	}
	if issues != nil {
		t.Fatalf("initial verification failed: %v", issues)
	}

	// Overwrite 100 bytes at offset 4096 (usually the second page).
	f, err := os.OpenFile(dbPath, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("failed to open file for corruption: %v", err)
	}
	corruptData := make([]byte, 100)
	rand.Read(corruptData)
	_, err = f.WriteAt(corruptData, 4096)
	f.Close()
	if err != nil {
		t.Fatalf("failed to write corrupt data: %v", err)
	}

	// Full mode gives deterministic detection of page-level corruption.
	issues, err = VerifyIntegrity(dbPath, "full")
	if err != nil {
		t.Fatalf("verification after corruption failed with system error: %v", err)
	}
	if issues == nil {
		t.Error("verification passed on a corrupted database")
	} else {
		t.Logf("detected expected corruption issues: %v", issues)
	}
}
