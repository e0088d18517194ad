package migrate

import (
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"

	"notathome.app/internal/db"
)

func TestRunnerRequiresDSN(t *testing.T) {
	if err := Up(""); err == nil {
		t.Fatal("Up with empty DSN should fail")
	}
	if err := Down(""); err == nil {
		t.Fatal("Down with empty DSN should fail")
	}
	if _, _, err := Version(""); err == nil {
		t.Fatal("Version with empty DSN should fail")
	}
}

// TestEmbeddedMigrationsWellFormed walks the embedded set the way
// golang-migrate will: sequential versions from 1, each with a non-empty up
// and a down.
func TestEmbeddedMigrationsWellFormed(t *testing.T) {
	d, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("iofs: %v", err)
	}
	defer d.Close()

	v, err := d.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if v != 1 {
		t.Fatalf("first version = %d, want 1", v)
	}

	last := v
	for {
		up, _, err := d.ReadUp(v)
		if err != nil {
			t.Fatalf("read up %d: %v", v, err)
		}
		body, _ := io.ReadAll(up)
		up.Close()
		if len(body) == 0 {
			t.Fatalf("up migration %d is empty", v)
		}

		down, _, err := d.ReadDown(v)
		if err != nil {
			t.Fatalf("read down %d: %v", v, err)
		}
		down.Close()

		last = v
		next, err := d.Next(v)
		if err != nil {
			break
		}
		v = next
	}
	if last != 2 {
		t.Fatalf("last version = %d, want 2", last)
	}
}

func TestSessionsMigrationKeepsActiveCodeUnique(t *testing.T) {
	d, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("iofs: %v", err)
	}
	defer d.Close()

	up, _, err := d.ReadUp(1)
	if err != nil {
		t.Fatalf("read up 1: %v", err)
	}
	defer up.Close()
	body, err := io.ReadAll(up)
	if err != nil {
		t.Fatal(err)
	}

	ddl := strings.ToLower(string(body))
	if !strings.Contains(ddl, "create unique index") || !strings.Contains(ddl, "where is_active") {
		t.Fatal("sessions schema must keep join codes unique among active sessions")
	}
}
