package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestConnectionManagerDSN(t *testing.T) {
	t.Run("Postgres", func(t *testing.T) {
		manager := NewConnectionManager(DatabaseConfig{
			Driver:   "postgres",
			Host:     "db.internal",
			Port:     5432,
			User:     "loader",
			Password: "secret",
			Name:     "warehouse",
			SSLMode:  "require",
		}, newTestLogger())

		dsn, err := manager.dsn()
		if err != nil {
			t.Fatal(err)
		}

		expected := "host=db.internal port=5432 user=loader password=secret dbname=warehouse sslmode=require"
		if dsn != expected {
			t.Fatalf("expected %q, got %q", expected, dsn)
		}
	})

	t.Run("MySQL", func(t *testing.T) {
		manager := NewConnectionManager(DatabaseConfig{
			Driver:   "mysql",
			Host:     "db.internal",
			Port:     3306,
			User:     "loader",
			Password: "secret",
			Name:     "warehouse",
		}, newTestLogger())

		dsn, err := manager.dsn()
		if err != nil {
			t.Fatal(err)
		}

		if !strings.Contains(dsn, "tcp(db.internal:3306)") {
			t.Fatalf("expected tcp address in DSN, got %q", dsn)
		}
		if !strings.Contains(dsn, "/warehouse") {
			t.Fatalf("expected database name in DSN, got %q", dsn)
		}
		if !strings.Contains(dsn, "parseTime=true") {
			t.Fatalf("expected parseTime in DSN, got %q", dsn)
		}
	})

	t.Run("Sqlite", func(t *testing.T) {
		manager := NewConnectionManager(DatabaseConfig{
			Driver: "sqlite",
			Path:   "/var/data/source.db",
		}, newTestLogger())

		dsn, err := manager.dsn()
		if err != nil {
			t.Fatal(err)
		}
		if dsn != "/var/data/source.db" {
			t.Fatalf("expected sqlite path as DSN, got %q", dsn)
		}
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		manager := NewConnectionManager(DatabaseConfig{Driver: "oracle"}, newTestLogger())

		if _, err := manager.dsn(); !errors.Is(err, ErrUnknownDriver) {
			t.Fatalf("expected ErrUnknownDriver, got %v", err)
		}
		if _, err := manager.driverName(); !errors.Is(err, ErrUnknownDriver) {
			t.Fatalf("expected ErrUnknownDriver, got %v", err)
		}
	})
}

func TestConnectionManagerDB(t *testing.T) {
	manager := NewConnectionManager(DatabaseConfig{Driver: "postgres"}, newTestLogger())

	if _, err := manager.DB(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectClose()
	manager.SetDB(db)

	if _, err := manager.DB(); err != nil {
		t.Fatalf("expected handle after SetDB, got %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.DB(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}

	// Close is safe to call again
	if err := manager.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestConnectionManagerInfo(t *testing.T) {
	t.Run("NetworkDriver", func(t *testing.T) {
		manager := NewConnectionManager(DatabaseConfig{
			Driver:   "postgres",
			Host:     "db.internal",
			Port:     5432,
			User:     "loader",
			Password: "secret",
			Name:     "warehouse",
		}, newTestLogger())

		info := manager.Info()
		if info["driver"] != "postgres" {
			t.Fatalf("expected driver postgres, got %s", info["driver"])
		}
		if info["host"] != "db.internal" {
			t.Fatalf("expected host db.internal, got %s", info["host"])
		}
		if info["connected"] != "false" {
			t.Fatalf("expected connected=false, got %s", info["connected"])
		}

		// Credentials never leak into status output
		for key, value := range info {
			if value == "secret" {
				t.Fatalf("info leaked password under key %s", key)
			}
		}
	})

	t.Run("Sqlite", func(t *testing.T) {
		manager := NewConnectionManager(DatabaseConfig{
			Driver: "sqlite",
			Path:   "/var/data/source.db",
		}, newTestLogger())

		info := manager.Info()
		if info["path"] != "/var/data/source.db" {
			t.Fatalf("expected sqlite path in info, got %s", info["path"])
		}
		if _, ok := info["host"]; ok {
			t.Fatal("sqlite info should not carry a host")
		}
	})
}
