package profile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/netwatch-hq/netwatch/pkg/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "profiles.db"), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCreateGetByNameAndSetActive(t *testing.T) {
	db := openTestDB(t)
	store := db.Profiles()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Router.Host = "192.168.1.1"

	p := &Profile{Name: "home", ListenAddr: "0.0.0.0:8090", Config: cfg}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("expected Create to assign an ID")
	}

	got, err := store.GetByName(ctx, "home")
	if err != nil {
		t.Fatalf("getByName: %v", err)
	}
	if got.Config.Router.Host != "192.168.1.1" {
		t.Errorf("expected round-tripped config, got %+v", got.Config.Router)
	}

	if err := store.SetActive(ctx, p.ID); err != nil {
		t.Fatalf("setActive: %v", err)
	}

	active, err := store.GetActive(ctx)
	if err != nil {
		t.Fatalf("getActive: %v", err)
	}
	if active.Name != "home" {
		t.Errorf("expected home to be active, got %s", active.Name)
	}
}

func TestSetActiveDeactivatesOthers(t *testing.T) {
	db := openTestDB(t)
	store := db.Profiles()
	ctx := context.Background()

	a := &Profile{Name: "a", ListenAddr: ":8090", Config: config.Default()}
	b := &Profile{Name: "b", ListenAddr: ":8091", Config: config.Default()}
	if err := store.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, b); err != nil {
		t.Fatal(err)
	}

	if err := store.SetActive(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.SetActive(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var activeCount int
	for _, p := range list {
		if p.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active profile, got %d", activeCount)
	}
}

func TestGetByNameNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Profiles().GetByName(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteUnknownProfile(t *testing.T) {
	db := openTestDB(t)
	err := db.Profiles().Delete(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
