package repository_test

import (
	"crypto/sha1"
	"path/filepath"
	"testing"

	"github.com/NamanBalaji/tbs/internal/repository"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

func openRepo(t *testing.T) *repository.BboltRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache", "test.db")
	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	return repo
}

func TestNewBboltRepository_OpenError(t *testing.T) {
	dir := t.TempDir()
	_, err := repository.NewBboltRepository(dir)
	if err == nil {
		t.Errorf("Expected error when opening DB on directory path, got nil")
	}
}

func TestSaveFind(t *testing.T) {
	repo := openRepo(t)
	defer repo.Close()

	key := repository.WindowKey{Path: "/data/a.bin", Size: 100, ModTime: 42, PieceLength: 16, Phase: 3}
	hashes := []metainfo.Hash{sha1.Sum([]byte("one")), sha1.Sum([]byte("two"))}

	_, ok, err := repo.Find(key)
	if err != nil || ok {
		t.Fatalf("Find on empty cache = %v, %v", ok, err)
	}

	if err := repo.Save(key, hashes); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, ok, err := repo.Find(key)
	if err != nil || !ok {
		t.Fatalf("Find = %v, %v", ok, err)
	}
	if len(got) != 2 || got[0] != hashes[0] || got[1] != hashes[1] {
		t.Errorf("Find returned wrong hashes: %v", got)
	}

	other := key
	other.Phase = 0
	if _, ok, _ := repo.Find(other); ok {
		t.Error("expected miss for a different phase")
	}
}

func TestFindStaleRecord(t *testing.T) {
	repo := openRepo(t)
	defer repo.Close()

	key := repository.WindowKey{Path: "/data/a.bin", Size: 100, ModTime: 42, PieceLength: 16}
	if err := repo.Save(key, []metainfo.Hash{{1}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	changed := key
	changed.ModTime = 43
	if _, ok, err := repo.Find(changed); ok || err != nil {
		t.Errorf("expected miss after modification, got ok=%v err=%v", ok, err)
	}

	resized := key
	resized.Size = 101
	if _, ok, err := repo.Find(resized); ok || err != nil {
		t.Errorf("expected miss after resize, got ok=%v err=%v", ok, err)
	}
}

func TestSaveEmptyHashes(t *testing.T) {
	repo := openRepo(t)
	defer repo.Close()

	key := repository.WindowKey{Path: "/data/empty.bin", PieceLength: 16}
	if err := repo.Save(key, nil); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, ok, err := repo.Find(key)
	if err != nil || !ok || len(got) != 0 {
		t.Errorf("Find = %v, %v, %v", got, ok, err)
	}
}

func TestSaveEmptyPath(t *testing.T) {
	repo := openRepo(t)
	defer repo.Close()

	if err := repo.Save(repository.WindowKey{}, nil); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestCloseBehavior(t *testing.T) {
	repo := openRepo(t)

	if err := repo.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	key := repository.WindowKey{Path: "/x", PieceLength: 1}
	if err := repo.Save(key, nil); err == nil {
		t.Errorf("Expected error Save after Close, got nil")
	}
	if _, _, err := repo.Find(key); err == nil {
		t.Errorf("Expected error Find after Close, got nil")
	}
}
