package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"panofinder/embedding"
	"panofinder/types"
)

func openTestDB(t *testing.T) *CandidateStore {
	t.Helper()
	db, err := InitDatabase(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("InitDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCandidateStore(db)
}

func TestInitDatabaseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	for i := 0; i < 2; i++ {
		db, err := InitDatabase(path)
		if err != nil {
			t.Fatalf("InitDatabase #%d failed: %v", i, err)
		}
		db.Close()
	}
}

func TestInitDatabaseSchema(t *testing.T) {
	db, err := InitDatabase(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("InitDatabase failed: %v", err)
	}
	defer db.Close()

	want := map[string][]string{
		"candidates":      {"id", "cell_id", "lon", "lat", "alt", "heading", "fov", "image_path", "modified_at", "indexed_at"},
		"embedding_cache": {"key", "cell_id", "value", "updated_at"},
	}
	for table, cols := range want {
		rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			t.Fatalf("table info %s: %v", table, err)
		}
		have := map[string]bool{}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				t.Fatal(err)
			}
			have[name] = true
		}
		rows.Close()
		if len(have) != len(cols) {
			t.Errorf("%s has %d columns, want %d", table, len(have), len(cols))
		}
		for _, c := range cols {
			if !have[c] {
				t.Errorf("%s missing column %s", table, c)
			}
		}
	}
}

func TestCandidateStore(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)

	a := types.Candidate{ID: "b-id", CellID: "17/1/2", Position: orb.Point{13.4, 52.5}, Altitude: 34, Heading: 90, FOV: 65, ImagePath: "/data/a.jpg"}
	b := types.Candidate{ID: "a-id", CellID: "17/1/2", Position: orb.Point{13.5, 52.6}, ImagePath: "/data/b.jpg"}
	other := types.Candidate{ID: "c-id", CellID: "17/9/9", Position: orb.Point{0, 0}, ImagePath: "/data/c.jpg"}

	for _, c := range []types.Candidate{a, b, other} {
		if err := store.StoreCandidate(c, "2024-05-01T10:00:00Z", false); err != nil {
			t.Fatalf("StoreCandidate(%s) failed: %v", c.ID, err)
		}
	}

	got, err := store.ListCandidates(ctx, "17/1/2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListCandidates returned %d, want 2", len(got))
	}
	if got[0].ID != "a-id" || got[1].ID != "b-id" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].Position != a.Position || got[1].Heading != 90 || got[1].FOV != 65 {
		t.Errorf("round trip = %+v, want %+v", got[1], a)
	}

	exists, mod, err := store.CheckCandidateExists("/data/a.jpg")
	if err != nil || !exists || mod != "2024-05-01T10:00:00Z" {
		t.Errorf("CheckCandidateExists = %v, %q, %v", exists, mod, err)
	}
	if exists, _, _ := store.CheckCandidateExists("/data/nope.jpg"); exists {
		t.Error("unknown path reported as indexed")
	}

	// without force the existing row wins
	a.Heading = 180
	if err := store.StoreCandidate(a, "2024-06-01T10:00:00Z", false); err != nil {
		t.Fatal(err)
	}
	c, ok, err := store.GetCandidate(ctx, "b-id")
	if err != nil || !ok || c.Heading != 90 {
		t.Errorf("non-forced store overwrote row: %+v %v", c, err)
	}
	if err := store.StoreCandidate(a, "2024-06-01T10:00:00Z", true); err != nil {
		t.Fatal(err)
	}
	c, _, _ = store.GetCandidate(ctx, "b-id")
	if c.Heading != 180 {
		t.Errorf("forced store kept heading %v", c.Heading)
	}

	cells, err := store.ListCells(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cells["17/1/2"] != 2 || cells["17/9/9"] != 1 {
		t.Errorf("ListCells = %v", cells)
	}
}

func TestCacheStore(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)
	cache := embedding.NewCache(NewCacheStore(store.db))

	emb := embedding.Normalize([]float32{1, 2, 2})
	if err := cache.Set(ctx, "cell-1", "cand", 73, emb); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	_ = cache.Set(ctx, "cell-2", "cand", 73, emb)

	got, ok, err := cache.Get(ctx, "cell-1", "cand", 70)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	for i := range emb {
		if got[i] != emb[i] {
			t.Errorf("index %d: %v != %v", i, got[i], emb[i])
		}
	}

	entry, ok, err := cache.Entry(ctx, "cell-1", "cand", 70)
	if err != nil || !ok || time.Since(entry.Timestamp) > time.Minute {
		t.Errorf("Entry = %+v, %v, %v", entry, ok, err)
	}

	many, err := cache.GetMany(ctx, "cell-1", []string{"cand", "other"}, 70)
	if err != nil || len(many) != 1 {
		t.Errorf("GetMany = %v, %v", many, err)
	}

	if err := cache.ClearCell(ctx, "cell-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cache.Get(ctx, "cell-1", "cand", 70); ok {
		t.Error("entry survived ClearCell")
	}
	if _, ok, _ := cache.Get(ctx, "cell-2", "cand", 70); !ok {
		t.Error("ClearCell removed another cell")
	}

	stats, err := GetIndexStats(store.db, "")
	if err != nil {
		t.Fatal(err)
	}
	if stats.CacheEntries != 1 {
		t.Errorf("CacheEntries = %d, want 1", stats.CacheEntries)
	}

	if err := cache.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cache.Get(ctx, "cell-2", "cand", 70); ok {
		t.Error("entry survived ClearAll")
	}
}

func TestCacheStoreGetManyChunks(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)
	cs := NewCacheStore(store.db)

	keys := make([]string, 0, getManyChunk+20)
	for i := 0; i < getManyChunk+20; i++ {
		k := fmt.Sprintf("k%d", i)
		keys = append(keys, k)
		if i%2 == 0 {
			if err := cs.Set(ctx, embedding.Record{Key: k, CellID: "c", Value: []byte{0, 0, 128, 63}, UpdatedAt: time.Now()}); err != nil {
				t.Fatal(err)
			}
		}
	}

	got, err := cs.GetMany(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}
	if want := (getManyChunk + 20 + 1) / 2; len(got) != want {
		t.Errorf("GetMany returned %d, want %d", len(got), want)
	}
}
