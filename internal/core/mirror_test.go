package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/tablesync/internal/storage"
	"github.com/google/go-cmp/cmp"
)

func TestMirrorStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ms := NewMirrorStore(store)

	ds := Dataset{
		ID: "20240101_120000_sales.csv",
		Schema: Schema{
			Columns:  []string{"region", "amount", "closed", "note"},
			DTypes:   map[string]string{"region": "VARCHAR", "amount": "DOUBLE", "closed": "BOOLEAN", "note": "VARCHAR"},
			RowCount: 2,
		},
		Rows: []Row{
			{"region": "north", "amount": 12.5, "closed": true, "note": nil},
			{"region": "south", "amount": float64(7), "closed": false, "note": "late"},
		},
		Message: "File uploaded and processed successfully",
	}
	m := NewMirror(ds)
	m.Endpoint = "https://store.test/api/data/u/x"
	m.SavedAt = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := ms.Save(ctx, "s1", m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := NewMirrorStore(store).Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("Load reported no dataset after Save")
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestMirrorStore_LoadAbsent(t *testing.T) {
	ms := NewMirrorStore(storage.NewMemoryStore())

	m, ok, err := ms.Load(context.Background(), "brand-new")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok || m != nil {
		t.Errorf("Load = (%v, %v), want (nil, false)", m, ok)
	}
	if _, ok := ms.Current("brand-new"); ok {
		t.Error("Current reported a mirror for an empty session")
	}
}

func TestMirrorStore_KeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ms := NewMirrorStore(store)

	if err := ms.SetCurrent(ctx, "a", NewMirror(peopleDataset())); err != nil {
		t.Fatal(err)
	}
	if err := ms.SetCurrent(ctx, "b", NewMirror(lettersDataset())); err != nil {
		t.Fatal(err)
	}

	keys, err := store.Keys(ctx, "table-")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"table-a", "table-b"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	a, _ := ms.Current("a")
	if a.Dataset.ID != "ds-people" {
		t.Errorf("session a dataset = %q, want ds-people", a.Dataset.ID)
	}
}

func TestMirrorStore_CurrentIsACopy(t *testing.T) {
	ms := NewMirrorStore(storage.NewMemoryStore())
	if err := ms.SetCurrent(context.Background(), "s1", NewMirror(peopleDataset())); err != nil {
		t.Fatal(err)
	}

	snap, _ := ms.Current("s1")
	snap.Dataset.Rows[0]["name"] = "changed"
	snap.Keys[0] = "changed"

	again, _ := ms.Current("s1")
	if again.Dataset.Rows[0]["name"] != "ann" {
		t.Errorf("mutating a snapshot leaked into the store: name = %v", again.Dataset.Rows[0]["name"])
	}
	if again.Keys[0] == "changed" {
		t.Error("mutating snapshot keys leaked into the store")
	}
}

func TestMirrorStore_ApplyDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ms := NewMirrorStore(store)
	if err := ms.SetCurrent(ctx, "s1", NewMirror(peopleDataset())); err != nil {
		t.Fatal(err)
	}

	err := ms.Apply("s1", func(m *Mirror) error {
		m.Dataset.Rows[1]["age"] = "99"
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	cur, _ := ms.Current("s1")
	if cur.Dataset.Rows[1]["age"] != "99" {
		t.Errorf("in-memory age = %v, want 99", cur.Dataset.Rows[1]["age"])
	}

	durable, _, err := NewMirrorStore(store).Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if durable.Dataset.Rows[1]["age"] != "30" {
		t.Errorf("durable age = %v, want 30", durable.Dataset.Rows[1]["age"])
	}
}

func TestMirrorStore_ApplyAndSaveFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	ms := NewMirrorStore(store)
	if err := ms.SetCurrent(ctx, "s1", NewMirror(peopleDataset())); err != nil {
		t.Fatal(err)
	}
	before, _ := ms.Current("s1")

	store.failPuts.Store(true)
	_, err := ms.ApplyAndSave(ctx, "s1", func(m *Mirror) error {
		m.Dataset.Rows[0]["name"] = "zed"
		return nil
	})
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("ApplyAndSave error = %v, want errDiskFull", err)
	}
	if got := MapError(err).Code; got != "STO001" {
		t.Errorf("MapError code = %q, want STO001", got)
	}

	after, _ := ms.Current("s1")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("failed save changed memory (-before +after):\n%s", diff)
	}
}

func TestMirrorStore_VersionAdvances(t *testing.T) {
	ctx := context.Background()
	ms := NewMirrorStore(storage.NewMemoryStore())
	if err := ms.SetCurrent(ctx, "s1", NewMirror(peopleDataset())); err != nil {
		t.Fatal(err)
	}
	first, _ := ms.Current("s1")

	m, err := ms.ApplyAndSave(ctx, "s1", func(*Mirror) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != first.Version+1 {
		t.Errorf("Version = %d, want %d", m.Version, first.Version+1)
	}

	// Replacing the dataset does not rewind the counter.
	if err := ms.SetCurrent(ctx, "s1", NewMirror(lettersDataset())); err != nil {
		t.Fatal(err)
	}
	cur, _ := ms.Current("s1")
	if cur.Version <= m.Version {
		t.Errorf("Version after SetCurrent = %d, want > %d", cur.Version, m.Version)
	}
}

func TestMirrorStore_PersistEndpointSkipsUnsavedRows(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ms := NewMirrorStore(store)
	if err := ms.SetCurrent(ctx, "s1", NewMirror(peopleDataset())); err != nil {
		t.Fatal(err)
	}
	_ = ms.Apply("s1", func(m *Mirror) error {
		m.Dataset.Rows[0]["name"] = "pending"
		return nil
	})

	if err := ms.PersistEndpoint(ctx, "s1", "https://store.test/api/data/u/ds-people"); err != nil {
		t.Fatalf("PersistEndpoint: %v", err)
	}

	durable, _, _ := NewMirrorStore(store).Load(ctx, "s1")
	if durable.Endpoint != "https://store.test/api/data/u/ds-people" {
		t.Errorf("durable Endpoint = %q", durable.Endpoint)
	}
	if durable.Dataset.Rows[0]["name"] != "ann" {
		t.Errorf("durable name = %v, want ann", durable.Dataset.Rows[0]["name"])
	}

	cur, _ := ms.Current("s1")
	if cur.Endpoint == "" || cur.Dataset.Rows[0]["name"] != "pending" {
		t.Errorf("in-memory mirror = %+v, want endpoint set and pending row kept", cur)
	}
}

func TestMirrorStore_LoadBackfillsKeys(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	legacy := []byte(`{"dataset":{"dataset_id":"old","schema":{"columns":["n"],"dtypes":{"n":"VARCHAR"},"row_count":2},"data":[{"n":"a"},{"n":"b"}]}}`)
	if err := store.Put(ctx, "table-s1", legacy); err != nil {
		t.Fatal(err)
	}

	m, ok, err := NewMirrorStore(store).Load(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Load = (%v, %v)", ok, err)
	}
	if len(m.Keys) != 2 || m.Keys[0] == "" || m.Keys[0] == m.Keys[1] {
		t.Errorf("Keys = %v, want two distinct keys", m.Keys)
	}
}

func TestMirror_ReplaceRowsCarriesKeys(t *testing.T) {
	m := NewMirror(lettersDataset())
	old := append([]RowKey(nil), m.Keys...)

	m.ReplaceRows([]Row{{"n": "a"}, {"n": "B"}, {"n": "c"}, {"n": "d"}})

	for i := range old {
		if m.Keys[i] != old[i] {
			t.Errorf("Keys[%d] = %s, want %s", i, m.Keys[i], old[i])
		}
	}
	if len(m.Keys) != 4 || m.Keys[3] == "" {
		t.Errorf("new row key missing: %v", m.Keys)
	}
}

func TestMirror_ReplaceRowsFollowsContent(t *testing.T) {
	// Locally "b" was removed by a delete the store never applied.
	m := NewMirror(lettersDataset())
	keyA, keyC := m.Keys[0], m.Keys[2]
	m.removeAt(1)
	m.Dataset.Rows[0]["n"] = "A"

	m.ReplaceRows([]Row{{"n": "A"}, {"n": "b"}, {"n": "c"}})

	if m.Keys[0] != keyA {
		t.Errorf("Keys[0] = %s, want key of a", m.Keys[0])
	}
	if m.Keys[2] != keyC {
		t.Errorf("Keys[2] = %s, want key of c", m.Keys[2])
	}
	if m.Keys[1] == "" || m.Keys[1] == keyA || m.Keys[1] == keyC {
		t.Errorf("Keys[1] = %q, want a fresh key for b", m.Keys[1])
	}
	if got := m.IndexOf(keyC); got != 2 {
		t.Errorf("IndexOf(c) = %d, want 2", got)
	}
}

func TestMirror_ReplaceRowsPairsChangedRows(t *testing.T) {
	m := NewMirror(peopleDataset())
	old := append([]RowKey(nil), m.Keys...)

	// The store normalized the edited value.
	m.ReplaceRows([]Row{
		{"name": "ann", "age": "25"},
		{"name": "bob", "age": float64(31)},
		{"name": "cy", "age": "41"},
	})

	if diff := cmp.Diff(old, m.Keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestMirrorStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ms := NewMirrorStore(store)

	for _, id := range []string{"kept", "orphan"} {
		if err := ms.SetCurrent(ctx, id, NewMirror(lettersDataset())); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Put(ctx, "sessions", []byte("{}")); err != nil {
		t.Fatal(err)
	}

	removed, err := ms.Prune(ctx, func(id string) bool { return id == "kept" })
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if diff := cmp.Diff([]string{"orphan"}, removed); diff != "" {
		t.Errorf("removed mismatch:\n%s", diff)
	}

	keys, _ := store.Keys(ctx, "")
	if diff := cmp.Diff([]string{"sessions", "table-kept"}, keys); diff != "" {
		t.Errorf("keys after prune (-want +got):\n%s", diff)
	}
	if _, ok := ms.Current("orphan"); ok {
		t.Error("pruned mirror still current")
	}
}
