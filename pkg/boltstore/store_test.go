package boltstore

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/world"
	"github.com/crystal-mush/gridadmin/pkg/world/worldtest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "world.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fixture(t *testing.T) *world.World {
	b := worldtest.New(t)
	b.Grid(1, 7)
	b.Grid(2, 7, 8)
	b.StaticGrid(3, 9)
	b.Rotor(1, 10, 2, 11)
	b.Gear(2, 20, 3, true)
	b.Cockpit(1, 30, 42)
	if err := b.W.AddObject(&world.Object{ID: 50, Name: "ore", Physics: &world.Physics{Linear: world.Vector3{X: 1}}}); err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	return b.W
}

func TestImportAndLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	if s.HasData() {
		t.Fatal("fresh store should be empty")
	}

	w := fixture(t)
	if err := s.ImportWorld(w); err != nil {
		t.Fatalf("ImportWorld: %v", err)
	}
	if !s.HasData() {
		t.Fatal("HasData should be true after import")
	}
	if s.SavedAt().IsZero() {
		t.Error("SavedAt not recorded")
	}

	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	loaded := s.World()
	if loaded == w {
		t.Fatal("LoadAll should build a fresh world")
	}

	g1, b1, o1 := w.Len()
	g2, b2, o2 := loaded.Len()
	if g1 != g2 || b1 != b2 || o1 != o2 {
		t.Fatalf("counts differ: %d/%d/%d vs %d/%d/%d", g1, b1, o1, g2, b2, o2)
	}

	cockpit := loaded.Block(30)
	if cockpit == nil || cockpit.Pilot != 42 || cockpit.Grid != 1 {
		t.Errorf("cockpit not restored: %+v", cockpit)
	}
	if o := loaded.Object(50); o == nil || o.Physics.Linear.X != 1 {
		t.Errorf("object not restored: %+v", o)
	}

	before := attach.Discover(w, w.Grid(1), attach.All).IDs()
	after := attach.Discover(loaded, loaded.Grid(1), attach.All).IDs()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("attachment set changed across persistence (-before +after):\n%s", diff)
	}
}

func TestIndexes(t *testing.T) {
	s := openTemp(t)
	if err := s.ImportWorld(fixture(t)); err != nil {
		t.Fatalf("ImportWorld: %v", err)
	}

	if g, ok := s.GridOfBlock(11); !ok || g != 2 {
		t.Errorf("GridOfBlock(11) = %d, %v; want 2, true", g, ok)
	}
	if _, ok := s.GridOfBlock(999); ok {
		t.Error("unknown block should not resolve")
	}
	if diff := cmp.Diff([]world.EntityID{1, 2}, s.GridsOwnedBy(7)); diff != "" {
		t.Errorf("GridsOwnedBy(7) (-want +got):\n%s", diff)
	}

	// Rewriting a grid replaces its index entries.
	g := s.World().Grid(2)
	g.SmallOwners = []world.PlayerID{8}
	if err := s.PutGrid(g); err != nil {
		t.Fatalf("PutGrid: %v", err)
	}
	if diff := cmp.Diff([]world.EntityID{1}, s.GridsOwnedBy(7)); diff != "" {
		t.Errorf("GridsOwnedBy(7) after update (-want +got):\n%s", diff)
	}

	if err := s.DeleteGrid(2); err != nil {
		t.Fatalf("DeleteGrid: %v", err)
	}
	if _, ok := s.GridOfBlock(11); ok {
		t.Error("deleted grid's blocks should leave the index")
	}
	if got := s.GridsOwnedBy(8); len(got) != 0 {
		t.Errorf("GridsOwnedBy(8) = %v, want none", got)
	}
}

func TestPutGridSkipsNilBlocks(t *testing.T) {
	s := openTemp(t)
	g := &world.Grid{ID: 5, Blocks: []*world.Block{nil, {ID: 6, Type: world.BlockThruster}}}
	if err := s.PutGrid(g); err != nil {
		t.Fatalf("PutGrid: %v", err)
	}
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if s.World().Block(6) == nil {
		t.Error("block 6 should survive")
	}
}

func TestBackup(t *testing.T) {
	s := openTemp(t)
	if err := s.ImportWorld(fixture(t)); err != nil {
		t.Fatalf("ImportWorld: %v", err)
	}
	path := filepath.Join(t.TempDir(), "backup.bolt")
	if err := s.Backup(path); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	cp, err := Open(path)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer cp.Close()
	if err := cp.LoadAll(); err != nil {
		t.Fatalf("LoadAll backup: %v", err)
	}
	if grids, _, _ := cp.World().Len(); grids != 3 {
		t.Errorf("backup grids = %d, want 3", grids)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	for _, id := range []world.EntityID{math.MinInt64, -1 << 33, -1, 0, 1, 1 << 40, math.MaxInt64} {
		if got := keyToID(idToKey(id)); got != id {
			t.Errorf("keyToID(idToKey(%d)) = %d", id, got)
		}
	}
}

func TestKeyOrdering(t *testing.T) {
	ids := []world.EntityID{math.MinInt64, -1 << 33, -1 << 32, -5, -1, 0, 1, 5, 1 << 32, 1 << 40, math.MaxInt64}
	for i := 1; i < len(ids); i++ {
		lo, hi := idToKey(ids[i-1]), idToKey(ids[i])
		if bytes.Compare(lo, hi) >= 0 {
			t.Errorf("key(%d) does not sort before key(%d)", ids[i-1], ids[i])
		}
	}
}

func TestLookupsOnClosedStore(t *testing.T) {
	s := openTemp(t)
	if err := s.ImportWorld(fixture(t)); err != nil {
		t.Fatalf("ImportWorld: %v", err)
	}
	s.Close()

	if s.HasData() {
		t.Error("HasData on a closed store should be false")
	}
	if _, ok := s.GridOfBlock(11); ok {
		t.Error("GridOfBlock on a closed store should fail")
	}
	if got := s.GridsOwnedBy(7); got != nil {
		t.Errorf("GridsOwnedBy on a closed store = %v", got)
	}
	if !s.SavedAt().IsZero() {
		t.Error("SavedAt on a closed store should be zero")
	}
}

func TestFailedImportKeepsCache(t *testing.T) {
	s := openTemp(t)
	first := fixture(t)
	if err := s.ImportWorld(first); err != nil {
		t.Fatalf("ImportWorld: %v", err)
	}
	s.Close()

	if err := s.ImportWorld(fixture(t)); err == nil {
		t.Fatal("import into a closed store should fail")
	}
	if s.World() != first {
		t.Error("cache changed although the import failed")
	}
}
