package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/gridadmin/pkg/archive"
	"github.com/crystal-mush/gridadmin/pkg/boltstore"
	"github.com/crystal-mush/gridadmin/pkg/config"
	"github.com/crystal-mush/gridadmin/pkg/logging"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

const testWorld = `
grids:
  - id: 1
    name: Miner
    owners: [7]
    dampeners: false
    velocity: {linear: [0, 0, 5]}
    blocks:
      - {id: 10, type: stator, rotor: 11}
      - {id: 13, type: cockpit, ship_control: true, pilot: 42}
      - {id: 16, type: landing_gear, gear: {attached: 99, locked: true}}
  - id: 2
    owners: [8]
    blocks:
      - {id: 11, type: rotor}
      - {id: 15, type: thruster}
objects:
  - id: 50
    name: ore
    velocity: {linear: [1, 0, 0]}
`

func testEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	worldPath := filepath.Join(dir, "world.yaml")
	require.NoError(t, os.WriteFile(worldPath, []byte(testWorld), 0o644))

	cfg := config.Default()
	cfg.WorldFile = worldPath
	cfg.BoltPath = filepath.Join(dir, "world.bolt")
	cfg.AuditDB = filepath.Join(dir, "audit.db")
	cfg.ArchiveDir = filepath.Join(dir, "backups")
	cfg.Actor = 3

	e := &env{cfg: cfg, log: logging.Nop()}
	t.Cleanup(e.close)
	return e
}

// reopen loads the bolt store from disk after closing the env's handles.
func reopen(t *testing.T, e *env) *world.World {
	t.Helper()
	e.close()
	s, err := boltstore.Open(e.cfg.BoltPath)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.LoadAll())
	return s.World()
}

func TestImportSeedsStore(t *testing.T) {
	e := testEnv(t)
	require.NoError(t, cmdImport(e, nil))

	w := reopen(t, e)
	grids, blocks, objects := w.Len()
	require.Equal(t, 2, grids)
	require.Equal(t, 5, blocks)
	require.Equal(t, 1, objects)
}

func TestOpenStoreSeedsFromWorldFile(t *testing.T) {
	e := testEnv(t)
	store, err := e.openStore()
	require.NoError(t, err)
	require.True(t, store.HasData())

	e.cfg.WorldFile = ""
	e.close()
	require.NoError(t, os.Remove(e.cfg.BoltPath))
	_, err = e.openStore()
	require.Error(t, err, "empty store with no world file")
}

func TestStopPersists(t *testing.T) {
	e := testEnv(t)
	require.NoError(t, cmdStop(e, []string{"2"}))

	w := reopen(t, e)
	require.False(t, w.Grid(1).Physics.Moving())
	require.True(t, w.Grid(1).DampenersEnabled)

	e = testEnv(t)
	require.NoError(t, cmdStop(e, []string{"50"}))
	require.False(t, reopen(t, e).Object(50).Physics.Moving())
}

func TestEjectAndPowerPersist(t *testing.T) {
	e := testEnv(t)
	require.NoError(t, cmdEject(e, []string{"1"}))
	require.NoError(t, cmdPower(e, []string{"15", "off"}))

	w := reopen(t, e)
	require.Equal(t, world.PlayerID(0), w.Block(13).Pilot)
	require.False(t, w.Block(15).Enabled)

	e = testEnv(t)
	require.Error(t, cmdPower(e, []string{"15", "sideways"}))
	require.Error(t, cmdPower(e, []string{"1", "on"}), "grid is not a block")
}

func TestCommandsRejectBadIDs(t *testing.T) {
	e := testEnv(t)
	require.Error(t, cmdAttached(e, nil))
	require.Error(t, cmdAttached(e, []string{"-mode", "sideways", "1"}))
	require.Error(t, cmdOwners(e, []string{"abc"}))
	require.Error(t, cmdStop(e, []string{"-4"}))
	require.Error(t, cmdStop(e, []string{"404"}))
	require.NoError(t, cmdAttached(e, []string{"-mode", "static", "1"}))
}

func TestValidateFix(t *testing.T) {
	e := testEnv(t)
	require.Error(t, cmdValidate(e, nil), "the dangling gear lock is an error")
	require.NoError(t, cmdValidate(e, []string{"-fix"}))

	w := reopen(t, e)
	require.False(t, w.Block(16).GearLocked)
	require.Equal(t, world.NoEntity, w.Block(16).AttachedEntity)
}

func TestAuditRecordsCLIActions(t *testing.T) {
	e := testEnv(t)
	require.NoError(t, cmdStop(e, []string{"1"}))

	a, err := e.openAudit()
	require.NoError(t, err)
	entries, err := a.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "stop", entries[0].Action)
	require.Equal(t, world.PlayerID(3), entries[0].Actor)
}

func TestArchiveAndRestore(t *testing.T) {
	e := testEnv(t)
	e.cfg.ArchiveRetain = 1
	require.NoError(t, cmdArchive(e, nil))

	infos, err := archive.ListArchives(e.cfg.ArchiveDir)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, 2, infos[0].Grids)

	require.NoError(t, cmdStop(e, []string{"1"}))
	e.close()
	require.NoError(t, cmdRestore(e, []string{infos[0].Path}))

	w := reopen(t, e)
	require.True(t, w.Grid(1).Physics.Moving(), "restore brings back the archived velocity")
}

func TestTokenNeedsSecret(t *testing.T) {
	e := testEnv(t)
	require.Error(t, cmdToken(e, []string{"5"}))
	e.cfg.JWTSecret = "test-secret"
	require.NoError(t, cmdToken(e, []string{"5"}))
	require.Error(t, cmdToken(e, []string{"five"}))
}

func TestExisting(t *testing.T) {
	require.Empty(t, existing(""))
	require.Empty(t, existing(filepath.Join(t.TempDir(), "nope")))
	f := filepath.Join(t.TempDir(), "yes")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	require.Equal(t, f, existing(f))
}
