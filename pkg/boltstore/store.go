package boltstore

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	bbolt "go.etcd.io/bbolt"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Store wraps a bbolt database and an in-memory world for ACID persistence.
type Store struct {
	bolt  *bbolt.DB
	cache *world.World
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{
		bolt:  db,
		cache: world.NewWorld(),
	}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// World returns the in-memory world cache.
func (s *Store) World() *world.World {
	return s.cache
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// storable returns a copy of g without nil block slots, which gob rejects.
func storable(g *world.Grid) *world.Grid {
	cp := *g
	cp.Blocks = g.GetBlocks(nil)
	return &cp
}

// putGrid writes g, its block index and its owner index inside tx.
func putGrid(tx *bbolt.Tx, g *world.Grid) error {
	if err := deleteGrid(tx, g.ID); err != nil {
		return err
	}
	data, err := encodeGrid(storable(g))
	if err != nil {
		return fmt.Errorf("encode grid %d: %w", g.ID, err)
	}
	gk := idToKey(g.ID)
	if err := tx.Bucket(bucketGrids).Put(gk, data); err != nil {
		return err
	}
	blocks := tx.Bucket(bucketBlocks)
	for _, b := range g.GetBlocks(nil) {
		if err := blocks.Put(idToKey(b.ID), gk); err != nil {
			return err
		}
	}
	owners := tx.Bucket(bucketOwners)
	for _, p := range g.Owners() {
		if err := owners.Put(ownerKey(p, g.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

// deleteGrid removes a stored grid and its index entries inside tx.
func deleteGrid(tx *bbolt.Tx, id world.EntityID) error {
	gk := idToKey(id)
	data := tx.Bucket(bucketGrids).Get(gk)
	if data == nil {
		return nil
	}
	old, err := decodeGrid(data)
	if err != nil {
		return fmt.Errorf("decode grid %d: %w", id, err)
	}
	blocks := tx.Bucket(bucketBlocks)
	for _, b := range old.Blocks {
		if err := blocks.Delete(idToKey(b.ID)); err != nil {
			return err
		}
	}
	owners := tx.Bucket(bucketOwners)
	for _, p := range old.SmallOwners {
		if err := owners.Delete(ownerKey(p, id)); err != nil {
			return err
		}
	}
	return tx.Bucket(bucketGrids).Delete(gk)
}

// PutGrid persists a single grid, blocks included (write-through).
func (s *Store) PutGrid(g *world.Grid) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		return putGrid(tx, g)
	})
	if err != nil {
		return fmt.Errorf("boltstore: put grid %d: %w", g.ID, err)
	}
	return nil
}

// PutGrids persists multiple grids in a single bbolt transaction.
func (s *Store) PutGrids(grids ...*world.Grid) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		for _, g := range grids {
			if g == nil {
				continue
			}
			if err := putGrid(tx, g); err != nil {
				return fmt.Errorf("boltstore: put grid %d: %w", g.ID, err)
			}
		}
		return nil
	})
}

// DeleteGrid removes a grid and its index entries from bbolt.
func (s *Store) DeleteGrid(id world.EntityID) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return deleteGrid(tx, id)
	})
}

// PutObject persists a free-floating object.
func (s *Store) PutObject(o *world.Object) error {
	data, err := encodeObject(o)
	if err != nil {
		return fmt.Errorf("boltstore: encode object %d: %w", o.ID, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketObjects).Put(idToKey(o.ID), data)
	})
}

// PutMeta persists the schema version and save time.
func (s *Store) PutMeta() error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if err := b.Put(keyVersion, intToKey(schemaVersion)); err != nil {
			return err
		}
		return b.Put(keySavedAt, intToKey(time.Now().Unix()))
	})
}

// SavedAt returns when the snapshot was last imported, or the zero time.
func (s *Store) SavedAt() time.Time {
	var at time.Time
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keySavedAt); v != nil {
			at = time.Unix(keyToInt(v), 0)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("boltstore: read save time")
	}
	return at
}

// ImportWorld replaces the stored snapshot with w, batching 500 grids per
// transaction, and makes w the cache once every write succeeded. The import
// is not atomic: a failure part way leaves a partial snapshot on disk and the
// previous cache in place, and the caller should import again.
func (s *Store) ImportWorld(w *world.World) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: reset buckets: %w", err)
	}

	grids := w.GetGrids(nil)
	for start := 0; start < len(grids); start += 500 {
		end := min(start+500, len(grids))
		if err := s.PutGrids(grids[start:end]...); err != nil {
			return err
		}
	}
	objects := w.Objects()
	err = s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for _, o := range objects {
			data, err := encodeObject(o)
			if err != nil {
				return fmt.Errorf("encode object %d: %w", o.ID, err)
			}
			if err := b.Put(idToKey(o.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: import objects: %w", err)
	}
	if err := s.PutMeta(); err != nil {
		return fmt.Errorf("boltstore: import meta: %w", err)
	}
	s.cache = w

	_, blocks, _ := w.Len()
	log.Info().Int("grids", len(grids)).Int("blocks", blocks).Int("objects", len(objects)).Msg("boltstore: imported world")
	return nil
}

// LoadAll reads the entire bbolt database into a fresh in-memory world.
func (s *Store) LoadAll() error {
	w := world.NewWorld()

	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyVersion); v != nil && keyToInt(v) != schemaVersion {
			return fmt.Errorf("unsupported schema version %d", keyToInt(v))
		}
		err := tx.Bucket(bucketGrids).ForEach(func(k, v []byte) error {
			g, err := decodeGrid(v)
			if err != nil {
				return fmt.Errorf("decode grid %d: %w", keyToID(k), err)
			}
			return w.AddGrid(g)
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			o, err := decodeObject(v)
			if err != nil {
				return fmt.Errorf("decode object %d: %w", keyToID(k), err)
			}
			return w.AddObject(o)
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load: %w", err)
	}

	s.cache = w
	grids, blocks, objects := w.Len()
	log.Info().Int("grids", grids).Int("blocks", blocks).Int("objects", objects).Msg("boltstore: loaded world from bolt")
	return nil
}

// GridOfBlock returns the grid a stored block belongs to.
func (s *Store) GridOfBlock(block world.EntityID) (world.EntityID, bool) {
	var grid world.EntityID
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketBlocks).Get(idToKey(block)); v != nil {
			grid = keyToID(v)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("block", int64(block)).Msg("boltstore: block index lookup")
		return world.NoEntity, false
	}
	return grid, grid != world.NoEntity
}

// GridsOwnedBy returns the stored grids listing p as a small owner, in id order.
func (s *Store) GridsOwnedBy(p world.PlayerID) []world.EntityID {
	var out []world.EntityID
	prefix := idToKey(world.EntityID(p))
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketOwners).Cursor()
		for k, _ := c.Seek(prefix); k != nil && len(k) == 16 && string(k[:8]) == string(prefix); k, _ = c.Next() {
			out = append(out, keyToID(k[8:]))
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("player", int64(p)).Msg("boltstore: owner index lookup")
		return nil
	}
	return out
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Info().Str("path", path).Msg("boltstore: backup written")
		return nil
	})
}

// HasData returns true if the bbolt database contains any grids.
func (s *Store) HasData() bool {
	hasData := false
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketGrids).Stats().KeyN > 0 {
			hasData = true
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("boltstore: check for data")
		return false
	}
	return hasData
}
