package boltstore

import (
	"encoding/binary"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta    = []byte("meta")
	bucketGrids   = []byte("grids")
	bucketBlocks  = []byte("blocks")
	bucketObjects = []byte("objects")
	bucketOwners  = []byte("owners")
)

var allBuckets = [][]byte{bucketMeta, bucketGrids, bucketBlocks, bucketObjects, bucketOwners}

// Meta key constants.
var (
	keyVersion = []byte("version")
	keySavedAt = []byte("savedat")
)

// schemaVersion is bumped whenever the gob layout of a stored grid changes.
const schemaVersion = 2

// idToKey converts an EntityID to an 8-byte big-endian key. Flipping the
// sign bit makes byte order match numeric order over the whole int64 range.
func idToKey(id world.EntityID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id)^1<<63)
	return buf
}

// keyToID converts an 8-byte big-endian key back to an EntityID.
func keyToID(b []byte) world.EntityID {
	return world.EntityID(binary.BigEndian.Uint64(b) ^ 1<<63)
}

// ownerKey is the owners-index key: player id followed by grid id.
func ownerKey(p world.PlayerID, grid world.EntityID) []byte {
	buf := make([]byte, 16)
	copy(buf, idToKey(world.EntityID(p)))
	copy(buf[8:], idToKey(grid))
	return buf
}

// intToKey converts an int64 to an 8-byte big-endian key.
func intToKey(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int64.
func keyToInt(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
