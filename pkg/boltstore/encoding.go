package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// encodeGrid serializes a Grid, blocks included, using gob.
func encodeGrid(g *world.Grid) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGrid deserializes bytes back into a Grid.
func decodeGrid(data []byte) (*world.Grid, error) {
	var g world.Grid
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// encodeObject serializes an Object to bytes using gob.
func encodeObject(o *world.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeObject deserializes bytes back into an Object.
func decodeObject(data []byte) (*world.Object, error) {
	var o world.Object
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&o); err != nil {
		return nil, err
	}
	return &o, nil
}
