package biokg

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var nodeBucket = []byte("nodes")

// SnapshotStore persists the native pre-serialization form of a processor's
// nodes in a boltdb file. The snapshot lets assembly re-run over a
// processor's contribution without re-invoking the (possibly network bound)
// extraction. Only the assembler ever reads these files back.
//
// Every contribution is stored, keyed by normalized identifier plus a
// sequence number, so duplicate contributions for the same entity survive in
// insertion order and re-assembly from a snapshot merges exactly like the
// live extraction did.
type SnapshotStore struct {
	Db *bolt.DB
}

// CreateSnapshot opens (truncating any previous content) a snapshot file
// for writing.
func CreateSnapshot(filename string) (*SnapshotStore, error) {
	s, err := openSnapshotFile(filename)
	if err != nil {
		return nil, err
	}
	err = s.Db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(nodeBucket) != nil {
			if err := tx.DeleteBucket(nodeBucket); err != nil {
				return errors.Wrap(err, "clearing node bucket")
			}
		}
		_, err := tx.CreateBucket(nodeBucket)
		return errors.Wrap(err, "creating node bucket")
	})
	if err != nil {
		s.Db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSnapshot opens an existing snapshot file for reading.
func OpenSnapshot(filename string) (*SnapshotStore, error) {
	s, err := openSnapshotFile(filename)
	if err != nil {
		return nil, err
	}
	err = s.Db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(nodeBucket) == nil {
			return errors.Errorf("'%v' is not a node snapshot", filename)
		}
		return nil
	})
	if err != nil {
		s.Db.Close()
		return nil, err
	}
	return s, nil
}

func openSnapshotFile(filename string) (*SnapshotStore, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	return &SnapshotStore{Db: db}, nil
}

// WriteNodes stores the nodes. Nothing is replaced: each node gets a fresh
// sequence-suffixed key, so writing the same identifier twice keeps both
// contributions.
func (s *SnapshotStore) WriteNodes(nodes []Node) error {
	return s.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodeBucket)
		for _, n := range nodes {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(n); err != nil {
				return errors.Wrapf(err, "encoding node %v", n)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return errors.Wrap(err, "getting sequence")
			}
			if err := b.Put(snapshotKey(n.Key(), seq), buf.Bytes()); err != nil {
				return errors.Wrapf(err, "storing node %v", n)
			}
		}
		return nil
	})
}

// snapshotKey builds "<normalized id>\x00<big-endian seq>". The NUL
// separator keeps keys for one identifier contiguous and ordered by
// insertion regardless of how later identifiers extend the prefix.
func snapshotKey(key string, seq uint64) []byte {
	k := make([]byte, 0, len(key)+9)
	k = append(k, key...)
	k = append(k, 0)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

// ReadNodes returns every stored node, grouped by normalized identifier
// with each identifier's contributions in the order they were written.
func (s *SnapshotStore) ReadNodes() ([]Node, error) {
	var nodes []Node
	err := s.Db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(nodeBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var n Node
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&n); err != nil {
				return errors.Wrapf(err, "decoding node at key %s", k)
			}
			nodes = append(nodes, n)
		}
		return nil
	})
	return nodes, err
}

// Close syncs and closes the underlying boltdb.
func (s *SnapshotStore) Close() error {
	if err := s.Db.Sync(); err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return s.Db.Close()
}
