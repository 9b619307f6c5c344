package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketSubmissions = "submissions"
	bucketSlots       = "slots"
)

// Bolt keeps records in a single bbolt file. Submissions are keyed by
// sequence so iteration order is insertion order.
type Bolt struct {
	db *bolt.DB
}

func NewBolt(path string) (*Bolt, error) {
	if path == "" {
		path = "./enquirywitch.bolt"
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt store: failed to open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketSubmissions, bucketSlots} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt store: failed to initialize: %w", err)
	}
	return &Bolt{db: db}, nil
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func (s *Bolt) SaveSubmission(_ context.Context, sub Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("bolt store: encode submission: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSubmissions))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), data)
	})
}

func (s *Bolt) Submissions(_ context.Context, limit int) ([]Submission, error) {
	var out []Submission
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSubmissions)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var sub Submission
			if err := json.Unmarshal(v, &sub); err != nil {
				return fmt.Errorf("bolt store: decode submission: %w", err)
			}
			out = append(out, sub)
		}
		return nil
	})
	return out, err
}

func (s *Bolt) SaveSlot(_ context.Context, session, slot, hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSlots)).Put([]byte(slotKey(session, slot)), []byte(hash))
	})
}

func (s *Bolt) LoadSlot(_ context.Context, session, slot string) (string, error) {
	var hash []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSlots)).Get([]byte(slotKey(session, slot)))
		if v == nil {
			return ErrNotFound
		}
		hash = bytes.Clone(v)
		return nil
	})
	return string(hash), err
}

func (s *Bolt) Close() error {
	return s.db.Close()
}
