// Package journal keeps a persistent record of privileged operations.
// Each silent install and privilege probe the bridge performs is appended so
// operators can see what happened after the fact; the operations themselves
// stay stateless and never read the journal.

package journal

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

const entriesBucket = "entries"

// Operation names recorded in the journal.
const (
	OpSilentInstall = "silent_install"
	OpProbe         = "probe"
)

// Entry records one privileged operation.
type Entry struct {
	ID          uint64    `json:"id"`
	Time        time.Time `json:"time"`
	Op          string    `json:"op"`
	Path        string    `json:"path,omitempty"`
	Success     bool      `json:"success"`
	ExitCode    int       `json:"exit_code"`
	Diagnostics string    `json:"diagnostics,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
}

// Journal is a bbolt-backed append log of entries.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database
func Open(dbPath string) (*Journal, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entriesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Append stores e and assigns its ID. A zero Time is set to now.
func (j *Journal) Append(e *Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))

		id, _ := b.NextSequence()
		e.ID = id

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(limit int) ([]Entry, error) {
	entries := []Entry{}

	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(entriesBucket)).Cursor()

		for k, v := c.Last(); k != nil && len(entries) < limit; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})

	return entries, err
}

// Count returns the number of stored entries
func (j *Journal) Count() (int, error) {
	var count int
	err := j.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(entriesBucket)).Stats().KeyN
		return nil
	})
	return count, err
}

// Prune deletes the oldest entries so that at most max remain. It returns
// the number of entries removed.
func (j *Journal) Prune(max int) (int, error) {
	removed := 0
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		excess := b.Stats().KeyN - max
		if excess <= 0 {
			return nil
		}

		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// itob converts uint64 to big-endian bytes for ordered keys
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
