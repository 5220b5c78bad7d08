// Package store holds the rows fetched for one query session.
//
// A Store has one writer (the poller bound to it) and any number of readers.
// Readers take a Snapshot, which never changes after it is returned: an
// Append publishes a new snapshot only after the whole batch is in place, so
// a reader observes either all of a batch or none of it.
package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"cwinsights/internal/model"
)

var ErrNotFound = errors.New("row not found")

var lastID atomic.Uint64

type Options struct {
	// MaxRows caps the store; rows past the cap are dropped and the
	// snapshot reports Truncated. 0 means unbounded.
	MaxRows int
}

type Store struct {
	id  uint64
	max int

	mu       sync.Mutex // serializes writers
	rows     []model.Row
	fields   []string
	fieldSet map[string]struct{}
	version  uint64
	dropped  uint64

	snap atomic.Pointer[Snapshot]
}

func New(opt Options) *Store {
	s := &Store{id: lastID.Add(1), max: opt.MaxRows, fieldSet: map[string]struct{}{}}
	s.snap.Store(&Snapshot{storeID: s.id})
	return s
}

func (s *Store) ID() uint64 { return s.id }

type AppendResult struct {
	Added   int
	Dropped int
	First   uint64 // sequence number of the first added row; valid when Added > 0
	Last    uint64
}

// Append assigns sequence numbers to recs in order and publishes them as one
// batch.
func (s *Store) Append(recs []model.Record) AppendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res AppendResult
	if len(recs) == 0 {
		return res
	}
	accept := len(recs)
	if s.max > 0 {
		room := s.max - len(s.rows)
		if room < 0 {
			room = 0
		}
		if accept > room {
			accept = room
		}
	}
	res.Dropped = len(recs) - accept
	s.dropped += uint64(res.Dropped)
	if accept > 0 {
		res.First = uint64(len(s.rows))
		for _, rec := range recs[:accept] {
			seq := uint64(len(s.rows))
			s.rows = append(s.rows, model.NewRow(seq, rec))
			for _, f := range rec {
				if _, ok := s.fieldSet[f.Name]; !ok {
					s.fieldSet[f.Name] = struct{}{}
					s.fields = append(s.fields, f.Name)
				}
			}
		}
		res.Added = accept
		res.Last = uint64(len(s.rows) - 1)
		s.version++
	}
	n, nf := len(s.rows), len(s.fields)
	s.snap.Store(&Snapshot{
		storeID: s.id,
		version: s.version,
		rows:    s.rows[:n:n],
		fields:  s.fields[:nf:nf],
		dropped: s.dropped,
	})
	return res
}

// Snapshot returns the latest published view without locking.
func (s *Store) Snapshot() Snapshot { return *s.snap.Load() }

func (s *Store) Get(seq uint64) (model.Row, error) { return s.Snapshot().Get(seq) }

func (s *Store) Len() int { return s.Snapshot().Len() }

// Snapshot is an immutable view of a store. The zero value is an empty view.
type Snapshot struct {
	storeID uint64
	version uint64
	rows    []model.Row
	fields  []string
	dropped uint64
}

func (v Snapshot) StoreID() uint64 { return v.storeID }

// Version increases with every batch that added rows.
func (v Snapshot) Version() uint64 { return v.version }

func (v Snapshot) Len() int { return len(v.rows) }

func (v Snapshot) At(i int) model.Row { return v.rows[i] }

// Rows returns the rows in sequence order. Callers must not modify it.
func (v Snapshot) Rows() []model.Row { return v.rows }

// Fields returns every field name seen so far, in first-seen order.
func (v Snapshot) Fields() []string { return v.fields }

func (v Snapshot) Truncated() bool { return v.dropped > 0 }

func (v Snapshot) Dropped() uint64 { return v.dropped }

func (v Snapshot) Get(seq uint64) (model.Row, error) {
	if seq >= uint64(len(v.rows)) {
		return model.Row{}, fmt.Errorf("seq %d of %d: %w", seq, len(v.rows), ErrNotFound)
	}
	return v.rows[seq], nil
}
