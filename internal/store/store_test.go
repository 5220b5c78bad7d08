package store

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwinsights/internal/model"
)

func recs(n int, prefix string) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = model.Record{{Name: "@message", Value: fmt.Sprintf("%s-%d", prefix, i)}}
	}
	return out
}

func TestAppendAssignsGapFreeSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		s := New(Options{})
		want := 0
		for b := 0; b < 1+rng.Intn(10); b++ {
			n := rng.Intn(7) // empty batches included
			res := s.Append(recs(n, "b"))
			require.Equal(t, n, res.Added)
			if n > 0 {
				assert.Equal(t, uint64(want), res.First)
				assert.Equal(t, uint64(want+n-1), res.Last)
			}
			want += n
		}
		snap := s.Snapshot()
		require.Equal(t, want, snap.Len())
		for i, r := range snap.Rows() {
			assert.Equal(t, uint64(i), r.Seq)
		}
	}
}

func TestAppendPreservesArrivalOrder(t *testing.T) {
	s := New(Options{})
	s.Append([]model.Record{{{Name: "@timestamp", Value: "2025-03-02"}}, {{Name: "@timestamp", Value: "2025-03-01"}}})
	snap := s.Snapshot()
	v0, _ := snap.At(0).Get("@timestamp")
	v1, _ := snap.At(1).Get("@timestamp")
	assert.Equal(t, "2025-03-02", v0)
	assert.Equal(t, "2025-03-01", v1)
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := New(Options{})
	s.Append(recs(3, "a"))
	before := s.Snapshot()
	s.Append(recs(2, "b"))
	assert.Equal(t, 3, before.Len())
	assert.Equal(t, 5, s.Len())
	assert.Less(t, before.Version(), s.Snapshot().Version())
}

func TestEmptyAppendKeepsVersion(t *testing.T) {
	s := New(Options{})
	s.Append(recs(1, "a"))
	v := s.Snapshot().Version()
	s.Append(nil)
	assert.Equal(t, v, s.Snapshot().Version())
}

func TestGetNotFound(t *testing.T) {
	s := New(Options{})
	s.Append(recs(2, "a"))
	r, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.Seq)

	_, err = s.Get(2)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = Snapshot{}.Get(0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFieldsFirstSeenOrder(t *testing.T) {
	s := New(Options{})
	s.Append([]model.Record{
		{{Name: "@timestamp"}, {Name: "@message"}},
		{{Name: "level"}, {Name: "@timestamp"}},
	})
	assert.Equal(t, []string{"@timestamp", "@message", "level"}, s.Snapshot().Fields())
}

func TestMaxRowsTruncates(t *testing.T) {
	s := New(Options{MaxRows: 4})
	res := s.Append(recs(3, "a"))
	assert.Equal(t, 3, res.Added)
	res = s.Append(recs(3, "b"))
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 2, res.Dropped)
	res = s.Append(recs(1, "c"))
	assert.Equal(t, 0, res.Added)

	snap := s.Snapshot()
	assert.Equal(t, 4, snap.Len())
	assert.True(t, snap.Truncated())
	assert.Equal(t, uint64(3), snap.Dropped())

	// the earliest rows are kept; later arrivals are the ones dropped
	var msgs []string
	for _, r := range snap.Rows() {
		v, _ := r.Get("@message")
		msgs = append(msgs, v)
	}
	assert.Equal(t, []string{"a-0", "a-1", "a-2", "b-0"}, msgs)
}

func TestStoresHaveDistinctIDs(t *testing.T) {
	a, b := New(Options{}), New(Options{})
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.ID(), a.Snapshot().StoreID())
}

// Readers racing a writer must only ever see whole batches.
func TestSnapshotSeesWholeBatches(t *testing.T) {
	const batch = 5
	s := New(Options{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Append(recs(batch, "x"))
		}
	}()
	for i := 0; i < 2000; i++ {
		snap := s.Snapshot()
		require.Zero(t, snap.Len()%batch, "torn batch: len=%d", snap.Len())
		if n := snap.Len(); n > 0 {
			require.Equal(t, uint64(n-1), snap.At(n-1).Seq)
		}
	}
	wg.Wait()
	assert.Equal(t, 200*batch, s.Len())
}
