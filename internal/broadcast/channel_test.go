package broadcast

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLatest(t *testing.T) {
	t.Run("uses given capacity", func(t *testing.T) {
		ch := NewLatest[int](2)
		assert.Equal(t, 2, ch.Cap())
	})

	t.Run("falls back to default capacity", func(t *testing.T) {
		ch := NewLatest[int](0)
		assert.Equal(t, DefaultCapacity, ch.Cap())
	})
}

func TestLatest_Coalescing(t *testing.T) {
	ch := NewLatest[string](4)

	require.True(t, ch.TrySend("s1"))
	require.True(t, ch.TrySend("s2"))
	require.True(t, ch.TrySend("s3"))

	got, ok := ch.DrainLatest()
	require.True(t, ok)
	assert.Equal(t, "s3", got)

	_, ok = ch.DrainLatest()
	assert.False(t, ok, "second drain should find nothing")

	stats := ch.Stats()
	assert.Equal(t, uint64(3), stats.Sent)
	assert.Equal(t, uint64(1), stats.Drained)
	assert.Equal(t, uint64(2), stats.Coalesced)
}

func TestLatest_DropWhenFull(t *testing.T) {
	ch := NewLatest[int](1)

	assert.True(t, ch.TrySend(1))
	assert.False(t, ch.TrySend(2), "send into full buffer must be rejected")
	assert.Equal(t, uint64(1), ch.Stats().Dropped)

	got, ok := ch.DrainLatest()
	require.True(t, ok)
	assert.Equal(t, 1, got, "the rejected value must not replace the buffered one")
}

func TestLatest_SendAfterDrop(t *testing.T) {
	ch := NewLatest[int](1)

	require.True(t, ch.TrySend(1))
	require.False(t, ch.TrySend(2))

	_, ok := ch.DrainLatest()
	require.True(t, ok)

	// the dropped send leaves the channel usable
	assert.True(t, ch.TrySend(3))
	got, ok := ch.DrainLatest()
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestLatest_DrainEmpty(t *testing.T) {
	ch := NewLatest[int](4)

	got, ok := ch.DrainLatest()
	assert.False(t, ok)
	assert.Zero(t, got)
	assert.Equal(t, uint64(0), ch.Stats().Drained)
}

func TestLatest_ConcurrentProducerConsumer(t *testing.T) {
	ch := NewLatest[int](4)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			ch.TrySend(i)
		}
	}()

	last := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		if v, ok := ch.DrainLatest(); ok {
			// values arrive in send order, so the latest never goes backwards
			require.Greater(t, v, last)
			last = v
		}
		select {
		case <-done:
			if v, ok := ch.DrainLatest(); ok {
				require.Greater(t, v, last)
			}
			stats := ch.Stats()
			assert.Equal(t, uint64(total), stats.Sent+stats.Dropped)
			return
		default:
		}
	}
}

type stubChannel struct {
	accept bool
	value  int
	has    bool
}

func (s *stubChannel) TrySend(v int) bool {
	if s.accept {
		s.value, s.has = v, true
	}
	return s.accept
}

func (s *stubChannel) DrainLatest() (int, bool) {
	v, ok := s.value, s.has
	s.has = false
	return v, ok
}

func TestCounting(t *testing.T) {
	inner := &stubChannel{accept: true}
	ch := NewCounting[int](inner)

	assert.True(t, ch.TrySend(7))
	inner.accept = false
	assert.False(t, ch.TrySend(8))

	got, ok := ch.DrainLatest()
	require.True(t, ok)
	assert.Equal(t, 7, got)

	_, ok = ch.DrainLatest()
	assert.False(t, ok)

	stats := ch.Stats()
	assert.Equal(t, Stats{Sent: 1, Dropped: 1, Drained: 1}, stats)
}
