package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scratch struct {
	data []byte
}

func TestPoolReuse(t *testing.T) {
	p := New(
		func() *scratch { return &scratch{data: make([]byte, 0, 64)} },
		func(s *scratch) { s.data = s.data[:0] },
	)

	s := p.Get()
	s.data = append(s.data, 1, 2, 3)
	p.Put(s)

	s2 := p.Get()
	assert.Empty(t, s2.data, "reset runs before reuse")

	allocated, inUse, hits := p.Stats()
	assert.GreaterOrEqual(t, allocated, int64(1))
	assert.Equal(t, int64(1), inUse)
	assert.Equal(t, int64(2), hits)
}

func TestBufferPoolBuckets(t *testing.T) {
	p := NewBufferPool()

	buf := p.Get(2048)
	require.Len(t, buf, 2048)
	assert.Equal(t, 4096, cap(buf), "smallest bucket that fits")
	p.Put(buf)

	huge := p.Get(64 * 1024 * 1024)
	assert.Len(t, huge, 64*1024*1024, "oversized requests fall back to allocation")
	p.Put(huge)
}
