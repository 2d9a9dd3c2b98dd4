package pool

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riakclient/goriak/internal/conn"
)

// fakeDial builds a *conn.Connection over one side of a net.Pipe with
// no real server loop behind it — enough to exercise pool bookkeeping
// without a live Riak node.
func fakeDial(t *testing.T) Dial {
	t.Helper()
	return func(ctx context.Context) (*conn.Connection, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { _ = server.Close() })
		return conn.NewForTest(client), nil
	}
}

func TestAcquireRespectsCapacity(t *testing.T) {
	p := New(2, fakeDial(t), nil)
	c1, ok, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	c2, ok, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "third acquire should find the pool at capacity")

	assert.Equal(t, 2, p.Live())
	p.Release(c1, true)
	p.Release(c2, true)
}

func TestReleaseUnhealthyDecrementsLive(t *testing.T) {
	p := New(1, fakeDial(t), nil)
	c, ok, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, p.Live())
	p.Release(c, false)
	assert.Equal(t, 0, p.Live())

	// capacity freed up, a new connection can be dialed
	_, ok, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseHealthyReusesSameConnection(t *testing.T) {
	p := New(1, fakeDial(t), nil)
	c1, ok, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	p.Release(c1, true)

	c2, ok, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, c1, c2)
}

func TestDrainClosesIdleAndRejectsFurtherAcquire(t *testing.T) {
	p := New(2, fakeDial(t), nil)
	c, ok, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	p.Release(c, true)
	assert.Equal(t, 1, p.Live())

	p.Drain()
	assert.Equal(t, 0, p.Live())

	_, _, err = p.Acquire(context.Background())
	assert.Equal(t, ErrShuttingDown, err)
}

func TestConcurrentAcquireNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	p := New(capacity, fakeDial(t), nil)

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := p.Acquire(context.Background())
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for ok := range results {
		if ok {
			granted++
		}
	}
	assert.LessOrEqual(t, granted, capacity)
	assert.LessOrEqual(t, p.Live(), capacity)
}
