package cluster

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riakclient/goriak/internal/conn"
	"github.com/riakclient/goriak/internal/pool"
)

func fakePool(t *testing.T, capacity int) *pool.Pool {
	t.Helper()
	dial := func(ctx context.Context) (*conn.Connection, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { _ = server.Close() })
		return conn.NewForTest(client), nil
	}
	return pool.New(capacity, dial, nil)
}

func newTestCluster(t *testing.T, names ...string) *Cluster {
	t.Helper()
	pools := map[string]*pool.Pool{}
	for _, name := range names {
		pools[name] = fakePool(t, 1)
	}
	return New(pools, Config{Retries: 3, CooldownWindow: time.Minute}, nil)
}

func TestUseConnectionRetriesOnCommunicationFailure(t *testing.T) {
	cl := newTestCluster(t, "a", "b")
	var calls int
	outcome := cl.UseConnection(context.Background(), func(ctx context.Context, c *conn.Connection) Outcome {
		calls++
		if calls == 1 {
			return Outcome{Err: assertErr, Retry: true, NodeOffline: true, Unhealthy: true}
		}
		return Outcome{Value: "ok"}
	})
	require.NoError(t, outcome.Err)
	assert.Equal(t, "ok", outcome.Value)
	assert.Equal(t, 2, calls)
}

func TestUseConnectionSingleNodeStopsAfterOneAttemptOnceCooling(t *testing.T) {
	cl := newTestCluster(t, "only")
	var calls int
	outcome := cl.UseConnection(context.Background(), func(ctx context.Context, c *conn.Connection) Outcome {
		calls++
		return Outcome{Err: assertErr, Retry: true, NodeOffline: true, Unhealthy: true}
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, assertErr, outcome.Err)
	assert.True(t, outcome.NodeOffline)
}

func TestUseConnectionNoEligibleNodesReturnsNoConnections(t *testing.T) {
	cl := newTestCluster(t, "a", "b")
	for _, n := range cl.nodes {
		n.cooldown(cl.now(), time.Hour)
	}
	outcome := cl.UseConnection(context.Background(), func(ctx context.Context, c *conn.Connection) Outcome {
		t.Fatal("op must not be called when no node is eligible")
		return Outcome{}
	})
	assert.Equal(t, ErrNoConnections, outcome.Err)
}

func TestUseConnectionStopsImmediatelyOnNonRetryableError(t *testing.T) {
	cl := newTestCluster(t, "a", "b", "c")
	var calls int
	outcome := cl.UseConnection(context.Background(), func(ctx context.Context, c *conn.Connection) Outcome {
		calls++
		return Outcome{Err: assertErr, Retry: false}
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, assertErr, outcome.Err)
}

func TestUseConnectionRetryBoundedToDistinctNodes(t *testing.T) {
	cl := newTestCluster(t, "a", "b", "c")
	cl.cfg.Retries = 10 // max attempts (11) exceeds node count (3)
	seen := map[*conn.Connection]bool{}
	var calls int
	outcome := cl.UseConnection(context.Background(), func(ctx context.Context, c *conn.Connection) Outcome {
		calls++
		seen[c] = true
		return Outcome{Err: assertErr, Retry: true, NodeOffline: true, Unhealthy: true}
	})
	assert.Equal(t, 3, calls, "should stop once every node has cooled down, not loop up to retries+1")
	assert.Equal(t, 3, len(seen))
	assert.Equal(t, assertErr, outcome.Err)
}

func TestUseDelayedConnectionDefersReleaseToCaller(t *testing.T) {
	cl := newTestCluster(t, "only")
	var released bool
	outcome := cl.UseDelayedConnection(context.Background(), func(ctx context.Context, c *conn.Connection, release func()) Outcome {
		go func() {
			release()
			released = true
		}()
		return Outcome{Value: "streaming"}
	})
	require.NoError(t, outcome.Err)
	assert.Equal(t, "streaming", outcome.Value)
	// give the goroutine a moment; this only checks no panic/deadlock
	// occurs when release fires after UseDelayedConnection has returned.
	for i := 0; i < 100 && !released; i++ {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, released)
}

func TestUseDelayedConnectionFailureBeforeStreamRetriesOnAnotherNode(t *testing.T) {
	cl := newTestCluster(t, "a", "b")
	var calls int
	outcome := cl.UseDelayedConnection(context.Background(), func(ctx context.Context, c *conn.Connection, release func()) Outcome {
		calls++
		if calls == 1 {
			return Outcome{Err: assertErr, Retry: true, NodeOffline: true, Unhealthy: true}
		}
		release()
		return Outcome{Value: "started"}
	})
	require.NoError(t, outcome.Err)
	assert.Equal(t, 2, calls)
}

var assertErr = &testError{"communication failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
