// Package cluster dispatches operations across a fixed set of node
// pools: picking an eligible node, retrying on another one when the
// result says so, and cooling a node down once it reports itself
// offline.
//
// Grounded on backend/sftp/sftp.go's f.pacer.Call(func() (bool, error)
// {...}) retry-decision idiom from the teacher repo, generalized from
// a single endpoint's backoff-and-retry loop to a cross-node retry
// loop, plus golang.org/x/sync/errgroup (new to this package, absent
// from the teacher) for concurrently draining every node pool on
// Close and github.com/prometheus/client_golang for retry/cooldown
// counters.
package cluster

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/riakclient/goriak/internal/conn"
	"github.com/riakclient/goriak/internal/pool"
)

// ErrNoConnections is returned when no node is eligible for an attempt
// at all — every node is either cooling down or drained.
var ErrNoConnections = errors.New("cluster: no eligible node")

// Outcome is what an Op reports back to the dispatcher about one
// attempt, independent of whatever façade-level error type wraps Err.
type Outcome struct {
	Value interface{}
	Err   error

	// Retry, when Err != nil, tells the dispatcher this failure is
	// worth retrying on another node (communication-class). False
	// means stop now and return this Outcome as-is (remote-error,
	// validation, not-found and the like).
	Retry bool

	// NodeOffline tells the dispatcher to put the node that produced
	// this Outcome into cooldown.
	NodeOffline bool

	// Unhealthy tells the dispatcher the connection used for this
	// attempt must be discarded rather than returned to its pool.
	Unhealthy bool
}

// Op performs one attempt against a borrowed connection.
type Op func(ctx context.Context, c *conn.Connection) Outcome

// DelayedOp is like Op but for streaming operations: it receives a
// release func the caller must arrange to invoke exactly once, later,
// when the stream is fully drained or abandoned. If DelayedOp returns
// a non-nil Outcome.Err, it must not have retained release — the
// dispatcher releases the connection itself using Outcome.Unhealthy.
type DelayedOp func(ctx context.Context, c *conn.Connection, release func()) Outcome

// Config configures a Cluster.
type Config struct {
	Retries        int
	CooldownWindow time.Duration
}

// Metrics are the dispatcher-level Prometheus counters, complementing
// the per-pool gauges in internal/pool.
type Metrics struct {
	Retries    prometheus.Counter
	Cooldowns  prometheus.Counter
	NoNode     prometheus.Counter
}

// NewMetrics builds and registers a Metrics set. reg may be nil to
// skip registration (tests, or a caller that wires it in later).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Retries:   prometheus.NewCounter(prometheus.CounterOpts{Name: "riak_cluster_retries_total"}),
		Cooldowns: prometheus.NewCounter(prometheus.CounterOpts{Name: "riak_cluster_cooldowns_total"}),
		NoNode:    prometheus.NewCounter(prometheus.CounterOpts{Name: "riak_cluster_no_eligible_node_total"}),
	}
	if reg != nil {
		reg.MustRegister(m.Retries, m.Cooldowns, m.NoNode)
	}
	return m
}

// Cluster dispatches operations over a fixed list of node pools. The
// node list is immutable after New; only per-node health and
// last-used state (see node.go) is mutated.
type Cluster struct {
	nodes   []*Node
	cfg     Config
	metrics *Metrics

	now func() time.Time // overridable by tests
}

// New builds a Cluster from a name->Pool map, preserving no particular
// iteration order (node selection is by least-recently-used, not by
// map order).
func New(pools map[string]*pool.Pool, cfg Config, metrics *Metrics) *Cluster {
	nodes := make([]*Node, 0, len(pools))
	for name, p := range pools {
		nodes = append(nodes, newNode(name, p))
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return &Cluster{nodes: nodes, cfg: cfg, metrics: metrics, now: time.Now}
}

func (cl *Cluster) maxAttempts() int {
	return maxAttemptsFor(cl.cfg.Retries)
}

func maxAttemptsFor(retries int) int {
	if retries < 0 {
		return 1
	}
	return retries + 1
}

// pickEligible returns the least-recently-used node not in skip and
// currently eligible, or nil if none qualifies.
func (cl *Cluster) pickEligible(skip map[*Node]bool) *Node {
	now := cl.now()
	var best *Node
	for _, n := range cl.nodes {
		if skip[n] || !n.eligible(now) {
			continue
		}
		if best == nil || n.lastUsedAt().Before(best.lastUsedAt()) {
			best = n
		}
	}
	return best
}

func (cl *Cluster) countRetry() {
	if cl.metrics != nil {
		cl.metrics.Retries.Inc()
	}
}

func (cl *Cluster) countCooldown() {
	if cl.metrics != nil {
		cl.metrics.Cooldowns.Inc()
	}
}

func (cl *Cluster) countNoNode() {
	if cl.metrics != nil {
		cl.metrics.NoNode.Inc()
	}
}

// UseConnection borrows a connection from an eligible node, runs op
// against it, releases it according to the returned Outcome, and
// retries on a different eligible node when Outcome.Retry is set — up
// to min(retries+1, number of nodes) distinct attempts, per node
// cooldown permitting. See node.go for why a single-node cluster that
// reports itself offline still only gets one attempt.
func (cl *Cluster) UseConnection(ctx context.Context, op Op) Outcome {
	return cl.useConnection(ctx, cl.maxAttempts(), op)
}

// UseConnectionWithRetries is UseConnection with a per-call retry
// budget instead of the cluster's configured default — used by the
// batch session, which allows at most one retry on its initial borrow
// regardless of the cluster-wide Retries setting (spec §4.F).
func (cl *Cluster) UseConnectionWithRetries(ctx context.Context, retries int, op Op) Outcome {
	return cl.useConnection(ctx, maxAttemptsFor(retries), op)
}

func (cl *Cluster) useConnection(ctx context.Context, maxAttempts int, op Op) Outcome {
	skippedFull := map[*Node]bool{}
	var last Outcome
	attempted := 0

	for attempted < maxAttempts {
		node := cl.pickEligible(skippedFull)
		if node == nil {
			if attempted == 0 {
				cl.countNoNode()
				return Outcome{Err: ErrNoConnections}
			}
			return last
		}

		c, ok, err := node.Pool.Acquire(ctx)
		if err == pool.ErrShuttingDown {
			node.drain()
			continue
		}
		if !ok {
			skippedFull[node] = true
			continue
		}
		node.touch(cl.now())

		attempted++
		outcome := op(ctx, c)
		node.Pool.Release(c, !outcome.Unhealthy)
		if outcome.NodeOffline {
			node.cooldown(cl.now(), cl.cfg.CooldownWindow)
			cl.countCooldown()
		}
		last = outcome
		if outcome.Err == nil || !outcome.Retry {
			return outcome
		}
		cl.countRetry()
	}
	return last
}

// UseDelayedConnection is UseConnection's streaming counterpart: once
// op reports success it has taken ownership of releasing the
// connection (via the release func it was handed), and the dispatcher
// returns immediately without touching the pool again for this
// attempt.
func (cl *Cluster) UseDelayedConnection(ctx context.Context, op DelayedOp) Outcome {
	return cl.useDelayedConnection(ctx, cl.maxAttempts(), op)
}

func (cl *Cluster) useDelayedConnection(ctx context.Context, maxAttempts int, op DelayedOp) Outcome {
	skippedFull := map[*Node]bool{}
	var last Outcome
	attempted := 0

	for attempted < maxAttempts {
		node := cl.pickEligible(skippedFull)
		if node == nil {
			if attempted == 0 {
				cl.countNoNode()
				return Outcome{Err: ErrNoConnections}
			}
			return last
		}

		c, ok, err := node.Pool.Acquire(ctx)
		if err == pool.ErrShuttingDown {
			node.drain()
			continue
		}
		if !ok {
			skippedFull[node] = true
			continue
		}
		node.touch(cl.now())

		attempted++
		released := false
		release := func() {
			released = true
			healthy := !c.Broken()
			node.Pool.Release(c, healthy)
		}

		outcome := op(ctx, c, release)
		if outcome.NodeOffline {
			node.cooldown(cl.now(), cl.cfg.CooldownWindow)
			cl.countCooldown()
		}
		if outcome.Err != nil {
			// op failed before the stream took ownership of the
			// connection: release it here, exactly as UseConnection
			// would, then fall through to the retry decision.
			if !released {
				node.Pool.Release(c, !outcome.Unhealthy)
			}
			last = outcome
			if !outcome.Retry {
				return outcome
			}
			cl.countRetry()
			continue
		}
		// Success: the stream owns release() now, whether or not it
		// has been called yet.
		return outcome
	}
	return last
}

// Close drains every node pool concurrently and waits for all of them
// to finish.
func (cl *Cluster) Close() error {
	g, _ := errgroup.WithContext(context.Background())
	for _, n := range cl.nodes {
		n := n
		g.Go(func() error {
			n.drain()
			return nil
		})
	}
	return g.Wait()
}

// Len reports the number of nodes in the cluster (tests, diagnostics).
func (cl *Cluster) Len() int { return len(cl.nodes) }
