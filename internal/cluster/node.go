package cluster

import (
	"sync"
	"time"

	"github.com/riakclient/goriak/internal/pool"
)

// nodeState mirrors spec §4.E's node state machine: healthy -> cooldown
// on a node-offline result, cooldown -> healthy once the window
// elapses, any -> drained on explicit shutdown (terminal).
type nodeState int

const (
	stateHealthy nodeState = iota
	stateCooldown
	stateDrained
)

// Node pairs one connection pool with the health/cooldown bookkeeping
// the dispatcher needs to pick eligible nodes. The node list itself is
// immutable after Cluster construction (spec §5); only this per-node
// state is mutated, under its own lock.
type Node struct {
	Name string
	Pool *pool.Pool

	mu            sync.Mutex
	state         nodeState
	cooldownUntil time.Time
	lastUsed      time.Time
}

func newNode(name string, p *pool.Pool) *Node {
	return &Node{Name: name, Pool: p, state: stateHealthy}
}

// eligible reports whether now this node may be selected: not drained
// and not presently inside its cooldown window.
func (n *Node) eligible(now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case stateDrained:
		return false
	case stateCooldown:
		if now.Before(n.cooldownUntil) {
			return false
		}
		n.state = stateHealthy
		return true
	default:
		return true
	}
}

func (n *Node) touch(now time.Time) {
	n.mu.Lock()
	n.lastUsed = now
	n.mu.Unlock()
}

func (n *Node) lastUsedAt() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastUsed
}

// cooldown transitions the node into cooldown for window, entered
// whenever an operation against it reports node-offline.
func (n *Node) cooldown(now time.Time, window time.Duration) {
	n.mu.Lock()
	if n.state != stateDrained {
		n.state = stateCooldown
		n.cooldownUntil = now.Add(window)
	}
	n.mu.Unlock()
}

// drain marks the node permanently ineligible (Cluster.Close).
func (n *Node) drain() {
	n.mu.Lock()
	n.state = stateDrained
	n.mu.Unlock()
	n.Pool.Drain()
}
