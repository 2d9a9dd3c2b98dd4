package riak

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/riakclient/goriak/internal/conn"
)

// NodeConfig describes one Riak node's binary-protocol endpoint and
// per-node pool sizing. The core never reads these from a file (spec
// §6 non-goal) — the caller builds the slice in memory, typically from
// whatever config system its own application already uses.
type NodeConfig struct {
	Name string // used for logging and metric labels; defaults to Addr
	Addr string // host:port of the Riak PB port

	// HTTPAddr is the legacy HTTP base URL (e.g.
	// "http://10.0.0.1:8098") used only for bucket-properties get/set/
	// reset (spec §1 scope note).
	HTTPAddr string

	PoolCapacity int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	ProxyURL string
	TLS      *conn.TLSConfig
}

// ClusterConfig describes an entire cluster: its nodes plus the
// dispatcher's retry/cooldown policy and the ambient collaborators
// (logger, metrics registry) threaded down into every layer.
type ClusterConfig struct {
	Nodes []NodeConfig

	// Retries is the number of additional attempts after the first,
	// bounded in practice by the number of distinct eligible nodes
	// (spec §8).
	Retries int

	// CooldownWindow is how long a node that reported itself offline
	// is skipped for.
	CooldownWindow time.Duration

	// Logger receives advisory/diagnostic output; defaults to a
	// logrus-backed Logger via NewLogger() when nil.
	Logger Logger

	// Registry, if non-nil, receives the pool and dispatcher
	// Prometheus metrics. Left nil to skip instrumentation entirely.
	Registry prometheus.Registerer
}

func (cfg *ClusterConfig) logger() Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return NewLogger()
}
