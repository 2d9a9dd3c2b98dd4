package riak

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/riakclient/goriak/internal/cluster"
	"github.com/riakclient/goriak/internal/conn"
	"github.com/riakclient/goriak/internal/pool"
	"github.com/riakclient/goriak/internal/resthttp"
	"github.com/riakclient/goriak/internal/rpb"
)

// Client is the core's public entry point: one Cluster dispatcher over
// the configured nodes, plus the per-node legacy HTTP clients used
// only for bucket-properties get/set/reset.
type Client struct {
	cl   *cluster.Cluster
	log  Logger
	http map[string]*resthttp.Client // node name -> legacy client

	idMu     sync.Mutex
	clientID []byte
}

// NewClient builds a Client from cfg. It does not dial anything
// eagerly — pools dial lazily on first Acquire, matching the
// teacher's lazy-connect backend convention.
func NewClient(cfg ClusterConfig) (*Client, error) {
	if len(cfg.Nodes) == 0 {
		return nil, validationError("cluster config must list at least one node")
	}
	log := cfg.logger()
	pools := map[string]*pool.Pool{}
	httpClients := map[string]*resthttp.Client{}
	for _, n := range cfg.Nodes {
		n := n
		name := n.Name
		if name == "" {
			name = n.Addr
		}
		capacity := n.PoolCapacity
		if capacity <= 0 {
			capacity = 1
		}
		var metrics *pool.Metrics
		if cfg.Registry != nil {
			metrics = pool.NewMetrics(cfg.Registry, name)
		}
		dial := func(ctx context.Context) (*conn.Connection, error) {
			return conn.Dial(ctx, conn.Config{
				Addr:           n.Addr,
				ConnectTimeout: n.ConnectTimeout,
				ReadTimeout:    n.ReadTimeout,
				WriteTimeout:   n.WriteTimeout,
				ProxyURL:       n.ProxyURL,
				TLS:            n.TLS,
			})
		}
		pools[name] = pool.New(capacity, dial, metrics)
		if n.HTTPAddr != "" {
			httpClients[name] = resthttp.New(n.HTTPAddr, nil)
		}
	}
	var clMetrics *cluster.Metrics
	if cfg.Registry != nil {
		clMetrics = cluster.NewMetrics(cfg.Registry)
	}
	cl := cluster.New(pools, cluster.Config{Retries: cfg.Retries, CooldownWindow: cooldownOrDefault(cfg.CooldownWindow)}, clMetrics)
	return &Client{cl: cl, log: log, http: httpClients}, nil
}

func cooldownOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Close drains every node pool concurrently, closing idle connections
// at once. In-flight operations on already-borrowed connections are
// not interrupted: they run to completion and their connections are
// closed when released. Calls made after Close find every node
// drained and fail with CodeNoConnections.
func (c *Client) Close() error {
	return c.cl.Close()
}

// anyHTTPClient returns whichever configured legacy HTTP client is
// available, since bucket properties are cluster-wide state and any
// node's HTTP interface can serve the request.
func (c *Client) anyHTTPClient() (*resthttp.Client, error) {
	for _, hc := range c.http {
		return hc, nil
	}
	return nil, NewError(CodeInvalidResponse, "no node configured with an HTTPAddr for bucket-properties access")
}

// Ping performs a no-op round trip to verify connectivity to some
// node in the cluster.
func (c *Client) Ping(ctx context.Context) error {
	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		err := conn.WriteRead(rpb.CodePingReq, rpb.CodePingResp)
		return commOutcome(nil, err)
	})
	return toError(outcome.Err)
}

// ServerInfoResult is the façade value returned by ServerInfo.
type ServerInfoResult struct {
	Node          string
	ServerVersion string
}

// ServerInfo reports the node name and version the server answering
// this request is running.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfoResult, error) {
	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		resp, err := conn.WriteReadTyped(struct{}{}, rpb.CodeGetServerInfoReq, serializeJSON,
			rpb.CodeGetServerInfoResp, deserializeJSONInto(&serverInfoResponse{}))
		return commOutcome(resp, err)
	})
	if outcome.Err != nil {
		return ServerInfoResult{}, toError(outcome.Err)
	}
	r := outcome.Value.(*serverInfoResponse)
	return ServerInfoResult{Node: r.Node, ServerVersion: r.ServerVersion}, nil
}

// ClientID returns the client ID this connection attributes writes
// to, negotiating and caching a fresh uuid-seeded one on first use if
// SetClientID was never called.
func (c *Client) ClientID(ctx context.Context) ([]byte, error) {
	c.idMu.Lock()
	if c.clientID != nil {
		id := c.clientID
		c.idMu.Unlock()
		return id, nil
	}
	c.idMu.Unlock()

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		resp, err := conn.WriteReadTyped(struct{}{}, rpb.CodeGetClientIDReq, serializeJSON,
			rpb.CodeGetClientIDResp, deserializeJSONInto(&clientIDResponse{}))
		return commOutcome(resp, err)
	})
	if outcome.Err != nil {
		return nil, toError(outcome.Err)
	}
	id := outcome.Value.(*clientIDResponse).ClientID
	if len(id) == 0 {
		id = newClientID()
		if err := c.SetClientID(ctx, id); err != nil {
			return nil, err
		}
	}
	c.idMu.Lock()
	c.clientID = id
	c.idMu.Unlock()
	return id, nil
}

// SetClientID assigns this connection's client ID explicitly.
func (c *Client) SetClientID(ctx context.Context, id []byte) error {
	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		_, err := conn.WriteReadTyped(&clientIDRequest{ClientID: id}, rpb.CodeSetClientIDReq, serializeJSON,
			rpb.CodeSetClientIDResp, deserializeJSONInto(&struct{}{}))
		return commOutcome(nil, err)
	})
	if outcome.Err != nil {
		return toError(outcome.Err)
	}
	c.idMu.Lock()
	c.clientID = id
	c.idMu.Unlock()
	return nil
}

func newClientID() []byte {
	id := uuid.New()
	return id[:]
}

// commOutcome turns a raw (value, err) pair from a conn method into a
// cluster.Outcome, classifying err by the rules in SPEC_FULL §7: a
// *rpb.RemoteError is a server-level response (healthy connection, no
// retry, no cooldown); conn.ErrShutdown (the connection was already
// closed) is returned as-is, with no retry and no cooldown; anything
// else reaching this point means the connection layer already marked
// the socket broken, so it is communication-class, retryable, and puts
// the node in cooldown.
func commOutcome(value interface{}, err error) cluster.Outcome {
	if err == nil {
		return cluster.Outcome{Value: value}
	}
	if _, isRemote := err.(*rpb.RemoteError); isRemote {
		return cluster.Outcome{Err: err}
	}
	if mismatch, ok := err.(*rpb.CodeMismatchError); ok {
		return cluster.Outcome{Err: mismatch, Retry: true, NodeOffline: true, Unhealthy: true}
	}
	if errors.Is(err, conn.ErrShutdown) {
		return cluster.Outcome{Err: err}
	}
	return cluster.Outcome{Err: err, Retry: true, NodeOffline: true, Unhealthy: true}
}

// toError maps a dispatcher-level error into the façade's uniform
// *Error envelope.
func toError(err error) error {
	if err == nil {
		return nil
	}
	if rerr, ok := err.(*Error); ok {
		return rerr
	}
	if remote, ok := err.(*rpb.RemoteError); ok {
		return WrapError(CodeRemoteError, remote, remote.Message)
	}
	if err == cluster.ErrNoConnections {
		return WrapError(CodeNoConnections, err, "")
	}
	if errors.Is(err, conn.ErrShutdown) {
		return WrapError(CodeShuttingDown, err, "")
	}
	comm := WrapError(CodeCommunication, err, "")
	comm.NodeOffline = true
	return comm
}
