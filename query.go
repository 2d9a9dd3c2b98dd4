package riak

import (
	"context"
	"encoding/json"
	"runtime"

	"github.com/riakclient/goriak/internal/cluster"
	"github.com/riakclient/goriak/internal/conn"
	"github.com/riakclient/goriak/internal/rpb"
)

// MapReducePhaseResult is one phase's output from a MapReduce job.
type MapReducePhaseResult struct {
	Phase int
	Data  json.RawMessage
}

// MapReduceStream is the lazily-drained sequence of phase results a
// MapReduce job produces: the caller pulls one phase's output at a
// time instead of waiting for the whole job to finish, per spec §4.E
// ("streaming variants materialize results lazily") and §4.B's
// write_read_streaming_delayed primitive. The underlying connection is
// released exactly once, on full drain or on Close, mirroring
// listing.go's KeyStream.
type MapReduceStream struct {
	handle *conn.StreamHandle
	err    error
	closed bool
}

// Next returns the next phase result. ok is false once the job is
// done (err nil) or failed (err non-nil); the server's final frame
// commonly carries no phase data of its own and is swallowed rather
// than surfaced as an empty result.
func (s *MapReduceStream) Next() (result MapReducePhaseResult, ok bool, err error) {
	for {
		if s.closed {
			return MapReducePhaseResult{}, false, s.err
		}
		resp, done, nerr := s.handle.Next()
		if nerr != nil {
			s.closed, s.err = true, nerr
			return MapReducePhaseResult{}, false, nerr
		}
		if done {
			s.closed = true
		}
		r := resp.(*mapReduceResponse)
		if len(r.Data) == 0 && r.Done {
			continue
		}
		return MapReducePhaseResult{Phase: r.Phase, Data: r.Data}, true, nil
	}
}

// Close releases the underlying connection early if the caller
// abandons the stream before it is exhausted; safe to call more than
// once, and after a full drain.
func (s *MapReduceStream) Close() {
	s.handle.Close()
}

// MapReduce submits query (already in whatever job-spec form the
// caller's map-reduce query-building layer produced — composing that
// DSL is explicitly out of this core's scope, spec §1) and returns a
// MapReduceStream the caller drains phase by phase.
func (c *Client) MapReduce(ctx context.Context, query json.RawMessage, opts *MapReduceOptions) (*MapReduceStream, error) {
	if opts == nil {
		opts = &MapReduceOptions{}
	}
	req := &mapReduceRequest{Query: query, Options: populateMap(opts.Populate)}
	isLast := func(v interface{}) bool { return v.(*mapReduceResponse).Done }

	var stream *MapReduceStream
	outcome := c.cl.UseDelayedConnection(ctx, func(ctx context.Context, cn *conn.Connection, release func()) cluster.Outcome {
		handle, err := cn.WriteReadStreamingDelayed(req, rpb.CodeMapRedReq, serializeJSON,
			rpb.CodeMapRedResp, func(b []byte) (interface{}, error) { return deserializeJSONInto(&mapReduceResponse{})(b) }, isLast, release)
		if err != nil {
			return commOutcome(nil, err)
		}
		stream = &MapReduceStream{handle: handle}
		return cluster.Outcome{}
	})
	if outcome.Err != nil {
		return nil, toError(outcome.Err)
	}
	runtime.SetFinalizer(stream, (*MapReduceStream).Close)
	return stream, nil
}

// SearchResult is the façade value returned by Search.
type SearchResult struct {
	Docs     []map[string]interface{}
	NumFound uint32
}

// Search runs a Riak Search (Solr) query against index. Unlike
// MapReduce/Index, a search-query response is a single frame (spec
// §6), so this stays on the plain single-round-trip dispatch path.
func (c *Client) Search(ctx context.Context, index, query string) (SearchResult, error) {
	if err := validateComponent("index", index); err != nil {
		return SearchResult{}, err
	}
	req := &searchRequest{Index: index, Query: query}

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		resp, err := conn.WriteReadTyped(req, rpb.CodeSearchQueryReq, serializeJSON,
			rpb.CodeSearchQueryResp, deserializeJSONInto(&searchResponse{}))
		return commOutcome(resp, err)
	})
	if outcome.Err != nil {
		return SearchResult{}, toError(outcome.Err)
	}
	r := outcome.Value.(*searchResponse)
	return SearchResult{Docs: r.Docs, NumFound: r.NumFound}, nil
}

// IndexStream is the lazily-drained sequence of matches a secondary-
// index query produces: the caller pulls one key (with its term value,
// when ReturnTerms was set) at a time, rather than waiting for every
// frame up front. Continuation is valid once the stream reports
// exhaustion, exposing the opaque pagination token from the last
// frame per spec §4.E.
type IndexStream struct {
	handle       *conn.StreamHandle
	returnTerms  bool
	queue        []indexStreamItem
	continuation []byte
	err          error
	closed       bool
}

type indexStreamItem struct {
	key  string
	term string
}

// Next returns the next matching key and its associated term value
// (empty when ReturnTerms was not set). ok is false once the query is
// exhausted (err nil) or failed (err non-nil).
func (s *IndexStream) Next() (key string, term string, ok bool, err error) {
	for {
		if len(s.queue) > 0 {
			item := s.queue[0]
			s.queue = s.queue[1:]
			return item.key, item.term, true, nil
		}
		if s.closed {
			return "", "", false, s.err
		}
		resp, done, nerr := s.handle.Next()
		if nerr != nil {
			s.closed, s.err = true, nerr
			return "", "", false, nerr
		}
		r := resp.(*indexResponse)
		for _, k := range r.Keys {
			s.queue = append(s.queue, indexStreamItem{key: k, term: r.Terms[k]})
		}
		if len(r.Continuation) > 0 {
			s.continuation = r.Continuation
		}
		if done {
			s.closed = true
		}
	}
}

// Continuation returns the opaque pagination token carried by the
// stream's last frame, if any. Only meaningful once Next has reported
// exhaustion (or at least one frame has been consumed).
func (s *IndexStream) Continuation() []byte { return s.continuation }

// Close releases the underlying connection early if the caller
// abandons the stream before it is exhausted; safe to call more than
// once, and after a full drain.
func (s *IndexStream) Close() {
	s.handle.Close()
}

// Index runs a secondary-index equality query (index=value).
func (c *Client) Index(ctx context.Context, key Key, index, value string, opts *IndexOptions) (*IndexStream, error) {
	return c.runIndexQuery(ctx, key, index, "eq", value, "", "", opts)
}

// IndexRange runs a secondary-index range query (min <= index <= max).
func (c *Client) IndexRange(ctx context.Context, key Key, index, min, max string, opts *IndexOptions) (*IndexStream, error) {
	return c.runIndexQuery(ctx, key, index, "range", "", min, max, opts)
}

func (c *Client) runIndexQuery(ctx context.Context, key Key, index, qtype, eqValue, min, max string, opts *IndexOptions) (*IndexStream, error) {
	if err := validateComponent("bucket", key.Bucket); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &IndexOptions{}
	}
	req := &indexRequest{
		Type: key.BucketType, Bucket: key.Bucket, Index: index, Qtype: qtype,
		Key: eqValue, RangeMin: min, RangeMax: max, Options: populateMap(opts.Populate),
	}
	isLast := func(v interface{}) bool { return v.(*indexResponse).Done }

	var stream *IndexStream
	outcome := c.cl.UseDelayedConnection(ctx, func(ctx context.Context, cn *conn.Connection, release func()) cluster.Outcome {
		handle, err := cn.WriteReadStreamingDelayed(req, rpb.CodeIndexReq, serializeJSON,
			rpb.CodeIndexResp, func(b []byte) (interface{}, error) { return deserializeJSONInto(&indexResponse{})(b) }, isLast, release)
		if err != nil {
			return commOutcome(nil, err)
		}
		stream = &IndexStream{handle: handle, returnTerms: opts.ReturnTerms}
		return cluster.Outcome{}
	})
	if outcome.Err != nil {
		return nil, toError(outcome.Err)
	}
	runtime.SetFinalizer(stream, (*IndexStream).Close)
	return stream, nil
}
