package riak

import (
	"context"

	"github.com/riakclient/goriak/internal/cluster"
	"github.com/riakclient/goriak/internal/conn"
	"github.com/riakclient/goriak/internal/rpb"
)

// DtFetch fetches a CRDT value. kind selects which of Counter/Set/Map
// on the result is meaningful.
func (c *Client) DtFetch(ctx context.Context, key Key, kind CrdtKind, opts *DtFetchOptions) (CrdtValue, error) {
	if err := key.validate(true); err != nil {
		return CrdtValue{}, err
	}
	if opts == nil {
		opts = &DtFetchOptions{}
	}
	req := &dtFetchRequest{Type: key.BucketType, Bucket: key.Bucket, Key: key.Key, Options: populateMap(opts.Populate)}

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		resp, err := conn.WriteReadTyped(req, rpb.CodeDtFetchReq, serializeJSON, rpb.CodeDtFetchResp, deserializeJSONInto(&dtFetchResponse{}))
		return commOutcome(resp, err)
	})
	if outcome.Err != nil {
		return CrdtValue{}, toError(outcome.Err)
	}
	r := outcome.Value.(*dtFetchResponse)
	if r.NotFound {
		return CrdtValue{}, NewError(CodeNotFound, "no value at "+key.Bucket+"/"+key.Key)
	}
	return CrdtValue{
		Kind:    kind,
		Counter: r.Counter,
		Set:     r.Set,
		Map:     toMapValue(r.MapValue),
		Context: r.Context,
	}, nil
}

// DtUpdateResult is the façade value returned by DtUpdate.
type DtUpdateResult struct {
	Key     string
	Context []byte
	Counter int64
	Set     [][]byte
	Map     MapValue
}

// DtUpdate applies update to the CRDT at key. When key.Key is empty
// the server mints one, returned in DtUpdateResult.Key. update.Context
// must echo the most recent DtFetch's context when the update removes
// set or map elements (spec §3).
func (c *Client) DtUpdate(ctx context.Context, key Key, update DtUpdate, opts *DtUpdateOptions) (DtUpdateResult, error) {
	if err := key.validate(false); err != nil {
		return DtUpdateResult{}, err
	}
	if opts == nil {
		opts = &DtUpdateOptions{}
	}
	req := &dtUpdateRequest{Type: key.BucketType, Bucket: key.Bucket, Key: key.Key, Op: update, Options: populateMap(opts.Populate)}

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		resp, err := conn.WriteReadTyped(req, rpb.CodeDtUpdateReq, serializeJSON, rpb.CodeDtUpdateResp, deserializeJSONInto(&dtUpdateResponse{}))
		return commOutcome(resp, err)
	})
	if outcome.Err != nil {
		return DtUpdateResult{}, toError(outcome.Err)
	}
	r := outcome.Value.(*dtUpdateResponse)
	return DtUpdateResult{
		Key:     r.Key,
		Context: r.Context,
		Counter: r.Counter,
		Set:     r.Set,
		Map:     toMapValue(r.MapValue),
	}, nil
}

// GetCounter is a convenience wrapper over DtFetch for the common
// counter-only case. Per SPEC_FULL §6, counters always go through the
// dt-fetch/dt-update CRDT path; the pre-2.0 textual counter extension
// is not implemented.
func (c *Client) GetCounter(ctx context.Context, key Key) (int64, error) {
	v, err := c.DtFetch(ctx, key, CrdtCounter, nil)
	if err != nil {
		return 0, err
	}
	return v.Counter, nil
}

// IncrementCounter is a convenience wrapper over DtUpdate for the
// common counter-only case.
func (c *Client) IncrementCounter(ctx context.Context, key Key, delta int64) (int64, error) {
	r, err := c.DtUpdate(ctx, key, DtUpdate{Kind: CrdtCounter, CounterIncrement: delta}, nil)
	if err != nil {
		return 0, err
	}
	return r.Counter, nil
}
