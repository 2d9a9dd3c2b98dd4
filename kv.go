package riak

import (
	"context"

	"github.com/riakclient/goriak/internal/cluster"
	"github.com/riakclient/goriak/internal/conn"
	"github.com/riakclient/goriak/internal/rpb"
)

// Get fetches the object at key. A causal vector absent from the
// response (server has no value there) is reported as CodeNotFound,
// per spec §7's error mapping table.
func (c *Client) Get(ctx context.Context, key Key, opts *GetOptions) (Object, error) {
	if err := key.validate(true); err != nil {
		return Object{}, err
	}
	if opts == nil {
		opts = &GetOptions{}
	}
	req := &getRequest{Type: key.BucketType, Bucket: key.Bucket, Key: key.Key, Options: populateMap(opts.Populate)}

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		resp, err := conn.WriteReadTyped(req, rpb.CodeGetReq, serializeJSON, rpb.CodeGetResp, deserializeJSONInto(&getResponse{}))
		return commOutcome(resp, err)
	})
	if outcome.Err != nil {
		return Object{}, toError(outcome.Err)
	}
	resp := outcome.Value.(*getResponse)
	if len(resp.CausalVector) == 0 || len(resp.Contents) == 0 {
		return Object{}, NewError(CodeNotFound, "no value at "+key.Bucket+"/"+key.Key)
	}
	contents := make([]Content, len(resp.Contents))
	for i, rc := range resp.Contents {
		contents[i] = toContent(rc)
	}
	return buildSiblings(key, resp.CausalVector, contents), nil
}

// Put writes content to key. When opts.ReturnBody is set the returned
// Object carries the server's resulting content (and siblings, if the
// write created a concurrent version); otherwise it carries the key,
// the server's causal vector and the caller's own content unchanged.
// When key.Key is empty, the server mints one and the returned
// Object's Key.Key reports it.
func (c *Client) Put(ctx context.Context, key Key, content Content, opts *PutOptions) (Object, error) {
	if err := key.validate(false); err != nil {
		return Object{}, err
	}
	if opts == nil {
		opts = &PutOptions{}
	}
	req := &putRequest{
		Type: key.BucketType, Bucket: key.Bucket, Key: key.Key,
		Value: content.Value, ContentType: content.Meta.ContentType, Indexes: content.Meta.Indexes,
		Options: populateMap(opts.Populate),
	}

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		resp, err := conn.WriteReadTyped(req, rpb.CodePutReq, serializeJSON, rpb.CodePutResp, deserializeJSONInto(&putResponse{}))
		return commOutcome(resp, err)
	})
	if outcome.Err != nil {
		return Object{}, toError(outcome.Err)
	}
	resp := outcome.Value.(*putResponse)
	resultKey := key
	if resultKey.Key == "" {
		resultKey.Key = resp.Key
	}
	if len(resp.Contents) == 0 {
		return Object{Key: resultKey, CausalVector: resp.CausalVector, Content: content}, nil
	}
	contents := make([]Content, len(resp.Contents))
	for i, rc := range resp.Contents {
		contents[i] = toContent(rc)
	}
	return buildSiblings(resultKey, resp.CausalVector, contents), nil
}

// Delete removes the object at key. Passing the causal vector
// observed from a prior Get via opts.VClock expresses "I saw this
// version" (spec §3); omitting it performs an unconditional delete.
func (c *Client) Delete(ctx context.Context, key Key, opts *DeleteOptions) error {
	if err := key.validate(true); err != nil {
		return err
	}
	if opts == nil {
		opts = &DeleteOptions{}
	}
	req := &delRequest{Type: key.BucketType, Bucket: key.Bucket, Key: key.Key, Options: populateMap(opts.Populate)}

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		_, err := conn.WriteReadTyped(req, rpb.CodeDelReq, serializeJSON, rpb.CodeDelResp, deserializeJSONInto(&struct{}{}))
		return commOutcome(nil, err)
	})
	return toError(outcome.Err)
}

// DeleteBucket deletes every key in a bucket by listing its keys and
// issuing a Delete per key. Unlike the flagged latent bug in the
// original source material, the bucket-type is threaded through to
// every per-key Delete (a deliberate redesign — see DESIGN.md).
func (c *Client) DeleteBucket(ctx context.Context, bucketType, bucket string) (deleted int, err error) {
	keys, err := c.ListKeys(ctx, bucketType, bucket)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if derr := c.Delete(ctx, Key{BucketType: bucketType, Bucket: bucket, Key: k}, nil); derr != nil {
			return deleted, derr
		}
		deleted++
	}
	return deleted, nil
}

// MultiGetResult pairs a requested key with its outcome, so one
// failure in the middle of a batch does not lose the rest.
type MultiGetResult struct {
	Key    Key
	Object Object
	Err    error
}

// MultiGet fetches every key in keys over a single pinned connection
// (spec §4.F's batch-session pattern, applied without a caller
// callback): one node borrow for the whole sequence instead of one
// borrow per key.
func (c *Client) MultiGet(ctx context.Context, keys []Key, opts *GetOptions) ([]MultiGetResult, error) {
	results := make([]MultiGetResult, len(keys))
	err := c.Batch(ctx, func(b *BatchSession) error {
		for i, k := range keys {
			obj, gerr := b.Get(ctx, k, opts)
			results[i] = MultiGetResult{Key: k, Object: obj, Err: gerr}
		}
		return nil
	})
	return results, err
}

// MultiPutRequest is one entry of a MultiPut batch.
type MultiPutRequest struct {
	Key     Key
	Content Content
	Options *PutOptions
}

// MultiPutResult pairs a MultiPutRequest with its outcome.
type MultiPutResult struct {
	Key    Key
	Object Object
	Err    error
}

// MultiPut writes every entry in reqs over a single pinned connection.
func (c *Client) MultiPut(ctx context.Context, reqs []MultiPutRequest) ([]MultiPutResult, error) {
	results := make([]MultiPutResult, len(reqs))
	err := c.Batch(ctx, func(b *BatchSession) error {
		for i, r := range reqs {
			obj, perr := b.Put(ctx, r.Key, r.Content, r.Options)
			results[i] = MultiPutResult{Key: r.Key, Object: obj, Err: perr}
		}
		return nil
	})
	return results, err
}
