package riak

import (
	"context"
	"fmt"

	"github.com/riakclient/goriak/internal/cluster"
	"github.com/riakclient/goriak/internal/conn"
	"github.com/riakclient/goriak/internal/rpb"
)

// BatchSession exposes the subset of Client's operations that make
// sense inside a pinned-connection batch: every call runs against the
// same borrowed connection instead of letting the dispatcher pick a
// fresh node per call (spec §4.F).
type BatchSession struct {
	c         *conn.Connection
	unhealthy bool
}

// Batch borrows one connection from one eligible node, pins it for the
// duration of fn, and releases it when fn returns. fn's own error
// becomes a CodeBatchException rather than a communication-class
// failure — the connection stays in the pool unless an operation
// inside fn actually broke it. At most one retry is attempted, and
// only on the initial borrow: once fn has started running against a
// connection, a failure inside it is never used as grounds to re-run
// fn against a different node (that would mean calling fn twice).
func (c *Client) Batch(ctx context.Context, fn func(*BatchSession) error) error {
	outcome := c.cl.UseConnectionWithRetries(ctx, 1, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		b := &BatchSession{c: conn}
		err := runBatchFunc(b, fn)
		if err != nil {
			return cluster.Outcome{Err: WrapError(CodeBatchException, err, err.Error()), Unhealthy: b.unhealthy}
		}
		return cluster.Outcome{Unhealthy: b.unhealthy}
	})
	return toError(outcome.Err)
}

func runBatchFunc(b *BatchSession, fn func(*BatchSession) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch: panic: %v", r)
		}
	}()
	return fn(b)
}

func (b *BatchSession) markUnhealthy(err error) error {
	if err == nil {
		return nil
	}
	if _, isRemote := err.(*rpb.RemoteError); !isRemote {
		b.unhealthy = true
	}
	return err
}

// Get mirrors Client.Get, against the session's pinned connection.
func (b *BatchSession) Get(ctx context.Context, key Key, opts *GetOptions) (Object, error) {
	if err := key.validate(true); err != nil {
		return Object{}, err
	}
	if opts == nil {
		opts = &GetOptions{}
	}
	req := &getRequest{Type: key.BucketType, Bucket: key.Bucket, Key: key.Key, Options: populateMap(opts.Populate)}
	resp, err := b.c.WriteReadTyped(req, rpb.CodeGetReq, serializeJSON, rpb.CodeGetResp, deserializeJSONInto(&getResponse{}))
	if b.markUnhealthy(err); err != nil {
		return Object{}, toError(err)
	}
	r := resp.(*getResponse)
	if len(r.CausalVector) == 0 || len(r.Contents) == 0 {
		return Object{}, NewError(CodeNotFound, "no value at "+key.Bucket+"/"+key.Key)
	}
	contents := make([]Content, len(r.Contents))
	for i, rc := range r.Contents {
		contents[i] = toContent(rc)
	}
	return buildSiblings(key, r.CausalVector, contents), nil
}

// Put mirrors Client.Put, against the session's pinned connection.
func (b *BatchSession) Put(ctx context.Context, key Key, content Content, opts *PutOptions) (Object, error) {
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
	resp, err := b.c.WriteReadTyped(req, rpb.CodePutReq, serializeJSON, rpb.CodePutResp, deserializeJSONInto(&putResponse{}))
	if b.markUnhealthy(err); err != nil {
		return Object{}, toError(err)
	}
	r := resp.(*putResponse)
	resultKey := key
	if resultKey.Key == "" {
		resultKey.Key = r.Key
	}
	if len(r.Contents) == 0 {
		return Object{Key: resultKey, CausalVector: r.CausalVector, Content: content}, nil
	}
	contents := make([]Content, len(r.Contents))
	for i, rc := range r.Contents {
		contents[i] = toContent(rc)
	}
	return buildSiblings(resultKey, r.CausalVector, contents), nil
}

// Delete mirrors Client.Delete, against the session's pinned connection.
func (b *BatchSession) Delete(ctx context.Context, key Key, opts *DeleteOptions) error {
	if err := key.validate(true); err != nil {
		return err
	}
	if opts == nil {
		opts = &DeleteOptions{}
	}
	req := &delRequest{Type: key.BucketType, Bucket: key.Bucket, Key: key.Key, Options: populateMap(opts.Populate)}
	_, err := b.c.WriteReadTyped(req, rpb.CodeDelReq, serializeJSON, rpb.CodeDelResp, deserializeJSONInto(&struct{}{}))
	b.markUnhealthy(err)
	return toError(err)
}
