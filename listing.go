package riak

import (
	"context"
	"runtime"

	"github.com/riakclient/goriak/internal/cluster"
	"github.com/riakclient/goriak/internal/conn"
	"github.com/riakclient/goriak/internal/rpb"
)

// ListKeys lists every key in a bucket. The server streams keys across
// several frames and may repeat a key across frames under concurrent
// writes; this collects and dedupes them into one slice. Riak's own
// documentation calls this operation expensive (full coverage scan),
// so every call logs an advisory warning before dispatching it.
func (c *Client) ListKeys(ctx context.Context, bucketType, bucket string) ([]string, error) {
	if err := validateComponent("bucket", bucket); err != nil {
		return nil, err
	}
	c.log.Warnf("riak: list-keys on %s/%s is a full-bucket scan; avoid in request paths", bucketType, bucket)

	req := &listKeysRequest{Type: bucketType, Bucket: bucket}
	isLast := func(v interface{}) bool { return v.(*listKeysResponse).Done }

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		frames, err := conn.WriteReadStreaming(req, rpb.CodeListKeysReq, serializeJSON,
			rpb.CodeListKeysResp, deserializeListKeys, isLast)
		return commOutcome(frames, err)
	})
	if outcome.Err != nil {
		return nil, toError(outcome.Err)
	}

	seen := map[string]bool{}
	var keys []string
	for _, f := range outcome.Value.([]interface{}) {
		for _, k := range f.(*listKeysResponse).Keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// deserializeListKeys allocates a fresh response per frame, unlike
// deserializeJSONInto's single shared target, since WriteReadStreaming
// retains every decoded frame.
func deserializeListKeys(body []byte) (interface{}, error) {
	return deserializeJSONInto(&listKeysResponse{})(body)
}

// ListBuckets lists every bucket under a bucket-type. Like ListKeys,
// this is a full scan and logs an advisory warning.
func (c *Client) ListBuckets(ctx context.Context, bucketType string) ([]string, error) {
	c.log.Warnf("riak: list-buckets on type %q is a full cluster scan; avoid in request paths", bucketType)

	req := &listBucketsRequest{Type: bucketType}
	isLast := func(v interface{}) bool { return v.(*listBucketsResponse).Done }

	outcome := c.cl.UseConnection(ctx, func(ctx context.Context, conn *conn.Connection) cluster.Outcome {
		frames, err := conn.WriteReadStreaming(req, rpb.CodeListBucketsReq, serializeJSON,
			rpb.CodeListBucketsResp, deserializeListBuckets, isLast)
		return commOutcome(frames, err)
	})
	if outcome.Err != nil {
		return nil, toError(outcome.Err)
	}

	seen := map[string]bool{}
	var buckets []string
	for _, f := range outcome.Value.([]interface{}) {
		for _, b := range f.(*listBucketsResponse).Buckets {
			if !seen[b] {
				seen[b] = true
				buckets = append(buckets, b)
			}
		}
	}
	return buckets, nil
}

func deserializeListBuckets(body []byte) (interface{}, error) {
	return deserializeJSONInto(&listBucketsResponse{})(body)
}

// KeyStream is the lazily-drained counterpart to ListKeys: instead of
// eagerly collecting every frame before returning, StreamListKeys
// hands back a KeyStream the caller pulls at its own pace, pinning the
// connection only until the stream is exhausted or Close is called —
// per spec §9's "resource-scoped iterator with a guaranteed-release
// finalizer". Keys are deduplicated across frames the same way
// ListKeys dedupes them in bulk.
type KeyStream struct {
	handle *conn.StreamHandle
	seen   map[string]bool
	queue  []string
	err    error
	closed bool
}

// Next returns the next not-yet-seen key. ok is false once the stream
// is exhausted (err nil) or failed (err non-nil); callers must stop
// calling Next at that point, matching the done/error contract on
// conn.StreamHandle.
func (s *KeyStream) Next() (key string, ok bool, err error) {
	for {
		if len(s.queue) > 0 {
			key, s.queue = s.queue[0], s.queue[1:]
			return key, true, nil
		}
		if s.closed {
			return "", false, s.err
		}
		resp, done, err := s.handle.Next()
		if err != nil {
			s.closed, s.err = true, err
			return "", false, err
		}
		if resp != nil {
			for _, k := range resp.(*listKeysResponse).Keys {
				if !s.seen[k] {
					s.seen[k] = true
					s.queue = append(s.queue, k)
				}
			}
		}
		if done {
			s.closed = true
		}
	}
}

// Close releases the underlying connection early if the caller
// abandons the stream before it is exhausted; a no-op if already
// finished. Safe to call more than once.
func (s *KeyStream) Close() {
	s.handle.Close()
}

// StreamListKeys is ListKeys's lazy counterpart: the caller drains
// keys one at a time via KeyStream.Next rather than waiting for every
// frame up front. The underlying connection is released exactly once,
// on full drain or on Close — whichever comes first (spec §4.B, §8
// scenario 6) — and a finalizer guards against a caller that drops the
// stream without calling Close.
func (c *Client) StreamListKeys(ctx context.Context, bucketType, bucket string) (*KeyStream, error) {
	if err := validateComponent("bucket", bucket); err != nil {
		return nil, err
	}
	c.log.Warnf("riak: stream-list-keys on %s/%s is a full-bucket scan; avoid in request paths", bucketType, bucket)

	req := &listKeysRequest{Type: bucketType, Bucket: bucket}
	isLast := func(v interface{}) bool { return v.(*listKeysResponse).Done }

	var stream *KeyStream
	outcome := c.cl.UseDelayedConnection(ctx, func(ctx context.Context, cn *conn.Connection, release func()) cluster.Outcome {
		handle, err := cn.WriteReadStreamingDelayed(req, rpb.CodeListKeysReq, serializeJSON,
			rpb.CodeListKeysResp, deserializeListKeys, isLast, release)
		if err != nil {
			return commOutcome(nil, err)
		}
		stream = &KeyStream{handle: handle, seen: map[string]bool{}}
		return cluster.Outcome{}
	})
	if outcome.Err != nil {
		return nil, toError(outcome.Err)
	}
	runtime.SetFinalizer(stream, (*KeyStream).Close)
	return stream, nil
}
