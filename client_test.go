package riak

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riakclient/goriak/internal/rpb"
)

// fakeServer starts a real loopback TCP listener and runs handle once
// per accepted connection, so Client-level tests exercise the whole
// stack (cluster -> pool -> conn -> rpb) over a real socket rather
// than reaching into any layer's internals.
func fakeServer(t *testing.T, handle func(sc *rpb.Codec)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(rpb.New(nc))
		}
	}()
	return ln.Addr().String()
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := NewClient(ClusterConfig{
		Nodes:          []NodeConfig{{Name: "n1", Addr: addr, PoolCapacity: 2, ConnectTimeout: time.Second}},
		Retries:        1,
		CooldownWindow: time.Minute,
		Logger:         NewDiscardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientPing(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		code, _, err := sc.Read()
		if err != nil || code != rpb.CodePingReq {
			return
		}
		_ = sc.Write(rpb.CodePingResp, nil)
	})
	c := newTestClient(t, addr)
	require.NoError(t, c.Ping(context.Background()))
}

func TestClientGetRoundTripsKeyAndCausalVector(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		code, body, err := sc.Read()
		if err != nil || code != rpb.CodeGetReq {
			return
		}
		var req getRequest
		_ = json.Unmarshal(body, &req)
		resp, _ := json.Marshal(getResponse{
			CausalVector: []byte("vclock-1"),
			Contents:     []rawContent{{Value: []byte("hello " + req.Key), ContentType: "text/plain"}},
		})
		_ = sc.Write(rpb.CodeGetResp, resp)
	})
	c := newTestClient(t, addr)
	obj, err := c.Get(context.Background(), Key{Bucket: "b", Key: "k1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello k1", string(obj.Content.Value))
	assert.Equal(t, []byte("vclock-1"), obj.CausalVector)
	assert.False(t, obj.HasSiblings())
}

func TestClientGetNotFoundWhenNoCausalVector(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		code, _, err := sc.Read()
		if err != nil || code != rpb.CodeGetReq {
			return
		}
		resp, _ := json.Marshal(getResponse{})
		_ = sc.Write(rpb.CodeGetResp, resp)
	})
	c := newTestClient(t, addr)
	_, err := c.Get(context.Background(), Key{Bucket: "b", Key: "missing"}, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClientGetSiblingsShareCausalVector(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		code, _, err := sc.Read()
		if err != nil || code != rpb.CodeGetReq {
			return
		}
		resp, _ := json.Marshal(getResponse{
			CausalVector: []byte("shared-vclock"),
			Contents: []rawContent{
				{Value: []byte("a")},
				{Value: []byte("b")},
			},
		})
		_ = sc.Write(rpb.CodeGetResp, resp)
	})
	c := newTestClient(t, addr)
	obj, err := c.Get(context.Background(), Key{Bucket: "b", Key: "k"}, nil)
	require.NoError(t, err)
	require.True(t, obj.HasSiblings())
	require.Len(t, obj.Siblings, 2)
	for _, s := range obj.Siblings {
		assert.Equal(t, []byte("shared-vclock"), s.CausalVector)
	}
}

func TestClientPutReturnsBodyAndMintedKey(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		code, _, err := sc.Read()
		if err != nil || code != rpb.CodePutReq {
			return
		}
		resp, _ := json.Marshal(putResponse{
			Key:          "minted-key",
			CausalVector: []byte("vclock-2"),
			Contents:     []rawContent{{Value: []byte("stored")}},
		})
		_ = sc.Write(rpb.CodePutResp, resp)
	})
	c := newTestClient(t, addr)
	obj, err := c.Put(context.Background(), Key{Bucket: "b"}, Content{Value: []byte("stored")}, &PutOptions{ReturnBody: true})
	require.NoError(t, err)
	assert.Equal(t, "minted-key", obj.Key.Key)
	assert.Equal(t, []byte("vclock-2"), obj.CausalVector)
}

func TestClientDeleteSucceeds(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		code, _, err := sc.Read()
		if err != nil || code != rpb.CodeDelReq {
			return
		}
		_ = sc.Write(rpb.CodeDelResp, nil)
	})
	c := newTestClient(t, addr)
	require.NoError(t, c.Delete(context.Background(), Key{Bucket: "b", Key: "k"}, nil))
}

func TestClientCounterGetAndIncrement(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		for {
			code, _, err := sc.Read()
			if err != nil {
				return
			}
			switch code {
			case rpb.CodeDtFetchReq:
				resp, _ := json.Marshal(dtFetchResponse{Counter: 7})
				_ = sc.Write(rpb.CodeDtFetchResp, resp)
			case rpb.CodeDtUpdateReq:
				resp, _ := json.Marshal(dtUpdateResponse{Counter: 9})
				_ = sc.Write(rpb.CodeDtUpdateResp, resp)
			}
		}
	})
	c := newTestClient(t, addr)
	v, err := c.GetCounter(context.Background(), Key{Bucket: "counters", Key: "visits"})
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)

	v2, err := c.IncrementCounter(context.Background(), Key{Bucket: "counters", Key: "visits"}, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 9, v2)
}

func TestClientMultiGetUsesOneConnectionAndTolerateErrors(t *testing.T) {
	var connCount int32
	addr := fakeServer(t, func(sc *rpb.Codec) {
		connCount++
		for {
			code, body, err := sc.Read()
			if err != nil {
				return
			}
			if code != rpb.CodeGetReq {
				return
			}
			var req getRequest
			_ = json.Unmarshal(body, &req)
			if req.Key == "bad" {
				_ = sc.Write(rpb.CodeErrorResp, []byte("no such key"))
				continue
			}
			resp, _ := json.Marshal(getResponse{CausalVector: []byte("v"), Contents: []rawContent{{Value: []byte(req.Key)}}})
			_ = sc.Write(rpb.CodeGetResp, resp)
		}
	})
	c := newTestClient(t, addr)
	results, err := c.MultiGet(context.Background(), []Key{
		{Bucket: "b", Key: "ok1"},
		{Bucket: "b", Key: "bad"},
		{Bucket: "b", Key: "ok2"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "ok2", string(results[2].Object.Content.Value))
	assert.EqualValues(t, 1, connCount, "all three gets should share one pinned connection")
}

func TestClientListKeysDedupesAcrossFrames(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		code, _, err := sc.Read()
		if err != nil || code != rpb.CodeListKeysReq {
			return
		}
		f1, _ := json.Marshal(listKeysResponse{Keys: []string{"a", "b"}})
		f2, _ := json.Marshal(listKeysResponse{Keys: []string{"b", "c"}, Done: true})
		_ = sc.Write(rpb.CodeListKeysResp, f1)
		_ = sc.Write(rpb.CodeListKeysResp, f2)
	})
	c := newTestClient(t, addr)
	keys, err := c.ListKeys(context.Background(), "", "b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
}

func TestClientStreamListKeysDrainsAndReleasesOnce(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		code, _, err := sc.Read()
		if err != nil || code != rpb.CodeListKeysReq {
			return
		}
		f1, _ := json.Marshal(listKeysResponse{Keys: []string{"a", "b"}})
		f2, _ := json.Marshal(listKeysResponse{Keys: []string{"b"}})
		f3, _ := json.Marshal(listKeysResponse{Keys: []string{"c"}, Done: true})
		_ = sc.Write(rpb.CodeListKeysResp, f1)
		_ = sc.Write(rpb.CodeListKeysResp, f2)
		_ = sc.Write(rpb.CodeListKeysResp, f3)
	})
	c := newTestClient(t, addr)
	stream, err := c.StreamListKeys(context.Background(), "", "b")
	require.NoError(t, err)

	var got []string
	for {
		k, ok, nerr := stream.Next()
		if !ok {
			require.NoError(t, nerr)
			break
		}
		got = append(got, k)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)

	// Further calls after exhaustion are a no-op, not a second release.
	_, ok, nerr := stream.Next()
	assert.False(t, ok)
	assert.NoError(t, nerr)
	stream.Close()
}

func TestClientBatchErrorBecomesBatchExceptionAndReleasesConnection(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		for {
			code, _, err := sc.Read()
			if err != nil || code != rpb.CodePingReq {
				return
			}
			_ = sc.Write(rpb.CodePingResp, nil)
		}
	})
	c := newTestClient(t, addr)

	errBoom := fmt.Errorf("boom")
	err := c.Batch(context.Background(), func(b *BatchSession) error {
		return errBoom
	})
	require.Error(t, err)
	assert.Equal(t, CodeBatchException, Code(err))

	// The connection the batch borrowed must still be usable afterward,
	// not discarded as broken just because fn itself failed.
	require.NoError(t, c.Ping(context.Background()))
}

func TestClientBatchPanicBecomesBatchExceptionAndReleasesConnection(t *testing.T) {
	addr := fakeServer(t, func(sc *rpb.Codec) {
		for {
			code, _, err := sc.Read()
			if err != nil || code != rpb.CodePingReq {
				return
			}
			_ = sc.Write(rpb.CodePingResp, nil)
		}
	})
	c := newTestClient(t, addr)

	err := c.Batch(context.Background(), func(b *BatchSession) error {
		panic("batch blew up")
	})
	require.Error(t, err)
	assert.Equal(t, CodeBatchException, Code(err))

	require.NoError(t, c.Ping(context.Background()))
}
