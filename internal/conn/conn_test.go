package conn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riakclient/goriak/internal/rpb"
)

// newPipeConnection builds a Connection over one end of a net.Pipe,
// with the other end handed back so tests can act as the fake server.
func newPipeConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c := &Connection{
		cfg:   Config{ReadTimeout: time.Second, WriteTimeout: time.Second},
		nc:    client,
		codec: rpb.New(client),
	}
	t.Cleanup(func() { _ = client.Close(); _ = server.Close() })
	return c, server
}

func TestWriteReadPingStyle(t *testing.T) {
	c, server := newPipeConnection(t)
	go func() {
		sc := rpb.New(server)
		code, _, err := sc.Read()
		assert.NoError(t, err)
		assert.Equal(t, rpb.CodePingReq, code)
		assert.NoError(t, sc.Write(rpb.CodePingResp, nil))
	}()
	require.NoError(t, c.WriteRead(rpb.CodePingReq, rpb.CodePingResp))
	assert.False(t, c.Broken())
}

func TestWriteReadWrongCodeMarksBroken(t *testing.T) {
	c, server := newPipeConnection(t)
	go func() {
		sc := rpb.New(server)
		_, _, _ = sc.Read()
		_ = sc.Write(rpb.CodeGetResp, nil) // wrong code on purpose
	}()
	err := c.WriteRead(rpb.CodePingReq, rpb.CodePingResp)
	require.Error(t, err)
	assert.True(t, c.Broken())
}

func TestWriteReadTypedRemoteErrorDoesNotMarkBroken(t *testing.T) {
	c, server := newPipeConnection(t)
	ser := func(p interface{}) ([]byte, error) { return nil, nil }
	de := func(b []byte) (interface{}, error) { return b, nil }
	go func() {
		sc := rpb.New(server)
		_, _, _ = sc.Read()
		_ = sc.Write(rpb.CodeErrorResp, []byte("no such bucket"))
	}()
	_, err := c.WriteReadTyped(struct{}{}, rpb.CodeGetReq, ser, rpb.CodeGetResp, de)
	require.Error(t, err)
	_, isRemote := err.(*rpb.RemoteError)
	assert.True(t, isRemote)
	assert.False(t, c.Broken())
}

func TestWriteReadStreamingCollectsUntilLast(t *testing.T) {
	c, server := newPipeConnection(t)
	ser := func(p interface{}) ([]byte, error) { return nil, nil }
	type frame struct {
		keys []string
		done bool
	}
	isLast := func(v interface{}) bool { return v.(frame).done }

	go func() {
		sc := rpb.New(server)
		_, _, _ = sc.Read()
		_ = sc.Write(rpb.CodeListKeysResp, []byte("a"))
		_ = sc.Write(rpb.CodeListKeysResp, []byte("b"))
	}()

	// de2 marks the second decoded frame done by counting its calls
	var n int
	de2 := func(b []byte) (interface{}, error) {
		n++
		return frame{keys: []string{string(b)}, done: n == 2}, nil
	}
	out, err := c.WriteReadStreaming(struct{}{}, rpb.CodeListKeysReq, ser, rpb.CodeListKeysResp, de2, isLast)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].(frame).keys[0])
	assert.Equal(t, "b", out[1].(frame).keys[0])
}

func TestWriteReadStreamingDelayedInvokesOnFinishOnce(t *testing.T) {
	c, server := newPipeConnection(t)
	ser := func(p interface{}) ([]byte, error) { return nil, nil }
	type frame struct{ done bool }
	var n int
	de := func(b []byte) (interface{}, error) {
		n++
		return frame{done: n == 2}, nil
	}
	isLast := func(v interface{}) bool { return v.(frame).done }

	go func() {
		sc := rpb.New(server)
		_, _, _ = sc.Read()
		_ = sc.Write(rpb.CodeListKeysResp, []byte("a"))
		_ = sc.Write(rpb.CodeListKeysResp, []byte("b"))
	}()

	var finishCount int
	handle, err := c.WriteReadStreamingDelayed(struct{}{}, rpb.CodeListKeysReq, ser, rpb.CodeListKeysResp, de, isLast, func() {
		finishCount++
	})
	require.NoError(t, err)

	_, done, err := handle.Next()
	require.NoError(t, err)
	require.False(t, done)
	_, done, err = handle.Next()
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, 1, finishCount)

	// Close after full drain is a no-op, not a second fire.
	handle.Close()
	assert.Equal(t, 1, finishCount)
}

func TestWriteReadStreamingDelayedCloseEarlyFiresOnFinishOnce(t *testing.T) {
	c, server := newPipeConnection(t)
	ser := func(p interface{}) ([]byte, error) { return nil, nil }
	de := func(b []byte) (interface{}, error) { return b, nil }
	isLast := func(v interface{}) bool { return false }

	go func() {
		sc := rpb.New(server)
		_, _, _ = sc.Read()
		_ = sc.Write(rpb.CodeListKeysResp, []byte("a"))
	}()

	var finishCount int
	handle, err := c.WriteReadStreamingDelayed(struct{}{}, rpb.CodeListKeysReq, ser, rpb.CodeListKeysResp, de, isLast, func() {
		finishCount++
	})
	require.NoError(t, err)
	handle.Close()
	handle.Close()
	assert.Equal(t, 1, finishCount)
}
