package rpb

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	require.NoError(t, c.Write(CodePingReq, nil))
	code, body, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, CodePingReq, code)
	assert.Empty(t, body)
}

func TestWriteTypedReadTyped(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	type echo struct{ S string }
	ser := func(p interface{}) ([]byte, error) { return []byte(p.(*echo).S), nil }
	de := func(b []byte) (interface{}, error) { return &echo{S: string(b)}, nil }

	require.NoError(t, c.WriteTyped(CodeGetResp, &echo{S: "hello"}, ser))
	got, err := c.ReadTyped(CodeGetResp, de)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.(*echo).S)
}

func TestReadTypedCodeMismatch(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)
	require.NoError(t, c.Write(CodeGetResp, []byte("body")))
	de := func(b []byte) (interface{}, error) { return b, nil }
	_, err := c.ReadTyped(CodePutResp, de)
	require.Error(t, err)
	mismatch, ok := err.(*CodeMismatchError)
	require.True(t, ok)
	assert.Equal(t, CodePutResp, mismatch.Expected)
	assert.Equal(t, CodeGetResp, mismatch.Got)
}

func TestReadTypedErrorResp(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)
	require.NoError(t, c.Write(CodeErrorResp, []byte("no such bucket")))
	de := func(b []byte) (interface{}, error) { return b, nil }
	_, err := c.ReadTyped(CodeGetResp, de)
	require.Error(t, err)
	remoteErr, ok := err.(*RemoteError)
	require.True(t, ok)
	assert.Equal(t, "no such bucket", remoteErr.Message)
}

func TestReadZeroLengthFrameIsProtocolError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0}) // length 0
	c := New(&buf)
	_, _, err := c.Read()
	require.Error(t, err)
}

func TestReadOverPipeHandlesPartialWrites(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := New(server)
		code, body, err := sc.Read()
		assert.NoError(t, err)
		assert.Equal(t, CodePutReq, code)
		assert.Equal(t, []byte("payload"), body)
	}()

	cc := New(client)
	require.NoError(t, client.SetWriteDeadline(time.Now().Add(time.Second)))
	require.NoError(t, cc.Write(CodePutReq, []byte("payload")))
	<-done
}

func TestReadConnectionClosedMidFrame(t *testing.T) {
	server, client := net.Pipe()
	cc := New(server)
	go func() {
		// write only the length prefix, then close before the body arrives
		_, _ = client.Write([]byte{0, 0, 0, 10})
		_ = client.Close()
	}()
	_, _, err := cc.Read()
	require.Error(t, err)
}
