package rpb

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// maxFrameLen guards against a runaway length prefix turning a single
// bad frame into an unbounded allocation.
const maxFrameLen = 512 << 20 // 512MiB

// ErrProtocol marks a framing-level violation: truncated frame,
// length < 1, or a connection that closed mid-frame. Callers
// (internal/conn) treat it the same as any other communication
// failure and discard the connection.
var ErrProtocol = errors.New("rpb: protocol violation")

// Serializer encodes a typed payload to bytes.
type Serializer func(payload interface{}) ([]byte, error)

// Deserializer decodes bytes into a typed payload.
type Deserializer func(body []byte) (interface{}, error)

// RemoteError is the decoded body of an error-resp frame (code 0),
// which may arrive in place of any expected response code.
type RemoteError struct {
	Code    uint32
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Codec reads and writes framed messages on rw. It is stateless
// beyond the stream reference: no buffering is performed beyond what
// the transport itself does, so callers own read/write deadlines.
type Codec struct {
	rw io.ReadWriter

	// DecodeRemoteError turns an error-resp body into a *RemoteError.
	// Exposed so tests can swap in a fake without importing the real
	// wire-body decoder package, which sits outside this core's scope.
	DecodeRemoteError func(body []byte) (*RemoteError, error)
}

// New wraps rw in a Codec using the default error-resp decoder.
func New(rw io.ReadWriter) *Codec {
	return &Codec{rw: rw, DecodeRemoteError: decodeRemoteErrorDefault}
}

// Write serializes and flushes a raw (code, body) frame.
func (c *Codec) Write(code Code, body []byte) error {
	frame := make([]byte, 4+1+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(1+len(body)))
	frame[4] = byte(code)
	copy(frame[5:], body)
	_, err := c.rw.Write(frame)
	if err != nil {
		return errors.Wrap(err, "rpb: write frame")
	}
	return nil
}

// WriteTyped serializes payload with serialize and writes it under code.
func (c *Codec) WriteTyped(code Code, payload interface{}, serialize Serializer) error {
	body, err := serialize(payload)
	if err != nil {
		return errors.Wrap(err, "rpb: serialize request")
	}
	return c.Write(code, body)
}

// Read reads a single frame and returns its code and body.
func (c *Codec) Read() (Code, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.rw, lenBuf[:]); err != nil {
		return 0, nil, errors.Wrap(ErrProtocol, errClosedOrShort(err).Error())
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 1 {
		return 0, nil, errors.Wrap(ErrProtocol, "frame length < 1")
	}
	if length > maxFrameLen {
		return 0, nil, errors.Wrapf(ErrProtocol, "frame length %d exceeds maximum", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return 0, nil, errors.Wrap(ErrProtocol, errClosedOrShort(err).Error())
	}
	return Code(buf[0]), buf[1:], nil
}

// ReadTyped reads one frame and decodes it as expected, or as an
// error-resp if the server sent one in its place. A code that is
// neither expected nor error-resp is CodeMismatchError.
func (c *Codec) ReadTyped(expected Code, deserialize Deserializer) (interface{}, error) {
	code, body, err := c.Read()
	if err != nil {
		return nil, err
	}
	if code == CodeErrorResp {
		remoteErr, decodeErr := c.DecodeRemoteError(body)
		if decodeErr != nil {
			return nil, errors.Wrap(ErrProtocol, "decode error-resp: "+decodeErr.Error())
		}
		return nil, remoteErr
	}
	if code != expected {
		return nil, &CodeMismatchError{Expected: expected, Got: code}
	}
	payload, err := deserialize(body)
	if err != nil {
		return nil, errors.Wrap(ErrProtocol, "deserialize "+expected.String()+": "+err.Error())
	}
	return payload, nil
}

// CodeMismatchError is returned by ReadTyped when the server replied
// with a code that is neither the expected one nor error-resp.
type CodeMismatchError struct {
	Expected, Got Code
}

func (e *CodeMismatchError) Error() string {
	return "rpb: expected " + e.Expected.String() + ", got " + e.Got.String()
}

func errClosedOrShort(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.New("connection closed mid-frame")
	}
	return err
}

// decodeRemoteErrorDefault is a minimal error-resp body reader. The
// real Riak error-resp body is a small Protocol Buffers message
// (errmsg bytes, errcode uint32); decoding the wire format of
// individual message bodies is out of this core's scope (spec §1), so
// this default assumes the body is the UTF-8 message text with the
// code left at 0, and is intended to be overridden with a real PB
// decoder by the package wiring the core to an actual Riak server.
func decodeRemoteErrorDefault(body []byte) (*RemoteError, error) {
	return &RemoteError{Code: 0, Message: string(body)}, nil
}
