// Package rpb implements the framing layer of Riak's binary protocol:
// a 1-byte message code followed by an opaque, already-encoded body,
// carried inside a length-prefixed frame. It never looks inside a
// body; callers supply serialize/deserialize callbacks for the
// typed payload they expect.
package rpb

import "strconv"

// Code identifies the kind of a framed message.
type Code byte

// Message codes, per the Riak binary protocol. The core only needs
// to recognise these tags; the Protocol-Buffers-encoded bodies they
// carry are opaque to this package (see Serializer and Deserializer).
const (
	CodeErrorResp Code = 0

	CodePingReq  Code = 1
	CodePingResp Code = 2

	CodeGetClientIDReq  Code = 3
	CodeGetClientIDResp Code = 4
	CodeSetClientIDReq  Code = 5
	CodeSetClientIDResp Code = 6

	CodeGetServerInfoReq  Code = 7
	CodeGetServerInfoResp Code = 8

	CodeGetReq  Code = 9
	CodeGetResp Code = 10
	CodePutReq  Code = 11
	CodePutResp Code = 12
	CodeDelReq  Code = 13
	CodeDelResp Code = 14

	CodeListBucketsReq  Code = 15
	CodeListBucketsResp Code = 16
	CodeListKeysReq     Code = 17
	CodeListKeysResp    Code = 18

	CodeGetBucketReq  Code = 19
	CodeGetBucketResp Code = 20
	CodeSetBucketReq  Code = 21
	CodeSetBucketResp Code = 22

	CodeMapRedReq  Code = 23
	CodeMapRedResp Code = 24

	CodeResetBucketReq  Code = 29
	CodeResetBucketResp Code = 30

	CodeSearchQueryReq  Code = 27
	CodeSearchQueryResp Code = 28

	CodeIndexReq  Code = 25
	CodeIndexResp Code = 26

	CodeCounterUpdateReq  Code = 50
	CodeCounterUpdateResp Code = 51
	CodeCounterGetReq     Code = 52
	CodeCounterGetResp    Code = 53

	CodeDtFetchReq  Code = 80
	CodeDtFetchResp Code = 81
	CodeDtUpdateReq Code = 82
	CodeDtUpdateResp Code = 83
)

// String names a code for logging; unknown codes print numerically.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "code(" + strconv.Itoa(int(c)) + ")"
}

var codeNames = map[Code]string{
	CodeErrorResp:         "ErrorResp",
	CodePingReq:           "PingReq",
	CodePingResp:          "PingResp",
	CodeGetClientIDReq:    "GetClientIdReq",
	CodeGetClientIDResp:   "GetClientIdResp",
	CodeSetClientIDReq:    "SetClientIdReq",
	CodeSetClientIDResp:   "SetClientIdResp",
	CodeGetServerInfoReq:  "GetServerInfoReq",
	CodeGetServerInfoResp: "GetServerInfoResp",
	CodeGetReq:            "GetReq",
	CodeGetResp:           "GetResp",
	CodePutReq:            "PutReq",
	CodePutResp:           "PutResp",
	CodeDelReq:            "DelReq",
	CodeDelResp:           "DelResp",
	CodeListBucketsReq:    "ListBucketsReq",
	CodeListBucketsResp:   "ListBucketsResp",
	CodeListKeysReq:       "ListKeysReq",
	CodeListKeysResp:      "ListKeysResp",
	CodeGetBucketReq:      "GetBucketReq",
	CodeGetBucketResp:     "GetBucketResp",
	CodeSetBucketReq:      "SetBucketReq",
	CodeSetBucketResp:     "SetBucketResp",
	CodeMapRedReq:         "MapRedReq",
	CodeMapRedResp:        "MapRedResp",
	CodeResetBucketReq:    "ResetBucketReq",
	CodeResetBucketResp:   "ResetBucketResp",
	CodeSearchQueryReq:    "SearchQueryReq",
	CodeSearchQueryResp:   "SearchQueryResp",
	CodeIndexReq:          "IndexReq",
	CodeIndexResp:         "IndexResp",
	CodeCounterUpdateReq:  "CounterUpdateReq",
	CodeCounterUpdateResp: "CounterUpdateResp",
	CodeCounterGetReq:     "CounterGetReq",
	CodeCounterGetResp:    "CounterGetResp",
	CodeDtFetchReq:        "DtFetchReq",
	CodeDtFetchResp:       "DtFetchResp",
	CodeDtUpdateReq:       "DtUpdateReq",
	CodeDtUpdateResp:      "DtUpdateResp",
}
