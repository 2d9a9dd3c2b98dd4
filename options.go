package riak

import "time"

// Request is the minimal shape every outgoing typed payload in this
// core must satisfy so option records have something concrete to
// populate. Wire encoding of the payload itself is out of scope (spec
// §1); the façade only ever needs to stamp quorum/timeout/flag fields
// onto whatever concrete request type the caller's protobuf layer
// defines, which is why Populate takes a set(field, value) callback
// rather than a concrete request — each Options type reports only the
// fields it actually set, and the callback decides where they go.
type Request interface{}

// Quorum expresses the R/PR/W/DW/PW/RW knobs shared by several
// operations. A zero value means "let the server use the bucket
// default"; populate only ever writes fields the caller actually set.
type Quorum struct {
	R  *uint32
	PR *uint32
	W  *uint32
	DW *uint32
	PW *uint32
	RW *uint32
}

// GetOptions configures a Get.
type GetOptions struct {
	Quorum
	Timeout        time.Duration
	BasicQuorum    *bool
	NotFoundOK     *bool
	IfModified     []byte // causal vector: skip body if unchanged
	Head           bool   // metadata only, no value
	DeletedVClock  bool
}

// Populate passes only the fields this GetOptions actually set to
// set, one call per field; the façade collects them into the request's
// options map, which keeps it from needing to know a concrete protobuf
// type.
func (o *GetOptions) Populate(set func(field string, value interface{})) {
	o.Quorum.populate(set)
	if o.Timeout > 0 {
		set("timeout", o.Timeout)
	}
	if o.BasicQuorum != nil {
		set("basic_quorum", *o.BasicQuorum)
	}
	if o.NotFoundOK != nil {
		set("notfound_ok", *o.NotFoundOK)
	}
	if len(o.IfModified) > 0 {
		set("if_modified", o.IfModified)
	}
	if o.Head {
		set("head", true)
	}
	if o.DeletedVClock {
		set("deletedvclock", true)
	}
}

// PutOptions configures a Put.
type PutOptions struct {
	Quorum
	Timeout    time.Duration
	ReturnBody bool
	IfNoneMatch bool
	IfNotModified bool
}

func (o *PutOptions) Populate(set func(field string, value interface{})) {
	o.Quorum.populate(set)
	if o.Timeout > 0 {
		set("timeout", o.Timeout)
	}
	if o.ReturnBody {
		set("return_body", true)
	}
	if o.IfNoneMatch {
		set("if_none_match", true)
	}
	if o.IfNotModified {
		set("if_not_modified", true)
	}
}

// DeleteOptions configures a Delete.
type DeleteOptions struct {
	Quorum
	Timeout time.Duration
	// VClock is the causal vector observed via a prior Get; echoing it
	// expresses "I saw this version" (spec §3).
	VClock []byte
}

func (o *DeleteOptions) Populate(set func(field string, value interface{})) {
	o.Quorum.populate(set)
	if o.Timeout > 0 {
		set("timeout", o.Timeout)
	}
	if len(o.VClock) > 0 {
		set("vclock", o.VClock)
	}
}

// IndexOptions configures a secondary-index query.
type IndexOptions struct {
	Timeout      time.Duration
	ReturnTerms  bool
	MaxResults   uint32
	Continuation []byte
	Stream       bool
}

func (o *IndexOptions) Populate(set func(field string, value interface{})) {
	if o.Timeout > 0 {
		set("timeout", o.Timeout)
	}
	if o.ReturnTerms {
		set("return_terms", true)
	}
	if o.MaxResults > 0 {
		set("max_results", o.MaxResults)
	}
	if len(o.Continuation) > 0 {
		set("continuation", o.Continuation)
	}
	if o.Stream {
		set("stream", true)
	}
}

// MapReduceOptions configures a map-reduce submission.
type MapReduceOptions struct {
	Timeout   time.Duration
	ContentType string // e.g. "application/json"
}

func (o *MapReduceOptions) Populate(set func(field string, value interface{})) {
	if o.Timeout > 0 {
		set("timeout", o.Timeout)
	}
	if o.ContentType != "" {
		set("content_type", o.ContentType)
	}
}

// DtFetchOptions configures a CRDT fetch.
type DtFetchOptions struct {
	Quorum
	Timeout        time.Duration
	IncludeContext bool
	BasicQuorum    *bool
	NotFoundOK     *bool
}

func (o *DtFetchOptions) Populate(set func(field string, value interface{})) {
	o.Quorum.populate(set)
	if o.Timeout > 0 {
		set("timeout", o.Timeout)
	}
	if o.IncludeContext {
		set("include_context", true)
	}
	if o.BasicQuorum != nil {
		set("basic_quorum", *o.BasicQuorum)
	}
	if o.NotFoundOK != nil {
		set("notfound_ok", *o.NotFoundOK)
	}
}

// DtUpdateOptions configures a CRDT update.
type DtUpdateOptions struct {
	Quorum
	Timeout        time.Duration
	ReturnBody     bool
	IncludeContext bool
}

func (o *DtUpdateOptions) Populate(set func(field string, value interface{})) {
	o.Quorum.populate(set)
	if o.Timeout > 0 {
		set("timeout", o.Timeout)
	}
	if o.ReturnBody {
		set("return_body", true)
	}
	if o.IncludeContext {
		set("include_context", true)
	}
}

func (q Quorum) populate(set func(field string, value interface{})) {
	if q.R != nil {
		set("r", *q.R)
	}
	if q.PR != nil {
		set("pr", *q.PR)
	}
	if q.W != nil {
		set("w", *q.W)
	}
	if q.DW != nil {
		set("dw", *q.DW)
	}
	if q.PW != nil {
		set("pw", *q.PW)
	}
	if q.RW != nil {
		set("rw", *q.RW)
	}
}
