package riak

import "strings"

// Key identifies an object: an optional bucket-type (absent on older
// servers), a bucket, and a key. None of the three may be empty where
// present, and none may contain a forward slash — the façade validates
// this locally before ever touching the wire.
type Key struct {
	BucketType string // optional
	Bucket     string
	Key        string
}

// validate enforces the non-empty, no-slash rule from spec §3.
// requireKey controls whether Key.Key is checked at all: Put and
// DtUpdate pass false, since the server mints a key when it is empty.
func (k Key) validate(requireKey bool) error {
	if err := validateComponent("bucket", k.Bucket); err != nil {
		return err
	}
	if k.BucketType != "" {
		if err := validateComponent("bucket-type", k.BucketType); err != nil {
			return err
		}
	}
	if requireKey {
		if err := validateComponent("key", k.Key); err != nil {
			return err
		}
	}
	return nil
}

func validateComponent(name, value string) error {
	if value == "" {
		return validationError("%s must not be empty", name)
	}
	if strings.Contains(value, "/") {
		return validationError("%s must not contain '/'", name)
	}
	return nil
}

// Content is one version of a value stored at a Key: the raw bytes
// plus whatever content metadata the server attaches (content type,
// user metadata, etc. — kept opaque here; see ContentMeta).
type Content struct {
	Value []byte
	Meta  ContentMeta
}

// ContentMeta carries the handful of content-level fields the façade
// cares about: content type, vtag, secondary-index entries and links.
// User metadata pairs are not carried.
type ContentMeta struct {
	ContentType string
	VTag        string
	Indexes     map[string][]string // secondary-index name -> values
	Links       []Link
}

// Link is one Riak link-walking edge attached to an object's content:
// a reference to another key, tagged with an application-defined
// relation name.
type Link struct {
	Bucket string
	Key    string
	Tag    string
}

// Object is the façade-level value returned by Get and (optionally) by
// Put: a key, a causal vector, a primary content, and — only when the
// server returned more than one content for the same causal vector —
// the full sibling set.
type Object struct {
	Key
	CausalVector []byte
	Content      Content
	// Siblings holds every content the server returned, including the
	// one duplicated into Content, whenever more than one came back.
	// It is nil when the get was unambiguous.
	Siblings []Object
}

// HasSiblings reports whether the server returned concurrent values.
func (o *Object) HasSiblings() bool { return len(o.Siblings) > 1 }

// buildSiblings turns a list of raw contents sharing one causal vector
// into the façade's Object+Siblings shape: primary = first content,
// Siblings = every content (so each sibling itself carries the full
// causal vector, per spec §8 "every sibling shares the same causal
// vector").
func buildSiblings(key Key, vclock []byte, contents []Content) Object {
	obj := Object{Key: key, CausalVector: vclock, Content: contents[0]}
	if len(contents) > 1 {
		obj.Siblings = make([]Object, len(contents))
		for i, c := range contents {
			obj.Siblings[i] = Object{Key: key, CausalVector: vclock, Content: c}
		}
	}
	return obj
}
