package riak

import "encoding/json"

// The concrete shape and encoding of a message body is out of scope
// for this core (spec §1): a real deployment generates these types
// and their Protocol-Buffers marshal/unmarshal methods from Basho's
// .proto definitions. What this core owns is everything around that
// boundary — framing, pooling, dispatch, retry, the façade's request/
// response mapping — so the types below are the minimal stand-ins
// that let every façade operation exercise that boundary end to end.
// serializeJSON/deserializeJSON satisfy rpb.Serializer/Deserializer
// using encoding/json in place of the real protobuf codec generated
// code would provide.

func serializeJSON(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

func deserializeJSONInto(out interface{}) func([]byte) (interface{}, error) {
	return func(body []byte) (interface{}, error) {
		if len(body) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// populateMap adapts the per-operation Options.Populate contract onto
// a plain map, which every request struct below embeds under Extra.
func populateMap(fn func(set func(string, interface{}))) map[string]interface{} {
	m := map[string]interface{}{}
	fn(func(field string, value interface{}) { m[field] = value })
	return m
}

// --- request bodies ---

type getRequest struct {
	Type    string                 `json:"type,omitempty"`
	Bucket  string                 `json:"bucket"`
	Key     string                 `json:"key"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type putRequest struct {
	Type         string                 `json:"type,omitempty"`
	Bucket       string                 `json:"bucket"`
	Key          string                 `json:"key,omitempty"`
	CausalVector []byte                 `json:"vclock,omitempty"`
	Value        []byte                 `json:"value"`
	ContentType  string                 `json:"content_type,omitempty"`
	Indexes      map[string][]string    `json:"indexes,omitempty"`
	Options      map[string]interface{} `json:"options,omitempty"`
}

type delRequest struct {
	Type    string                 `json:"type,omitempty"`
	Bucket  string                 `json:"bucket"`
	Key     string                 `json:"key"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type listKeysRequest struct {
	Type   string `json:"type,omitempty"`
	Bucket string `json:"bucket"`
}

type listBucketsRequest struct {
	Type string `json:"type,omitempty"`
}

type indexRequest struct {
	Type        string                 `json:"type,omitempty"`
	Bucket      string                 `json:"bucket"`
	Index       string                 `json:"index"`
	Qtype       string                 `json:"qtype"`
	Key         string                 `json:"key,omitempty"`
	RangeMin    string                 `json:"range_min,omitempty"`
	RangeMax    string                 `json:"range_max,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

type mapReduceRequest struct {
	Query   json.RawMessage        `json:"query"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type searchRequest struct {
	Index string `json:"index"`
	Query string `json:"query"`
}

type dtFetchRequest struct {
	Type    string                 `json:"type"`
	Bucket  string                 `json:"bucket"`
	Key     string                 `json:"key"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type dtUpdateRequest struct {
	Type    string                 `json:"type"`
	Bucket  string                 `json:"bucket"`
	Key     string                 `json:"key,omitempty"`
	Op      DtUpdate               `json:"op"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type clientIDRequest struct {
	ClientID []byte `json:"client_id,omitempty"`
}

// --- response bodies ---

type getResponse struct {
	CausalVector []byte        `json:"vclock"`
	Contents     []rawContent  `json:"contents"`
	Unchanged    bool          `json:"unchanged"`
}

type rawContent struct {
	Value       []byte              `json:"value"`
	ContentType string              `json:"content_type"`
	VTag        string              `json:"vtag"`
	Indexes     map[string][]string `json:"indexes,omitempty"`
	Links       []rawLink           `json:"links,omitempty"`
}

type rawLink struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Tag    string `json:"tag"`
}

type putResponse struct {
	CausalVector []byte       `json:"vclock"`
	Key          string       `json:"key"`
	Contents     []rawContent `json:"contents"`
}

type listKeysResponse struct {
	Keys []string `json:"keys"`
	Done bool     `json:"done"`
}

type listBucketsResponse struct {
	Buckets []string `json:"buckets"`
	Done    bool     `json:"done"`
}

type indexResponse struct {
	Keys         []string `json:"keys"`
	Terms        map[string]string `json:"terms,omitempty"`
	Continuation []byte   `json:"continuation,omitempty"`
	Done         bool     `json:"done"`
}

type mapReduceResponse struct {
	Phase int             `json:"phase"`
	Data  json.RawMessage `json:"data"`
	Done  bool            `json:"done"`
}

type searchResponse struct {
	Docs    []map[string]interface{} `json:"docs"`
	NumFound uint32                  `json:"num_found"`
}

type dtFetchResponse struct {
	Type      string   `json:"type"`
	Counter   int64    `json:"counter_value"`
	Set       [][]byte `json:"set_value"`
	MapValue  rawMap   `json:"map_value"`
	Context   []byte   `json:"context"`
	NotFound  bool     `json:"notfound"`
}

type rawMapEntry struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
}

type rawMap struct {
	Counters  map[string]int64          `json:"counters,omitempty"`
	Sets      map[string][][]byte       `json:"sets,omitempty"`
	Registers map[string][]byte         `json:"registers,omitempty"`
	Flags     map[string]bool           `json:"flags,omitempty"`
	Maps      map[string]rawMap         `json:"maps,omitempty"`
}

type dtUpdateResponse struct {
	Key     string `json:"key,omitempty"`
	Context []byte `json:"context,omitempty"`
	Counter int64  `json:"counter_value,omitempty"`
	Set     [][]byte `json:"set_value,omitempty"`
	MapValue rawMap  `json:"map_value,omitempty"`
}

type pingResponse struct{}

type serverInfoResponse struct {
	Node         string `json:"node"`
	ServerVersion string `json:"server_version"`
}

type clientIDResponse struct {
	ClientID []byte `json:"client_id"`
}

func toContent(rc rawContent) Content {
	var links []Link
	for _, l := range rc.Links {
		links = append(links, Link{Bucket: l.Bucket, Key: l.Key, Tag: l.Tag})
	}
	return Content{Value: rc.Value, Meta: ContentMeta{ContentType: rc.ContentType, VTag: rc.VTag, Indexes: rc.Indexes, Links: links}}
}

func toMapValue(m rawMap) MapValue {
	v := newMapValue()
	for k, c := range m.Counters {
		v.Counters[k] = c
	}
	for k, s := range m.Sets {
		v.Sets[k] = s
	}
	for k, r := range m.Registers {
		v.Registers[k] = r
	}
	for k, f := range m.Flags {
		v.Flags[k] = f
	}
	for k, nested := range m.Maps {
		v.Maps[k] = toMapValue(nested)
	}
	return v
}
