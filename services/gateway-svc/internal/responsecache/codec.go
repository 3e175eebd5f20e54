package responsecache

import "encoding/json"

// encode/decode use plain JSON framing for the Entry envelope; the cached
// RPC response bytes inside stay opaque (they are already a JSON-RPC
// payload, but this package never inspects their contents, only passes
// them through).
func encode(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decode(raw []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
