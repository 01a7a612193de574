package api

import (
	"encoding/json"
	"fmt"
)

// CodecName is registered with connect for "application/json" and
// "application/connect+json" payloads.
const CodecName = "json"

// JSONCodec marshals plain Go structs with encoding/json. It replaces
// connect's default JSON codec, which only accepts protobuf messages.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecName }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode %T: %w", msg, err)
	}
	return nil
}
