// Package codec converts between caller-level values and the byte
// payloads carried by the broker transport.
package codec

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Codec encodes outbound values into payload bytes and decodes inbound
// payload bytes back into values. Implementations must be safe for
// concurrent use.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(payload []byte) (any, error)
}

type jsonCodec struct{}

// JSON returns the default codec. Values are marshaled to JSON on the
// way out. Inbound payloads that are valid JSON are unmarshaled; anything
// else is handed over as the raw payload text, so plain-string publishes
// from other clients on the same broker still route.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(payload []byte) (any, error) {
	if !gjson.ValidBytes(payload) {
		return string(payload), nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload), nil
	}
	return v, nil
}

type rawCodec struct{}

// Raw passes payloads through untouched. Encode accepts []byte or string
// values only; Decode yields the payload bytes as delivered.
func Raw() Codec { return rawCodec{} }

func (rawCodec) Encode(v any) ([]byte, error) {
	switch data := v.(type) {
	case []byte:
		return data, nil
	case string:
		return []byte(data), nil
	default:
		return nil, fmt.Errorf("raw codec: unsupported payload type %T", v)
	}
}

func (rawCodec) Decode(payload []byte) (any, error) {
	return payload, nil
}
