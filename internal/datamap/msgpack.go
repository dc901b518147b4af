package datamap

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	_ msgpack.CustomEncoder = (*Map)(nil)
	_ msgpack.CustomDecoder = (*Map)(nil)
)

// Encode serializes m with the worker wire codec.
func Encode(m *Map) ([]byte, error) {
	if m == nil {
		m = New()
	}
	raw, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("datamap: encode: %w", err)
	}
	return raw, nil
}

// Decode deserializes a Map produced by Encode.
func Decode(raw []byte) (*Map, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)
	m := New()
	if err := m.DecodeMsgpack(dec); err != nil {
		return nil, fmt.Errorf("datamap: decode: %w", err)
	}
	return m, nil
}

// EncodeMsgpack writes the map as a msgpack map in insertion order.
func (m *Map) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(m.Len()); err != nil {
		return err
	}
	for _, k := range m.keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := enc.Encode(m.values[k]); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return nil
}

// DecodeMsgpack reads a msgpack map keeping the encoded order. Nested maps
// become *Map as well.
func (m *Map) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	m.keys = make([]string, 0, max(n, 0))
	m.values = make(map[string]any, max(n, 0))
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		value, err := decodeValue(dec)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		m.Set(key, value)
	}
	return nil
}

func decodeValue(dec *msgpack.Decoder) (any, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case msgpcode.IsFixedMap(code) || code == msgpcode.Map16 || code == msgpcode.Map32:
		nested := New()
		if err := nested.DecodeMsgpack(dec); err != nil {
			return nil, err
		}
		return nested, nil
	case msgpcode.IsFixedArray(code) || code == msgpcode.Array16 || code == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, max(n, 0))
		for i := 0; i < n; i++ {
			item, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	default:
		return dec.DecodeInterfaceLoose()
	}
}
