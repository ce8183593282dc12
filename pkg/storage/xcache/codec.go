package xcache

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec 值与缓存字节之间的编解码。
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSONCodec 使用 encoding/json，零值可用。默认编解码器。
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec[V]) Decode(data []byte) (V, error) {
	var v V
	err := json.Unmarshal(data, &v)
	return v, err
}

// MsgpackCodec 使用 vmihailenco/msgpack，零值可用。
// 字段名由 `msgpack:"..."` tag 控制，与 JSON tag 不通用。
type MsgpackCodec[V any] struct{}

func (MsgpackCodec[V]) Encode(v V) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackCodec[V]) Decode(data []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

// CBORCodec 使用 fxamacker/cbor，需通过 NewCBORCodec 构造。
type CBORCodec[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec 创建 CBOR 编解码器。
// deterministic 为 true 时使用 RFC 8949 Core Deterministic 编码。
// 时间统一编码为 RFC3339Nano。
func NewCBORCodec[V any](deterministic bool) (CBORCodec[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	enc, err := eo.EncMode()
	if err != nil {
		return CBORCodec[V]{}, err
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return CBORCodec[V]{}, err
	}
	return CBORCodec[V]{enc: enc, dec: dec}, nil
}

func (c CBORCodec[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBORCodec[V]) Decode(data []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(data, &v)
	return v, err
}
