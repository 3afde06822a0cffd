package store

import (
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/docsql/internal/ir"
)

// codec compresses journal text and encodes argument lists.
// Create once per Store; EncodeAll and DecodeAll are goroutine-safe.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec() (*codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &codec{encoder: encoder, decoder: decoder}, nil
}

func (c *codec) Close() {
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

func (c *codec) compress(data []byte) []byte {
	if len(data) == 0 {
		return []byte{}
	}
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (c *codec) decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}

// encodeRequest stores the canonical JSON form, which keeps key order.
func (c *codec) encodeRequest(request ir.Value) ([]byte, error) {
	data, err := ir.MarshalCanonical(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.compress(data), nil
}

func (c *codec) decodeRequest(data []byte) (ir.Value, error) {
	raw, err := c.decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	v, err := ir.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return v, nil
}

func (c *codec) encodeSQL(sql string) []byte {
	return c.compress([]byte(sql))
}

func (c *codec) decodeSQL(data []byte) (string, error) {
	raw, err := c.decompress(data)
	if err != nil {
		return "", fmt.Errorf("decode sql: %w", err)
	}
	return string(raw), nil
}

// Argument kinds on the wire.
const (
	argNull byte = iota
	argString
	argInt
	argFloat
	argBool
	argTime
	argArray
)

// wireArg tags every argument with its kind. Plain MessagePack would
// shrink small integers and decode whole floats ambiguously.
type wireArg struct {
	Kind  byte      `msgpack:"k"`
	Str   string    `msgpack:"s,omitempty"`
	Int   int64     `msgpack:"i,omitempty"`
	Float float64   `msgpack:"f,omitempty"`
	Bool  bool      `msgpack:"b,omitempty"`
	Time  time.Time `msgpack:"t,omitempty"`
	Elems []wireArg `msgpack:"a,omitempty"`
}

func toWire(arg any) (wireArg, error) {
	switch v := arg.(type) {
	case nil:
		return wireArg{Kind: argNull}, nil
	case string:
		return wireArg{Kind: argString, Str: v}, nil
	case int64:
		return wireArg{Kind: argInt, Int: v}, nil
	case float64:
		return wireArg{Kind: argFloat, Float: v}, nil
	case bool:
		return wireArg{Kind: argBool, Bool: v}, nil
	case time.Time:
		return wireArg{Kind: argTime, Time: v.UTC()}, nil
	case []any:
		elems := make([]wireArg, len(v))
		for i, e := range v {
			w, err := toWire(e)
			if err != nil {
				return wireArg{}, err
			}
			elems[i] = w
		}
		return wireArg{Kind: argArray, Elems: elems}, nil
	default:
		return wireArg{}, fmt.Errorf("unsupported argument type %T", arg)
	}
}

func fromWire(w wireArg) (any, error) {
	switch w.Kind {
	case argNull:
		return nil, nil
	case argString:
		return w.Str, nil
	case argInt:
		return w.Int, nil
	case argFloat:
		return w.Float, nil
	case argBool:
		return w.Bool, nil
	case argTime:
		return w.Time.UTC(), nil
	case argArray:
		out := make([]any, len(w.Elems))
		for i, e := range w.Elems {
			v, err := fromWire(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown argument kind %d", w.Kind)
	}
}

func encodeArgs(args []any) ([]byte, error) {
	wire := make([]wireArg, len(args))
	for i, a := range args {
		w, err := toWire(a)
		if err != nil {
			return nil, fmt.Errorf("encode arg %d: %w", i, err)
		}
		wire[i] = w
	}
	data, err := msgpack.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}
	return data, nil
}

// decodeArgs never returns nil, so entries compare equal to fresh
// compilations, which always carry a non-nil argument slice.
func decodeArgs(data []byte) ([]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty MessagePack data")
	}
	var wire []wireArg
	if err := msgpack.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode MessagePack: %w", err)
	}
	out := make([]any, len(wire))
	for i, w := range wire {
		v, err := fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("decode arg %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
