package core

// Codec registry. Generalizes the teacher's gzip-only
// CompressData/DecompressData pair (core/partitioning_and_compression.go in
// the teacher) into a named-plugin table with explicit-name, best-ratio,
// and fastest-wall-clock selection modes.

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec is the uniform compression plugin contract every registered codec
// implements.
type Codec interface {
	Name() string
	Compress(ctx context.Context, in []byte) ([]byte, error)
	Uncompress(ctx context.Context, in []byte) ([]byte, error)
	// SetParams applies codec-specific tuning (e.g. compression_level).
	// Codecs that take no parameters implement it as a no-op.
	SetParams(params map[string]any) error
}

// CodecSelection is the writer-option shape for choosing a codec: a bare
// name, "best", "fast", or {name, params}.
type CodecSelection struct {
	Mode   string // "", "best", "fast" — "" with Name set means explicit
	Name   string
	Params map[string]any
}

// registry holds the built-in codecs, keyed by name. It is never mutated
// after init, so concurrent readers need no locking; Resolve applies a
// selection's params to a copy of the codec, never to the shared instance.
type registry struct {
	codecs map[string]Codec
	order  []string // stable iteration order for best/fast search
}

func newBuiltinRegistry() *registry {
	r := &registry{codecs: make(map[string]Codec)}
	for _, c := range []Codec{
		&noneCodec{},
		&gzipCodec{},
		&deflateCodec{},
		&zstdCodec{},
		&snappyCodec{},
	} {
		r.codecs[c.Name()] = c
		r.order = append(r.order, c.Name())
	}
	return r
}

// DefaultRegistry is the process-wide set of built-in codecs. The
// *selection* (params, mode) always travels on the CodecSelection value
// the caller passes to a writer; this registry only ever holds stateless
// lookup, so sharing it across sessions is safe.
var DefaultRegistry = newBuiltinRegistry()

func (r *registry) get(name string) (Codec, error) {
	c, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return c, nil
}

// Resolve picks the codec + final bytes for a selection against input, in
// explicit/best/fast mode. A hypothetical string-only codec would be
// skipped here when isString is false — none of the pack-grounded codecs
// this module ships are string-only, so the guard is inert today but kept
// so a future string-only plugin slots in without touching this function.
func (r *registry) Resolve(ctx context.Context, sel CodecSelection, in []byte, isString bool) (Codec, []byte, error) {
	switch sel.Mode {
	case "best":
		return r.pickBest(ctx, in, isString)
	case "fast":
		return r.pickFastest(ctx, in, isString)
	default:
		name := sel.Name
		if name == "" {
			name = "none"
		}
		c, err := r.get(name)
		if err != nil {
			return nil, nil, err
		}
		switch v := c.(type) {
		case *gzipCodec:
			cp := *v
			c = &cp
		case *deflateCodec:
			cp := *v
			c = &cp
		case *zstdCodec:
			cp := *v
			c = &cp
		}
		if err := c.SetParams(sel.Params); err != nil {
			return nil, nil, err
		}
		out, err := c.Compress(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		return c, out, nil
	}
}

func (r *registry) eligible(name string, isString bool) bool {
	// lz-string-equivalent codecs would be excluded for non-string input;
	// none of the built-ins need the guard today.
	return true
}

func (r *registry) pickBest(ctx context.Context, in []byte, isString bool) (Codec, []byte, error) {
	var bestCodec Codec
	var bestOut []byte
	for _, name := range r.order {
		if !r.eligible(name, isString) {
			continue
		}
		c := r.codecs[name]
		out, err := c.Compress(ctx, in)
		if err != nil {
			return nil, nil, fmt.Errorf("codec %s: %w", name, err)
		}
		if bestCodec == nil || len(out) < len(bestOut) {
			bestCodec, bestOut = c, out
		}
	}
	if bestCodec == nil {
		return nil, nil, fmt.Errorf("codec: no eligible codec for best-of selection")
	}
	return bestCodec, bestOut, nil
}

func (r *registry) pickFastest(ctx context.Context, in []byte, isString bool) (Codec, []byte, error) {
	var bestCodec Codec
	var bestOut []byte
	var bestDur time.Duration
	for _, name := range r.order {
		if !r.eligible(name, isString) {
			continue
		}
		c := r.codecs[name]
		start := time.Now()
		out, err := c.Compress(ctx, in)
		dur := time.Since(start)
		if err != nil {
			return nil, nil, fmt.Errorf("codec %s: %w", name, err)
		}
		if bestCodec == nil || dur < bestDur {
			bestCodec, bestOut, bestDur = c, out, dur
		}
	}
	if bestCodec == nil {
		return nil, nil, fmt.Errorf("codec: no eligible codec for fastest selection")
	}
	return bestCodec, bestOut, nil
}

// -----------------------------------------------------------------------
// none: identity conversion to bytes.
// -----------------------------------------------------------------------

type noneCodec struct{}

func (c *noneCodec) Name() string { return "none" }
func (c *noneCodec) SetParams(map[string]any) error { return nil }
func (c *noneCodec) Compress(_ context.Context, in []byte) ([]byte, error) {
	return append([]byte(nil), in...), nil
}
func (c *noneCodec) Uncompress(_ context.Context, in []byte) ([]byte, error) {
	return append([]byte(nil), in...), nil
}

// -----------------------------------------------------------------------
// gzip
// -----------------------------------------------------------------------

type gzipCodec struct{ level int }

func (c *gzipCodec) Name() string { return "gzip" }

func (c *gzipCodec) SetParams(params map[string]any) error {
	if lvl, ok := params["compression_level"]; ok {
		n, err := toInt(lvl)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		c.level = n
	}
	return nil
}

func (c *gzipCodec) Compress(_ context.Context, in []byte) ([]byte, error) {
	level := c.level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(in); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *gzipCodec) Uncompress(_ context.Context, in []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer zr.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return out.Bytes(), nil
}

// -----------------------------------------------------------------------
// deflate (the pack's reference implementation calls its equivalent
// "pako"/raw-deflate).
// -----------------------------------------------------------------------

type deflateCodec struct{ level int }

func (c *deflateCodec) Name() string { return "deflate" }

func (c *deflateCodec) SetParams(params map[string]any) error {
	if lvl, ok := params["compression_level"]; ok {
		n, err := toInt(lvl)
		if err != nil {
			return fmt.Errorf("deflate: %w", err)
		}
		c.level = n
	}
	return nil
}

func (c *deflateCodec) Compress(_ context.Context, in []byte) ([]byte, error) {
	level := c.level
	if level == 0 {
		level = flate.DefaultCompression
	}
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(in); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *deflateCodec) Uncompress(_ context.Context, in []byte) ([]byte, error) {
	zr := flate.NewReader(bytes.NewReader(in))
	defer zr.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return out.Bytes(), nil
}

// -----------------------------------------------------------------------
// zstd
// -----------------------------------------------------------------------

type zstdCodec struct{ level zstd.EncoderLevel }

func (c *zstdCodec) Name() string { return "zstd" }

func (c *zstdCodec) SetParams(params map[string]any) error {
	if lvl, ok := params["compression_level"]; ok {
		n, err := toInt(lvl)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		c.level = zstd.EncoderLevel(n)
	}
	return nil
}

func (c *zstdCodec) Compress(_ context.Context, in []byte) ([]byte, error) {
	opts := []zstd.EOption{}
	if c.level != 0 {
		opts = append(opts, zstd.WithEncoderLevel(c.level))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(in, nil), nil
}

func (c *zstdCodec) Uncompress(_ context.Context, in []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(in, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return out, nil
}

// -----------------------------------------------------------------------
// snappy
// -----------------------------------------------------------------------

type snappyCodec struct{}

func (c *snappyCodec) Name() string                 { return "snappy" }
func (c *snappyCodec) SetParams(map[string]any) error { return nil }

func (c *snappyCodec) Compress(_ context.Context, in []byte) ([]byte, error) {
	return snappy.Encode(nil, in), nil
}

func (c *snappyCodec) Uncompress(_ context.Context, in []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return out, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("compression_level: unsupported type %T", v)
	}
}
