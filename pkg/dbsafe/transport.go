package dbsafe

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"io"
	"sync"
)

// Writers and readers are pooled; deflate state is expensive to set up and
// attribute writes are hot.
var (
	zlibWriters = sync.Pool{
		New: func() any { return zlib.NewWriter(io.Discard) },
	}
	zlibReaders sync.Pool
)

// ToText armors raw payload bytes for storage in a text column, optionally
// compressing first. The output uses the standard base64 alphabet, so it is
// safe under any backend's text rules. The same compress flag must be given
// back to FromText; the field adapter owns that bookkeeping.
func ToText(b []byte, compress bool) string {
	if compress {
		b = deflate(b)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// FromText reverses ToText. A flag mismatch never yields wrong bytes
// silently: decompressing uncompressed data fails its header check here,
// and skipping decompression of compressed data leaves bytes that fail the
// codec's version check.
func FromText(s string, compress bool) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, decodeErrf("base64: %v", err)
	}
	if !compress {
		return b, nil
	}
	return inflate(b)
}

func deflate(b []byte) []byte {
	var buf bytes.Buffer
	w := zlibWriters.Get().(*zlib.Writer)
	w.Reset(&buf)
	_, _ = w.Write(b) // writes to a bytes.Buffer cannot fail
	w.Close()
	zlibWriters.Put(w)
	return buf.Bytes()
}

func inflate(b []byte) ([]byte, error) {
	br := bytes.NewReader(b)
	var rc io.ReadCloser
	if pooled := zlibReaders.Get(); pooled != nil {
		rc = pooled.(io.ReadCloser)
		if err := rc.(zlib.Resetter).Reset(br, nil); err != nil {
			return nil, decodeErrf("zlib: %v", err)
		}
	} else {
		var err error
		if rc, err = zlib.NewReader(br); err != nil {
			return nil, decodeErrf("zlib: %v", err)
		}
	}
	out, err := io.ReadAll(rc)
	rc.Close()
	zlibReaders.Put(rc)
	if err != nil {
		return nil, decodeErrf("zlib: %v", err)
	}
	return out, nil
}
