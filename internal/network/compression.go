package network

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// decompressor is a RoundTripper that advertises gzip, deflate and brotli
// and transparently unwraps whichever one the server picked.
type decompressor struct {
	next http.RoundTripper
}

func newDecompressor(next http.RoundTripper) *decompressor {
	if next == nil {
		next = http.DefaultTransport
	}
	return &decompressor{next: next}
}

// RoundTrip executes one transaction and swaps the body for a decoding
// reader when the response is compressed.
func (d *decompressor) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}

	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// bodyCloser closes the decoding reader and the network body behind it.
type bodyCloser struct {
	io.ReadCloser
	raw io.ReadCloser
}

func (b *bodyCloser) Close() error {
	err := b.ReadCloser.Close()
	if rawErr := b.raw.Close(); err == nil {
		err = rawErr
	}
	return err
}

// decodeBody replaces resp.Body based on Content-Encoding. Identity
// responses pass through untouched.
func decodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encoding := strings.ToLower(resp.Header.Get("Content-Encoding"))
	if encoding == "" {
		return nil
	}

	var reader io.ReadCloser
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip error: %w", err)
		}
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("deflate error: %w", err)
		}
		reader = zr
	case "br":
		// The brotli reader has no Close, the wrapper still closes the
		// network body underneath it.
		reader = io.NopCloser(brotli.NewReader(resp.Body))
	default:
		return fmt.Errorf("unsupported Content-Encoding: %s", encoding)
	}

	resp.Body = &bodyCloser{ReadCloser: reader, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}
