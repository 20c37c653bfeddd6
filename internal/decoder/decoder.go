// Package decoder turns a raw data bag value into JSON.
//
// The provider changed its storage encoding over time, so a single data bag
// can hold values in any of the supported encodings. Decoding is attempted
// per value with an ordered list of strategies; the first one that yields
// valid UTF-8 JSON wins.
package decoder

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	svcerrors "character-sync/pkg/errors"
)

// maxInflatedSize bounds decompression output.
const maxInflatedSize = 16 << 20

var (
	errNotBase64   = errors.New("not base64")
	errNotUTF8     = errors.New("not valid utf-8")
	errNotJSON     = errors.New("not valid json")
	errTooLarge    = errors.New("inflated payload too large")
	errEmptyRecord = errors.New("empty value")
)

// Strategy is one decoding attempt.
type Strategy struct {
	Name   string
	Decode func(raw string) ([]byte, error)
}

// DefaultStrategies is the provider's encoding cascade, in order.
var DefaultStrategies = []Strategy{
	{Name: "base64+zlib", Decode: base64Then(inflateZlib)},
	{Name: "base64+deflate-raw", Decode: base64Then(inflateRaw)},
	{Name: "base64", Decode: base64Then(identity)},
	{Name: "literal", Decode: literal},
}

// Decoder applies a strategy list with first-success semantics.
type Decoder struct {
	strategies []Strategy
}

// New returns a decoder using DefaultStrategies.
func New() *Decoder {
	return &Decoder{strategies: DefaultStrategies}
}

// NewWithStrategies returns a decoder with a custom strategy list.
func NewWithStrategies(strategies ...Strategy) *Decoder {
	return &Decoder{strategies: strategies}
}

// Decode returns the JSON document held by raw. It fails with
// ErrDecodeExhausted only when every strategy failed.
func (d *Decoder) Decode(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, svcerrors.Wrap(errEmptyRecord, svcerrors.ErrDecodeExhausted)
	}

	var failures []error
	for _, s := range d.strategies {
		doc, err := s.Decode(raw)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		return doc, nil
	}
	return nil, svcerrors.Wrap(errors.Join(failures...), svcerrors.ErrDecodeExhausted)
}

// Decode decodes raw with DefaultStrategies.
func Decode(raw string) (json.RawMessage, error) {
	return New().Decode(raw)
}

func base64Then(transform func([]byte) ([]byte, error)) func(string) ([]byte, error) {
	return func(raw string) ([]byte, error) {
		b, err := decodeBase64(raw)
		if err != nil {
			return nil, err
		}
		out, err := transform(b)
		if err != nil {
			return nil, err
		}
		return asJSON(out)
	}
}

func decodeBase64(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, errNotBase64
}

func inflateZlib(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("zlib header: %w", err)
	}
	defer r.Close()
	return readBounded(r)
}

func inflateRaw(b []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()
	return readBounded(r)
}

func identity(b []byte) ([]byte, error) {
	return b, nil
}

func literal(raw string) ([]byte, error) {
	return asJSON([]byte(strings.TrimSpace(raw)))
}

func readBounded(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxInflatedSize+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(out) > maxInflatedSize {
		return nil, errTooLarge
	}
	return out, nil
}

func asJSON(b []byte) ([]byte, error) {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(b) {
		return nil, errNotUTF8
	}
	if !json.Valid(b) {
		return nil, errNotJSON
	}
	return b, nil
}
