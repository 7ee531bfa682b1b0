// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jer implements the draft JSON Encoding Rules referenced by
// spec.md §4.7: constructed types become JSON objects keyed by component
// name, CHOICE becomes a single-key object, SEQUENCE-OF/SET-OF becomes an
// array, INTEGER becomes a number (or a string outside the JSON safe-integer
// range), OCTET-STRING becomes a hex string, and BIT-STRING becomes a
// {"value", "length"} object.
//
// Component order must survive a round trip, which a map[string]any fed
// through encoding/json.Marshal cannot guarantee (Go sorts map keys
// alphabetically). So, like the xer package builds directly on
// encoding/xml's token stream instead of struct-tag (un)marshaling, jer
// writes JSON text directly (reusing encoding/json only for scalar
// quoting/escaping) and decodes via encoding/json's token-streaming
// Decoder, which does preserve source order.
package jer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"asn1kit.dev/asn1kit/model"
)

// Limits bounds the resources an Unmarshal call may consume.
type Limits struct {
	MaxDepth int // maximum nesting depth of constructed encodings
}

// DefaultLimits is used by [Unmarshal] when no [Limits] are supplied.
var DefaultLimits = Limits{MaxDepth: 64}

// EncodeError indicates that a value could not be encoded. Path identifies
// the component that failed, using the dotted/bracketed notation
// (a.b[3].choice-alt.c).
type EncodeError struct {
	Path    string
	Message string
	Err     error
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return "jer: encode: " + e.Message
	}
	return fmt.Sprintf("jer: encode %s: %s", e.Path, e.Message)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError indicates that input could not be decoded.
type DecodeError struct {
	Path    string
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "jer: decode: " + e.Message
	}
	return fmt.Sprintf("jer: decode %s: %s", e.Path, e.Message)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnsupportedError indicates that a value uses a Kind or Go type this
// package does not know how to encode or decode.
type UnsupportedError struct {
	Path    string
	Message string
}

func (e *UnsupportedError) Error() string {
	if e.Path == "" {
		return "jer: unsupported: " + e.Message
	}
	return fmt.Sprintf("jer: unsupported %s: %s", e.Path, e.Message)
}

// Marshal encodes v, which must conform to the type named typeName in spec,
// as a single JSON value using the JER mapping (spec.md §4.7).
func Marshal(spec *model.Compiled, typeName string, v model.Value) ([]byte, error) {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return nil, &UnsupportedError{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	var buf bytes.Buffer
	if err := encodeNode(spec, ref, v, typeName, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data, which must contain a single JER-encoded value of
// the type named typeName in spec, using [DefaultLimits].
func Unmarshal(spec *model.Compiled, typeName string, data []byte) (model.Value, error) {
	return UnmarshalLimits(spec, typeName, data, DefaultLimits)
}

// UnmarshalLimits works like [Unmarshal] but with caller-supplied [Limits].
func UnmarshalLimits(spec *model.Compiled, typeName string, data []byte, lim Limits) (model.Value, error) {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return nil, &UnsupportedError{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return decodeNode(spec, ref, typeName, dec, lim, 0)
}
