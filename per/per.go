// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package per

import (
	"fmt"

	"asn1kit.dev/asn1kit/model"
)

// Limits bounds the resources an Unmarshal call may consume, guarding
// against malformed input driving the decoder into unbounded recursion.
// It mirrors the ber package's Limits, minus MaxLength: PER carries no
// per-value length octets to bound independently of the overall input.
type Limits struct {
	MaxDepth int // maximum nesting depth of constructed encodings
}

// DefaultLimits is used by [Unmarshal]/[UnmarshalUPER] when no [Limits] are
// supplied.
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
		return "per: encode: " + e.Message
	}
	return fmt.Sprintf("per: encode %s: %s", e.Path, e.Message)
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
		return "per: decode: " + e.Message
	}
	return fmt.Sprintf("per: decode %s: %s", e.Path, e.Message)
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
		return "per: unsupported: " + e.Message
	}
	return fmt.Sprintf("per: unsupported %s: %s", e.Path, e.Message)
}

// Marshal encodes v, which must conform to the type named typeName in spec,
// using Aligned PER (octet-aligned length determinants and constrained
// fields, per X.691).
func Marshal(spec *model.Compiled, typeName string, v model.Value) ([]byte, error) {
	return marshal(spec, typeName, v, true)
}

// MarshalUPER encodes v like [Marshal] but using Unaligned PER (UPER): no
// padding to octet boundaries except where X.691 mandates it regardless of
// variant (general length determinants, OCTET STRING content).
func MarshalUPER(spec *model.Compiled, typeName string, v model.Value) ([]byte, error) {
	return marshal(spec, typeName, v, false)
}

func marshal(spec *model.Compiled, typeName string, v model.Value, aligned bool) ([]byte, error) {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return nil, &UnsupportedError{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	var w BitWriter
	if err := encodeNode(spec, ref, v, typeName, &w, aligned); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes data, which must contain a single Aligned PER encoding
// of the type named typeName in spec, using [DefaultLimits].
func Unmarshal(spec *model.Compiled, typeName string, data []byte) (model.Value, error) {
	return unmarshal(spec, typeName, data, DefaultLimits, true)
}

// UnmarshalLimits works like [Unmarshal] but with caller-supplied [Limits].
func UnmarshalLimits(spec *model.Compiled, typeName string, data []byte, lim Limits) (model.Value, error) {
	return unmarshal(spec, typeName, data, lim, true)
}

// UnmarshalUPER decodes data as Unaligned PER, mirroring [MarshalUPER].
func UnmarshalUPER(spec *model.Compiled, typeName string, data []byte) (model.Value, error) {
	return unmarshal(spec, typeName, data, DefaultLimits, false)
}

// UnmarshalUPERLimits works like [UnmarshalUPER] but with caller-supplied
// [Limits].
func UnmarshalUPERLimits(spec *model.Compiled, typeName string, data []byte, lim Limits) (model.Value, error) {
	return unmarshal(spec, typeName, data, lim, false)
}

func unmarshal(spec *model.Compiled, typeName string, data []byte, lim Limits, aligned bool) (model.Value, error) {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return nil, &UnsupportedError{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	r := NewBitReader(data)
	return decodeNode(spec, ref, typeName, r, lim, 0, aligned)
}
