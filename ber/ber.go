// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ber implements the ASN.1 Basic Encoding Rules and its canonical
// subset, the Distinguished Encoding Rules, as specified in
// [Rec. ITU-T X.690]. It builds on the tlv package for tag-length-value
// framing and dispatches on [model.Type]/[model.Value] rather than on
// reflection over Go structs.
//
// [Marshal] always produces a DER-canonical encoding (definite lengths,
// minimal integer/length encoding, SET components and SET OF elements in
// sorted order). A component that is present with a value equal to its
// DEFAULT is encoded, not omitted. [MarshalBER] relaxes the canonical-ordering requirements
// but otherwise shares the same content rules.
//
// [Rec. ITU-T X.690]: https://www.itu.int/rec/T-REC-X.690
package ber

import (
	"fmt"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
)

// Limits bounds the resources an Unmarshal call may consume, guarding
// against malformed input driving the decoder into unbounded recursion.
type Limits struct {
	MaxDepth  int // maximum nesting depth of constructed encodings
	MaxLength int // maximum length of a single TLV content, in bytes
}

// DefaultLimits is used by [Unmarshal] when no [Limits] are supplied.
var DefaultLimits = Limits{MaxDepth: 64, MaxLength: 1 << 28}

// Flag mirrors the teacher library's own Flag type (true if present, never
// encoded). No package of this module refers to it; neither the encoder
// nor the decoder handles it.
type Flag bool

// A RawValue represents an un-decoded BER/DER object: the tag, the
// primitive/constructed bit, and the raw content octets. [model.OpenType]
// is the codec-agnostic equivalent used for ANY/open type values; RawValue
// is its BER-specific, already-parsed counterpart.
type RawValue struct {
	Tag         asn1kit.Tag
	Constructed bool
	Bytes       []byte
}

// String returns a string representation of rv. The byte contents of rv are
// only included if they are short enough.
func (rv RawValue) String() string {
	constructed := "primitive"
	if rv.Constructed {
		constructed = "constructed"
	}
	if len(rv.Bytes) > 24 {
		return fmt.Sprintf("RawValue{%s (%s) {%d bytes}}", rv.Tag.String(), constructed, len(rv.Bytes))
	}
	return fmt.Sprintf("RawValue{%s (%s) {% X}}", rv.Tag.String(), constructed, rv.Bytes)
}

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
		return "ber: encode: " + e.Message
	}
	return fmt.Sprintf("ber: encode %s: %s", e.Path, e.Message)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError indicates that input could not be decoded. Offset is the byte
// offset within the input at which the error was detected.
type DecodeError struct {
	Path    string
	Offset  int64
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("ber: decode: %s (at offset %d)", e.Message, e.Offset)
	}
	return fmt.Sprintf("ber: decode %s: %s (at offset %d)", e.Path, e.Message, e.Offset)
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
		return "ber: unsupported: " + e.Message
	}
	return fmt.Sprintf("ber: unsupported %s: %s", e.Path, e.Message)
}

// Marshal encodes v, which must conform to the type named typeName in spec,
// using the Distinguished Encoding Rules (canonical BER).
func Marshal(spec *model.Compiled, typeName string, v model.Value) ([]byte, error) {
	return marshal(spec, typeName, v, true)
}

// MarshalBER encodes v like [Marshal] but without DER's canonical-ordering
// requirements.
func MarshalBER(spec *model.Compiled, typeName string, v model.Value) ([]byte, error) {
	return marshal(spec, typeName, v, false)
}

func marshal(spec *model.Compiled, typeName string, v model.Value, der bool) ([]byte, error) {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return nil, &UnsupportedError{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	return encodeNode(spec, ref, v, typeName, der)
}

// Unmarshal decodes data, which must contain a single BER/DER TLV encoding
// of the type named typeName in spec, using [DefaultLimits].
func Unmarshal(spec *model.Compiled, typeName string, data []byte) (model.Value, error) {
	return UnmarshalLimits(spec, typeName, data, DefaultLimits)
}

// UnmarshalLimits works like [Unmarshal] but with caller-supplied [Limits].
func UnmarshalLimits(spec *model.Compiled, typeName string, data []byte, lim Limits) (model.Value, error) {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return nil, &UnsupportedError{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	dec := newDecoder(data)
	return decodeNode(dec, spec, ref, typeName, lim, 0)
}
