// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xer implements the XML Encoding Rules, as specified in
// [Rec. ITU-T X.693]. Like the ber and per packages it dispatches on
// [model.Type]/[model.Value] rather than on reflection over Go structs,
// and builds its element tree on top of the standard library's
// encoding/xml token stream rather than struct-tag-driven (un)marshaling,
// since there is no Go struct here to tag.
//
// [Rec. ITU-T X.693]: https://www.itu.int/rec/T-REC-X.693
package xer

import (
	"bytes"
	"encoding/xml"
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
		return "xer: encode: " + e.Message
	}
	return fmt.Sprintf("xer: encode %s: %s", e.Path, e.Message)
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
		return "xer: decode: " + e.Message
	}
	return fmt.Sprintf("xer: decode %s: %s", e.Path, e.Message)
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
		return "xer: unsupported: " + e.Message
	}
	return fmt.Sprintf("xer: unsupported %s: %s", e.Path, e.Message)
}

// Marshal encodes v, which must conform to the type named typeName in spec,
// as a single XML element named typeName, using the canonical XER text
// forms (X.693 §8).
func Marshal(spec *model.Compiled, typeName string, v model.Value) ([]byte, error) {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return nil, &UnsupportedError{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := encodeNode(spec, ref, v, typeName, typeName, enc); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, &EncodeError{Message: err.Error(), Err: err}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data, which must contain a single XER-encoded element
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
	dec := xml.NewDecoder(bytes.NewReader(data))
	tok, err := nextStart(dec)
	if err != nil {
		return nil, &DecodeError{Message: err.Error(), Err: err}
	}
	v, err := decodeNode(spec, ref, typeName, dec, tok, lim, 0)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// nextStart advances dec past any preamble (CharData, ProcInst, Comment)
// and returns the next StartElement token.
func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}
