// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gser implements the Generic String Encoding Rules (RFC 3641): a
// human-readable, encode-only textual notation, commonly used to print
// LDAP attribute values and X.509 extension content for inspection. GSER
// defines no canonical decoder — RFC 3641 §1 positions GSER purely as a
// "specification for a human readable ... string encoding", so, per
// spec.md §4.8, Unmarshal always reports [UnsupportedError].
package gser

import (
	"bytes"
	"fmt"

	"asn1kit.dev/asn1kit/model"
)

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
		return "gser: encode: " + e.Message
	}
	return fmt.Sprintf("gser: encode %s: %s", e.Path, e.Message)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// UnsupportedError indicates that a value uses a Kind or Go type this
// package does not know how to encode, or that decoding was attempted.
type UnsupportedError struct {
	Path    string
	Message string
}

func (e *UnsupportedError) Error() string {
	if e.Path == "" {
		return "gser: unsupported: " + e.Message
	}
	return fmt.Sprintf("gser: unsupported %s: %s", e.Path, e.Message)
}

// Marshal renders v, which must conform to the type named typeName in
// spec, as GSER text (RFC 3641 §3).
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

// Unmarshal always fails: GSER is a display notation with no defined
// decoder (RFC 3641 §1).
func Unmarshal(spec *model.Compiled, typeName string, data []byte) (model.Value, error) {
	return nil, &UnsupportedError{Message: "gser decoding is not supported; RFC 3641 defines GSER as an encode-only display notation"}
}
