// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package govalue bridges idiomatic Go structs and the generic
// model.Value tree every codec (ber, per, xer, jer, gser) operates on.
// It adapts the teacher library's reflect-based struct walker
// (internal.StructFields/internal.ParseFieldParameters, originally built
// to drive that library's struct-tag dispatch directly) into an optional
// ergonomic layer on top of this module's model.Value-dispatch core:
// callers who would rather populate a plain Go struct than build a
// model.Struct/model.Choice tree by hand can use [FromStruct]/[ToStruct].
//
// Go struct fields are matched to ASN.1 components positionally, in
// declaration order — the same convention the teacher's reflect-based
// codec used (struct field order mirrors SEQUENCE component order),
// carried over here since govalue's whole purpose is to revive that
// convention as a convenience, not to invent a new one.
package govalue

import (
	"fmt"
	"iter"
	"math/big"
	"reflect"
	"time"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/internal"
	"asn1kit.dev/asn1kit/model"
)

// Error reports a failure converting between a Go value and a model.Value.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "govalue: " + e.Message
	}
	return fmt.Sprintf("govalue %s: %s", e.Path, e.Message)
}

// FromStruct converts v (a struct, or pointer to one) into a model.Value
// tree for the type named typeName in spec.
func FromStruct(spec *model.Compiled, typeName string, v any) (model.Value, error) {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	return fromValue(spec, ref, reflect.ValueOf(v), typeName)
}

// ToStruct populates out, which must be a non-nil pointer to a struct,
// from v, which must conform to the type named typeName in spec.
func ToStruct(spec *model.Compiled, typeName string, v model.Value, out any) error {
	ref, ok := spec.Lookup("", typeName)
	if !ok {
		return &Error{Message: fmt.Sprintf("unknown type %q", typeName)}
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &Error{Message: "out must be a non-nil pointer"}
	}
	return toValue(spec, ref, v, rv.Elem(), typeName)
}

// pointerIsCanonical reports whether k's own model.Value representation is
// already a Go pointer type (*big.Int for INTEGER/ENUMERATED, *model.Choice
// for CHOICE, *model.OpenType for the open-type kinds). For those kinds a
// nil Go field IS the absent-OPTIONAL value, so fromValue/toValue must not
// additionally indirect through it the way they do for every other kind
// (where a pointer is purely govalue's own optional-field convention and
// the pointee is the canonical representation).
func pointerIsCanonical(k model.Kind) bool {
	switch k {
	case model.KindInteger, model.KindEnumerated, model.KindChoice,
		model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		return true
	}
	return false
}

func fromValue(spec *model.Compiled, ref model.TypeRef, rv reflect.Value, path string) (model.Value, error) {
	node := spec.Arena.Resolve(ref)

	if rv.Kind() == reflect.Pointer {
		if pointerIsCanonical(node.Kind) {
			// The pointer itself is the canonical representation (e.g.
			// *big.Int for INTEGER): a nil pointer here must become an
			// untyped nil model.Value, not a non-nil interface wrapping a
			// nil pointer (which `cv == nil` checks upstream would miss).
			if rv.IsNil() {
				return nil, nil
			}
		} else if rv.IsNil() {
			return nil, nil
		} else {
			rv = rv.Elem()
		}
	}

	switch node.Kind {
	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		if rv.Kind() != reflect.Struct {
			return nil, &Error{Path: path, Message: fmt.Sprintf("expected struct, got %s", rv.Kind())}
		}
		s := &model.Struct{}
		next, stop := iter.Pull2(internal.StructFields(rv))
		defer stop()
		for _, comp := range node.Components {
			fv, params, ok := next()
			if !ok {
				if comp.Optional || comp.HasDefault {
					continue
				}
				return nil, &Error{Path: path, Message: fmt.Sprintf("missing Go field for required component %q", comp.Name)}
			}
			if params.Optional && isZero(fv) {
				continue
			}
			cv, err := fromValue(spec, comp.Type, fv, path+"."+comp.Name)
			if err != nil {
				return nil, err
			}
			if cv == nil && (comp.Optional || comp.HasDefault) {
				continue
			}
			s.Set(comp.Name, cv)
		}
		return s, nil

	case model.KindChoice:
		if c, ok := rv.Interface().(*model.Choice); ok {
			return c, nil
		}
		if c, ok := rv.Interface().(model.Choice); ok {
			return &c, nil
		}
		return nil, &Error{Path: path, Message: "CHOICE fields must be populated as model.Choice or *model.Choice (govalue has no Go-native CHOICE sugar)"}

	case model.KindSequenceOf, model.KindSetOf:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, &Error{Path: path, Message: fmt.Sprintf("expected slice, got %s", rv.Kind())}
		}
		out := make([]model.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := fromValue(spec, node.Element, rv.Index(i), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	return scalarFromGo(node, rv, path)
}

func toValue(spec *model.Compiled, ref model.TypeRef, v model.Value, rv reflect.Value, path string) error {
	node := spec.Arena.Resolve(ref)

	if v == nil {
		return nil
	}

	switch node.Kind {
	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		s, ok := v.(*model.Struct)
		if !ok {
			return &Error{Path: path, Message: fmt.Sprintf("expected *model.Struct, got %T", v)}
		}
		if rv.Kind() != reflect.Struct {
			return &Error{Path: path, Message: fmt.Sprintf("expected struct, got %s", rv.Kind())}
		}
		next, stop := iter.Pull2(internal.StructFields(rv))
		defer stop()
		for _, comp := range node.Components {
			fv, _, ok := next()
			if !ok {
				return &Error{Path: path, Message: fmt.Sprintf("missing Go field for component %q", comp.Name)}
			}
			cv, present := s.Get(comp.Name)
			if !present {
				continue
			}
			if err := assignField(spec, comp.Type, cv, fv, path+"."+comp.Name); err != nil {
				return err
			}
		}
		return nil

	case model.KindChoice:
		c, ok := v.(*model.Choice)
		if !ok {
			return &Error{Path: path, Message: fmt.Sprintf("expected *model.Choice, got %T", v)}
		}
		if !rv.CanSet() {
			return &Error{Path: path, Message: "CHOICE field is not settable"}
		}
		if rv.Kind() == reflect.Pointer {
			rv.Set(reflect.ValueOf(c))
		} else {
			rv.Set(reflect.ValueOf(*c))
		}
		return nil

	case model.KindSequenceOf, model.KindSetOf:
		elems, ok := v.([]model.Value)
		if !ok {
			return &Error{Path: path, Message: fmt.Sprintf("expected []model.Value, got %T", v)}
		}
		if rv.Kind() != reflect.Slice {
			return &Error{Path: path, Message: fmt.Sprintf("expected slice, got %s", rv.Kind())}
		}
		out := reflect.MakeSlice(rv.Type(), len(elems), len(elems))
		for i, e := range elems {
			if err := assignField(spec, node.Element, e, out.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		rv.Set(out)
		return nil
	}

	return scalarToGo(node, v, rv, path)
}

// assignField handles the OPTIONAL pointer indirection: if fv is a pointer
// and its pointee (not the pointer itself) is the Kind's canonical
// representation, a new value is allocated and fv set to point at it.
// Kinds whose own representation is already a pointer (see
// pointerIsCanonical) are assigned directly instead, since toValue already
// knows how to place a *big.Int/*model.Choice/*model.OpenType into such a
// field.
func assignField(spec *model.Compiled, ref model.TypeRef, v model.Value, fv reflect.Value, path string) error {
	node := spec.Arena.Resolve(ref)
	if fv.Kind() == reflect.Pointer && !pointerIsCanonical(node.Kind) {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		return toValue(spec, ref, v, fv.Elem(), path)
	}
	return toValue(spec, ref, v, fv, path)
}

func isZero(rv reflect.Value) bool {
	return rv.IsZero()
}

func scalarFromGo(node *model.Type, rv reflect.Value, path string) (model.Value, error) {
	switch node.Kind {
	case model.KindBoolean:
		if rv.Kind() != reflect.Bool {
			return nil, &Error{Path: path, Message: fmt.Sprintf("expected bool, got %s", rv.Kind())}
		}
		return rv.Bool(), nil

	case model.KindNull:
		return nil, nil

	case model.KindInteger, model.KindEnumerated:
		switch n := rv.Interface().(type) {
		case *big.Int:
			return n, nil
		case big.Int:
			return &n, nil
		}
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return big.NewInt(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return new(big.Int).SetUint64(rv.Uint()), nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("cannot convert %s to INTEGER", rv.Type())}

	case model.KindReal:
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return rv.Float(), nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("cannot convert %s to REAL", rv.Type())}

	case model.KindOctetString:
		if b, ok := rv.Interface().([]byte); ok {
			return b, nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("expected []byte, got %s", rv.Type())}

	case model.KindBitString:
		if bs, ok := rv.Interface().(asn1kit.BitString); ok {
			return bs, nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("expected asn1kit.BitString, got %s", rv.Type())}

	case model.KindObjectIdentifier:
		if oid, ok := rv.Interface().(asn1kit.ObjectIdentifier); ok {
			return oid, nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("expected asn1kit.ObjectIdentifier, got %s", rv.Type())}

	case model.KindRelativeOID:
		if oid, ok := rv.Interface().(asn1kit.RelativeOID); ok {
			return oid, nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("expected asn1kit.RelativeOID, got %s", rv.Type())}

	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		if ot, ok := rv.Interface().(*model.OpenType); ok {
			return ot, nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("expected *model.OpenType, got %s", rv.Type())}
	}

	if node.Kind.IsStringKind() {
		if rv.Kind() != reflect.String {
			return nil, &Error{Path: path, Message: fmt.Sprintf("expected string, got %s", rv.Kind())}
		}
		return rv.String(), nil
	}

	switch node.Kind {
	case model.KindUTCTime, model.KindGeneralizedTime, model.KindDate, model.KindTimeOfDay, model.KindDateTime:
		if t, ok := rv.Interface().(time.Time); ok {
			return t, nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("expected time.Time, got %s", rv.Type())}
	case model.KindDuration:
		if d, ok := rv.Interface().(time.Duration); ok {
			return d, nil
		}
		return nil, &Error{Path: path, Message: fmt.Sprintf("expected time.Duration, got %s", rv.Type())}
	}

	return nil, &Error{Path: path, Message: fmt.Sprintf("kind %s is not supported by govalue", node.Kind)}
}

func scalarToGo(node *model.Type, v model.Value, rv reflect.Value, path string) error {
	if !rv.CanSet() {
		return &Error{Path: path, Message: "field is not settable"}
	}
	switch node.Kind {
	case model.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return &Error{Path: path, Message: fmt.Sprintf("expected bool, got %T", v)}
		}
		rv.SetBool(b)
		return nil

	case model.KindNull:
		return nil

	case model.KindInteger, model.KindEnumerated:
		n, ok := v.(*big.Int)
		if !ok {
			return &Error{Path: path, Message: fmt.Sprintf("expected *big.Int, got %T", v)}
		}
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			rv.SetInt(n.Int64())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			rv.SetUint(n.Uint64())
		default:
			rv.Set(reflect.ValueOf(n))
		}
		return nil

	case model.KindReal:
		f, ok := v.(float64)
		if !ok {
			return &Error{Path: path, Message: fmt.Sprintf("expected float64, got %T", v)}
		}
		rv.SetFloat(f)
		return nil
	}

	rv.Set(reflect.ValueOf(v))
	return nil
}
