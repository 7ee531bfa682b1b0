// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gser

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
)

// encodeNode renders the GSER text (RFC 3641 §3) for v at ref into buf.
// SEQUENCE/SET use "{ name value, name value }"; SEQUENCE OF/SET OF use
// "{ value, value }" (empty of either shape is "{}", RFC 3641 §3.2); CHOICE
// uses "name:value" with no surrounding whitespace (RFC 3641 §3.3).
func encodeNode(spec *model.Compiled, ref model.TypeRef, v model.Value, path string, buf *bytes.Buffer) error {
	node := spec.Arena.Resolve(ref)

	switch node.Kind {
	case model.KindChoice:
		c, ok := v.(*model.Choice)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.Choice, got %T", v)}
		}
		for _, comp := range node.Components {
			if comp.Name != c.Alt {
				continue
			}
			buf.WriteString(comp.Name)
			buf.WriteByte(':')
			return encodeNode(spec, comp.Type, c.Value, path+"."+comp.Name, buf)
		}
		return &EncodeError{Path: path, Message: fmt.Sprintf("unknown CHOICE alternative %q", c.Alt)}

	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		s, ok := v.(*model.Struct)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.Struct, got %T", v)}
		}
		var parts []string
		for _, comp := range node.Components {
			fv, present := s.Get(comp.Name)
			if !present {
				if comp.Optional || comp.HasDefault {
					continue
				}
				return &EncodeError{Path: path, Message: fmt.Sprintf("missing required component %q", comp.Name)}
			}
			var elem bytes.Buffer
			if err := encodeNode(spec, comp.Type, fv, path+"."+comp.Name, &elem); err != nil {
				return err
			}
			parts = append(parts, comp.Name+" "+elem.String())
		}
		writeBraced(buf, parts)
		return nil

	case model.KindSequenceOf, model.KindSetOf:
		elems, ok := v.([]model.Value)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected []model.Value, got %T", v)}
		}
		parts := make([]string, len(elems))
		for i, e := range elems {
			var elem bytes.Buffer
			if err := encodeNode(spec, node.Element, e, fmt.Sprintf("%s[%d]", path, i), &elem); err != nil {
				return err
			}
			parts[i] = elem.String()
		}
		writeBraced(buf, parts)
		return nil

	case model.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected bool, got %T", v)}
		}
		if b {
			buf.WriteString("TRUE")
		} else {
			buf.WriteString("FALSE")
		}
		return nil

	case model.KindNull:
		buf.WriteString("NULL")
		return nil

	case model.KindInteger, model.KindEnumerated:
		n, ok := v.(*big.Int)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *big.Int, got %T", v)}
		}
		buf.WriteString(n.String())
		return nil

	case model.KindReal:
		// RFC 3641 predates REAL support; rendered as a plain decimal
		// number, consistent with jer's JSON-number mapping.
		f, ok := toFloat(v)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected float64, got %T", v)}
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return nil

	case model.KindOctetString:
		b, ok := v.([]byte)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected []byte, got %T", v)}
		}
		fmt.Fprintf(buf, "'%X'H", b)
		return nil

	case model.KindBitString:
		bs, ok := v.(asn1kit.BitString)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.BitString, got %T", v)}
		}
		buf.WriteByte('\'')
		for i := 0; i < bs.BitLength; i++ {
			if bs.At(i) == 1 {
				buf.WriteByte('1')
			} else {
				buf.WriteByte('0')
			}
		}
		buf.WriteString("'B")
		return nil

	case model.KindObjectIdentifier:
		oid, ok := v.(asn1kit.ObjectIdentifier)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.ObjectIdentifier, got %T", v)}
		}
		buf.WriteString(oid.String())
		return nil

	case model.KindRelativeOID:
		// RFC 3641 doesn't define RELATIVE-OID; rendered the same
		// dotted-decimal way as OBJECT IDENTIFIER.
		oid, ok := v.(asn1kit.RelativeOID)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.RelativeOID, got %T", v)}
		}
		buf.WriteString(oid.String())
		return nil

	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		// RFC 3641 doesn't define ANY; rendered the same quoted-hex way
		// as OCTET STRING, since it carries an opaque encoded blob.
		ot, ok := v.(*model.OpenType)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.OpenType, got %T", v)}
		}
		fmt.Fprintf(buf, "'%X'H", ot.Bytes)
		return nil
	}

	if node.Kind.IsStringKind() {
		s, ok := v.(string)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected string, got %T", v)}
		}
		writeQuoted(buf, s)
		return nil
	}
	if text, ok := timeText(node.Kind, v); ok {
		writeQuoted(buf, text)
		return nil
	}
	return &UnsupportedError{Path: path, Message: fmt.Sprintf("kind %s is not supported by gser", node.Kind)}
}

// writeBraced renders the RFC 3641 §3.2 SEQUENCE/SEQUENCE OF bracketing:
// "{}" for no elements, "{ a, b, c }" otherwise.
func writeBraced(buf *bytes.Buffer, parts []string) {
	if len(parts) == 0 {
		buf.WriteString("{}")
		return
	}
	buf.WriteString("{ ")
	buf.WriteString(strings.Join(parts, ", "))
	buf.WriteString(" }")
}

// writeQuoted renders a GSER quoted string (RFC 3641 §3.8): backslash and
// double-quote are each escaped with a leading backslash.
func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			buf.WriteByte('\\')
		}
		buf.WriteRune(r)
	}
	buf.WriteByte('"')
}

func toFloat(v model.Value) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case *big.Float:
		r, _ := f.Float64()
		return r, true
	}
	return 0, false
}

func timeText(kind model.Kind, v model.Value) (string, bool) {
	switch kind {
	case model.KindUTCTime:
		t, ok := v.(time.Time)
		return asn1kit.FormatUTCTime(t), ok
	case model.KindGeneralizedTime:
		t, ok := v.(time.Time)
		return asn1kit.FormatGeneralizedTime(t), ok
	case model.KindDate:
		t, ok := v.(time.Time)
		return asn1kit.FormatDate(t), ok
	case model.KindTimeOfDay:
		t, ok := v.(time.Time)
		return asn1kit.FormatTimeOfDay(t), ok
	case model.KindDateTime:
		t, ok := v.(time.Time)
		return asn1kit.FormatDateTime(t), ok
	case model.KindDuration:
		d, ok := v.(time.Duration)
		return asn1kit.FormatDuration(d), ok
	}
	return "", false
}
