// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xer

import (
	"encoding/xml"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
)

// repeatedElementName is the tag used for every element of a SEQUENCE
// OF/SET OF. model's Element is only a TypeRef, with no component name of
// its own to borrow (unlike a SEQUENCE's named Components), so every
// repeated element shares this fixed name — a documented simplification
// relative to full X.693, which tags repeated elements with the element
// type's own ASN.1 type name.
const repeatedElementName = "item"

func encodeNode(spec *model.Compiled, ref model.TypeRef, v model.Value, elemName, path string, enc *xml.Encoder) error {
	node := spec.Arena.Resolve(ref)
	start := xml.StartElement{Name: xml.Name{Local: elemName}}

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
			if err := enc.EncodeToken(start); err != nil {
				return wrapEncErr(path, err)
			}
			if err := encodeNode(spec, comp.Type, c.Value, comp.Name, path+"."+comp.Name, enc); err != nil {
				return err
			}
			return endElem(enc, start, path)
		}
		return &EncodeError{Path: path, Message: fmt.Sprintf("unknown CHOICE alternative %q", c.Alt)}

	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		s, ok := v.(*model.Struct)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.Struct, got %T", v)}
		}
		if err := enc.EncodeToken(start); err != nil {
			return wrapEncErr(path, err)
		}
		for _, comp := range node.Components {
			fv, present := s.Get(comp.Name)
			if !present {
				if comp.Optional || comp.HasDefault {
					continue
				}
				return &EncodeError{Path: path, Message: fmt.Sprintf("missing required component %q", comp.Name)}
			}
			if err := encodeNode(spec, comp.Type, fv, comp.Name, path+"."+comp.Name, enc); err != nil {
				return err
			}
		}
		return endElem(enc, start, path)

	case model.KindSequenceOf, model.KindSetOf:
		elems, ok := v.([]model.Value)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected []model.Value, got %T", v)}
		}
		if err := enc.EncodeToken(start); err != nil {
			return wrapEncErr(path, err)
		}
		for i, e := range elems {
			if err := encodeNode(spec, node.Element, e, repeatedElementName, fmt.Sprintf("%s[%d]", path, i), enc); err != nil {
				return err
			}
		}
		return endElem(enc, start, path)

	case model.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected bool, got %T", v)}
		}
		if err := enc.EncodeToken(start); err != nil {
			return wrapEncErr(path, err)
		}
		tag := "false"
		if b {
			tag = "true"
		}
		inner := xml.StartElement{Name: xml.Name{Local: tag}}
		if err := enc.EncodeToken(inner); err != nil {
			return wrapEncErr(path, err)
		}
		if err := enc.EncodeToken(inner.End()); err != nil {
			return wrapEncErr(path, err)
		}
		return endElem(enc, start, path)

	case model.KindNull:
		if err := enc.EncodeToken(start); err != nil {
			return wrapEncErr(path, err)
		}
		return endElem(enc, start, path)

	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		ot, ok := v.(*model.OpenType)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.OpenType, got %T", v)}
		}
		return encodeText(enc, start, path, fmt.Sprintf("% X", ot.Bytes))
	}

	text, err := encodeContentText(node, v, path)
	if err != nil {
		return err
	}
	return encodeText(enc, start, path, text)
}

func encodeText(enc *xml.Encoder, start xml.StartElement, path, text string) error {
	if err := enc.EncodeToken(start); err != nil {
		return wrapEncErr(path, err)
	}
	if text != "" {
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return wrapEncErr(path, err)
		}
	}
	return endElem(enc, start, path)
}

func endElem(enc *xml.Encoder, start xml.StartElement, path string) error {
	if err := enc.EncodeToken(start.End()); err != nil {
		return wrapEncErr(path, err)
	}
	return nil
}

func wrapEncErr(path string, err error) error {
	return &EncodeError{Path: path, Message: err.Error(), Err: err}
}

// encodeContentText renders the canonical XER text form of a primitive
// value, per X.693 §8: decimal for INTEGER/ENUMERATED/REAL, hex for OCTET
// STRING, binary digits for BIT STRING, dotted decimal for OID/RELATIVE-OID,
// raw text for character and time-family values.
func encodeContentText(node *model.Type, v model.Value, path string) (string, error) {
	switch node.Kind {
	case model.KindInteger, model.KindEnumerated:
		n, ok := v.(*big.Int)
		if !ok {
			return "", &EncodeError{Path: path, Message: fmt.Sprintf("expected *big.Int, got %T", v)}
		}
		return n.String(), nil
	case model.KindReal:
		f, ok := toFloat(v)
		if !ok {
			return "", &EncodeError{Path: path, Message: fmt.Sprintf("expected float64, got %T", v)}
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case model.KindOctetString:
		b, ok := v.([]byte)
		if !ok {
			return "", &EncodeError{Path: path, Message: fmt.Sprintf("expected []byte, got %T", v)}
		}
		return fmt.Sprintf("%X", b), nil
	case model.KindBitString:
		bs, ok := v.(asn1kit.BitString)
		if !ok {
			return "", &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.BitString, got %T", v)}
		}
		buf := make([]byte, bs.BitLength)
		for i := 0; i < bs.BitLength; i++ {
			if bs.At(i) == 1 {
				buf[i] = '1'
			} else {
				buf[i] = '0'
			}
		}
		return string(buf), nil
	case model.KindObjectIdentifier:
		oid, ok := v.(asn1kit.ObjectIdentifier)
		if !ok {
			return "", &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.ObjectIdentifier, got %T", v)}
		}
		return oid.String(), nil
	case model.KindRelativeOID:
		oid, ok := v.(asn1kit.RelativeOID)
		if !ok {
			return "", &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.RelativeOID, got %T", v)}
		}
		return oid.String(), nil
	}
	if node.Kind.IsStringKind() {
		s, ok := v.(string)
		if !ok {
			return "", &EncodeError{Path: path, Message: fmt.Sprintf("expected string, got %T", v)}
		}
		return s, nil
	}
	if text, ok := timeText(node.Kind, v); ok {
		return text, nil
	}
	return "", &UnsupportedError{Path: path, Message: fmt.Sprintf("kind %s is not supported by xer", node.Kind)}
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
