// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
)

// safeIntBound is the largest magnitude a JSON number can hold without
// losing precision in a conforming double-precision JSON reader (2^53-1,
// per spec.md §4.7's "INTEGER to number when within safe range else
// string").
var safeIntBound = big.NewInt(1<<53 - 1)

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
			buf.WriteByte('{')
			writeJSONString(buf, comp.Name)
			buf.WriteByte(':')
			if err := encodeNode(spec, comp.Type, c.Value, path+"."+comp.Name, buf); err != nil {
				return err
			}
			buf.WriteByte('}')
			return nil
		}
		return &EncodeError{Path: path, Message: fmt.Sprintf("unknown CHOICE alternative %q", c.Alt)}

	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		s, ok := v.(*model.Struct)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.Struct, got %T", v)}
		}
		buf.WriteByte('{')
		first := true
		for _, comp := range node.Components {
			fv, present := s.Get(comp.Name)
			if !present {
				if comp.Optional || comp.HasDefault {
					continue
				}
				return &EncodeError{Path: path, Message: fmt.Sprintf("missing required component %q", comp.Name)}
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeJSONString(buf, comp.Name)
			buf.WriteByte(':')
			if err := encodeNode(spec, comp.Type, fv, path+"."+comp.Name, buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case model.KindSequenceOf, model.KindSetOf:
		elems, ok := v.([]model.Value)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected []model.Value, got %T", v)}
		}
		buf.WriteByte('[')
		for i, e := range elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeNode(spec, node.Element, e, fmt.Sprintf("%s[%d]", path, i), buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case model.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected bool, got %T", v)}
		}
		if b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil

	case model.KindNull:
		buf.WriteString("null")
		return nil

	case model.KindInteger, model.KindEnumerated:
		n, ok := v.(*big.Int)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *big.Int, got %T", v)}
		}
		if n.CmpAbs(safeIntBound) <= 0 {
			buf.WriteString(n.String())
		} else {
			writeJSONString(buf, n.String())
		}
		return nil

	case model.KindReal:
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
		writeJSONString(buf, fmt.Sprintf("%X", b))
		return nil

	case model.KindBitString:
		bs, ok := v.(asn1kit.BitString)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.BitString, got %T", v)}
		}
		buf.WriteByte('{')
		buf.WriteString(`"value":`)
		writeJSONString(buf, fmt.Sprintf("%X", bs.Bytes))
		buf.WriteString(`,"length":`)
		buf.WriteString(strconv.Itoa(bs.BitLength))
		buf.WriteByte('}')
		return nil

	case model.KindObjectIdentifier:
		oid, ok := v.(asn1kit.ObjectIdentifier)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.ObjectIdentifier, got %T", v)}
		}
		writeJSONString(buf, oid.String())
		return nil

	case model.KindRelativeOID:
		oid, ok := v.(asn1kit.RelativeOID)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.RelativeOID, got %T", v)}
		}
		writeJSONString(buf, oid.String())
		return nil

	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		ot, ok := v.(*model.OpenType)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.OpenType, got %T", v)}
		}
		writeJSONString(buf, fmt.Sprintf("%X", ot.Bytes))
		return nil
	}

	if node.Kind.IsStringKind() {
		s, ok := v.(string)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected string, got %T", v)}
		}
		writeJSONString(buf, s)
		return nil
	}
	if text, ok := timeText(node.Kind, v); ok {
		writeJSONString(buf, text)
		return nil
	}
	return &UnsupportedError{Path: path, Message: fmt.Sprintf("kind %s is not supported by jer", node.Kind)}
}

// writeJSONString writes s as a quoted, escaped JSON string literal,
// reusing encoding/json's own escaping rules rather than reimplementing
// them (the one place this package still calls into encoding/json's
// marshaling, since hand-rolled JSON string quoting is exactly the kind of
// stdlib reinvention this module otherwise avoids).
func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
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
