// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package per

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"golang.org/x/text/encoding/unicode"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
)

// encodeNode encodes v against ref into w. PER carries no tag octets, so
// unlike the ber package's encodeNode there is no need to special-case
// node.Inner for EXPLICIT unwrapping: [model.Arena.Resolve] already gives
// the flattened content Kind, which is all PER content encoding ever
// dispatches on.
func encodeNode(spec *model.Compiled, ref model.TypeRef, v model.Value, path string, w *BitWriter, aligned bool) error {
	node := spec.Arena.Resolve(ref)
	switch node.Kind {
	case model.KindChoice:
		return encodeChoice(spec, node, v, path, w, aligned)
	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		return encodeOpenType(v, path, w)
	case model.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected bool, got %T", v)}
		}
		bit := 0
		if b {
			bit = 1
		}
		w.WriteBit(bit)
		return nil
	case model.KindInteger, model.KindEnumerated:
		n, ok := v.(*big.Int)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected *big.Int, got %T", v)}
		}
		set, hasSet := valueSet(node)
		writeConstrainedInt(w, set, hasSet, n, aligned)
		return nil
	case model.KindNull:
		return nil
	case model.KindReal:
		f, ok := toFloat(v)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected float64, got %T", v)}
		}
		content := encodeRealContent(f)
		writeLengthPrefixedBytes(w, content)
		return nil
	case model.KindBitString:
		bs, ok := v.(asn1kit.BitString)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.BitString, got %T", v)}
		}
		return encodeSizedBytes(node, bs.Bytes, bs.BitLength, w, aligned)
	case model.KindOctetString:
		b, ok := v.([]byte)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected []byte, got %T", v)}
		}
		return encodeSizedBytes(node, b, len(b)*8, w, aligned)
	case model.KindObjectIdentifier, model.KindRelativeOID:
		content, err := encodeOIDContent(v, path, node.Kind == model.KindRelativeOID)
		if err != nil {
			return err
		}
		writeLengthPrefixedBytes(w, content)
		return nil
	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		return encodeStruct(spec, node, v, path, w, aligned)
	case model.KindSequenceOf, model.KindSetOf:
		return encodeRepeated(spec, node, v, path, w, aligned)
	}
	if node.Kind.IsStringKind() {
		s, ok := v.(string)
		if !ok {
			return &EncodeError{Path: path, Message: fmt.Sprintf("expected string, got %T", v)}
		}
		return encodeCharString(node, s, w, aligned)
	}
	if text, ok := timeText(node.Kind, v); ok {
		return encodeSizedBytes(node, []byte(text), len(text)*8, w, aligned)
	}
	return &UnsupportedError{Path: path, Message: fmt.Sprintf("kind %s is not supported by per", node.Kind)}
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

// encodeSizedBytes writes content (already byte-packed; for BIT STRING,
// the BitString's Bytes with the first bit in the high-order bit) governed by node's SIZE constraint, per the framing
// rules of X.691 §10.9/§16/§17: a fixed-size root omits the length field
// entirely, a finite ranged root uses a constrained-integer length field,
// and anything else falls back to a general length determinant. bitLen is
// the logical size in bits (used only to pick the SIZE domain comparison
// point; content itself is always written in whole octets here, a
// documented simplification for BIT STRING — see DESIGN.md).
func encodeSizedBytes(node *model.Type, content []byte, bitLen int, w *BitWriter, aligned bool) error {
	set, hasSet := sizeSet(node)
	if hasSet && set.RootFinite() {
		lo, hi := set.Bounds()
		n := big.NewInt(int64(len(content)))
		if lo.Cmp(hi) == 0 {
			w.WriteBytes(content)
			return nil
		}
		writeConstrainedInt(w, set, true, n, aligned)
		if aligned {
			w.Align()
		}
		w.WriteBytes(content)
		return nil
	}
	writeLengthPrefixedBytes(w, content)
	return nil
}

func encodeCharString(node *model.Type, s string, w *BitWriter, aligned bool) error {
	var content []byte
	switch node.Kind {
	case model.KindBMPString:
		enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
		b, err := enc.Bytes([]byte(s))
		if err != nil {
			return &EncodeError{Message: "invalid BMPString content: " + err.Error()}
		}
		content = b
	case model.KindUniversalString:
		for _, r := range s {
			content = append(content, byte(r>>24), byte(r>>16), byte(r>>8), byte(r))
		}
	default:
		content = []byte(s)
	}
	return encodeSizedBytes(node, content, len(content)*8, w, aligned)
}

// timeText renders a time-family Value into its canonical ASN.1 string
// form, the same text BER embeds as content octets for these kinds
// (X.691 §15 specifies no separate binary framing for the time types).
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

func encodeChoice(spec *model.Compiled, node *model.Type, v model.Value, path string, w *BitWriter, aligned bool) error {
	c, ok := v.(*model.Choice)
	if !ok {
		return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.Choice, got %T", v)}
	}
	rootN := len(node.Components)
	extAt := -1
	if node.ExtensibleAt >= 0 {
		rootN = node.ExtensibleAt + 1
		extAt = node.ExtensibleAt
	}
	idx := -1
	for i, comp := range node.Components {
		if comp.Name == c.Alt {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &EncodeError{Path: path, Message: fmt.Sprintf("unknown CHOICE alternative %q", c.Alt)}
	}
	if extAt >= 0 {
		if idx > extAt {
			w.WriteBit(1)
			writeNormallySmallInt(w, idx-rootN)
			var inner BitWriter
			if err := encodeNode(spec, node.Components[idx].Type, c.Value, path+"."+c.Alt, &inner, aligned); err != nil {
				return err
			}
			writeLengthPrefixedBytes(w, inner.Bytes())
			return nil
		}
		w.WriteBit(0)
	}
	writeUintBits(w, big.NewInt(int64(idx)), bitsForChoice(rootN))
	return encodeNode(spec, node.Components[idx].Type, c.Value, path+"."+c.Alt, w, aligned)
}

// writeNormallySmallInt writes n per X.691 §10.6 (used for CHOICE extension
// indices): n < 64 in 7 bits (high bit 0); otherwise a 1 bit followed by a
// general length-determinant-prefixed unconstrained integer.
func writeNormallySmallInt(w *BitWriter, n int) {
	if n < 64 {
		w.WriteBit(0)
		writeUintBits(w, big.NewInt(int64(n)), 6)
		return
	}
	w.WriteBit(1)
	writeUnconstrainedInt(w, big.NewInt(int64(n)))
}

func readNormallySmallInt(r *BitReader) (int, error) {
	b, err := r.ReadBit()
	if err != nil {
		return 0, err
	}
	if b == 0 {
		v, err := readUintBits(r, 6)
		if err != nil {
			return 0, err
		}
		return int(v.Int64()), nil
	}
	v, err := readUnconstrainedInt(r)
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func encodeOpenType(v model.Value, path string, w *BitWriter) error {
	ot, ok := v.(*model.OpenType)
	if !ok {
		return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.OpenType, got %T", v)}
	}
	writeLengthPrefixedBytes(w, ot.Bytes)
	return nil
}

func encodeStruct(spec *model.Compiled, node *model.Type, v model.Value, path string, w *BitWriter, aligned bool) error {
	s, ok := v.(*model.Struct)
	if !ok {
		return &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.Struct, got %T", v)}
	}
	rootComps := node.Components
	var extComps []model.Component
	if node.ExtensibleAt >= 0 {
		rootComps = node.Components[:node.ExtensibleAt+1]
		extComps = node.Components[node.ExtensibleAt+1:]
	}

	var extPresent []bool
	anyExt := false
	if node.ExtensibleAt >= 0 {
		for _, comp := range extComps {
			_, present := s.Get(comp.Name)
			extPresent = append(extPresent, present)
			anyExt = anyExt || present
		}
		if anyExt {
			w.WriteBit(1)
		} else {
			w.WriteBit(0)
		}
	}

	for _, comp := range rootComps {
		if comp.Optional || comp.HasDefault {
			_, present := s.Get(comp.Name)
			bit := 0
			if present {
				bit = 1
			}
			w.WriteBit(bit)
		}
	}
	for _, comp := range rootComps {
		fv, present := s.Get(comp.Name)
		if !present {
			if comp.Optional || comp.HasDefault {
				continue
			}
			return &EncodeError{Path: path, Message: fmt.Sprintf("missing required component %q", comp.Name)}
		}
		if err := encodeNode(spec, comp.Type, fv, path+"."+comp.Name, w, aligned); err != nil {
			return err
		}
	}
	if node.ExtensibleAt >= 0 && anyExt {
		writeLengthPrefixedElements(w, len(extComps), func(i int) { w.WriteBit(boolBit(extPresent[i])) })
		for i, comp := range extComps {
			if !extPresent[i] {
				continue
			}
			fv, _ := s.Get(comp.Name)
			var inner BitWriter
			if err := encodeNode(spec, comp.Type, fv, path+"."+comp.Name, &inner, aligned); err != nil {
				return err
			}
			writeLengthPrefixedBytes(w, inner.Bytes())
		}
	}
	return nil
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeRepeated(spec *model.Compiled, node *model.Type, v model.Value, path string, w *BitWriter, aligned bool) error {
	elems, ok := v.([]model.Value)
	if !ok {
		return &EncodeError{Path: path, Message: fmt.Sprintf("expected []model.Value, got %T", v)}
	}
	set, hasSet := sizeSet(node)
	if hasSet && set.RootFinite() {
		lo, hi := set.Bounds()
		n := big.NewInt(int64(len(elems)))
		if lo.Cmp(hi) != 0 {
			writeConstrainedInt(w, set, true, n, aligned)
		}
		var encErr error
		for i, e := range elems {
			if err := encodeNode(spec, node.Element, e, fmt.Sprintf("%s[%d]", path, i), w, aligned); err != nil {
				encErr = err
				break
			}
		}
		return encErr
	}
	var encErr error
	writeLengthPrefixedElements(w, len(elems), func(i int) {
		if encErr != nil {
			return
		}
		if err := encodeNode(spec, node.Element, elems[i], fmt.Sprintf("%s[%d]", path, i), w, aligned); err != nil {
			encErr = err
		}
	})
	return encErr
}

// encodeRealContent mirrors the binary-form REAL content octets used by the
// ber package's encodeReal, since X.691 §15 specifies PER's REAL content
// octets as identical to BER's.
func encodeRealContent(f float64) []byte {
	if f == 0 {
		if math.Signbit(f) {
			return []byte{0x43}
		}
		return nil
	}
	if math.IsInf(f, 1) {
		return []byte{0x40}
	}
	if math.IsInf(f, -1) {
		return []byte{0x41}
	}
	if math.IsNaN(f) {
		return []byte{0x42}
	}
	mant, exp := math.Frexp(f)
	sign := byte(0)
	if mant < 0 {
		sign = 0x40
		mant = -mant
	}
	m := new(big.Int)
	mf := mant
	for i := 0; i < 60 && mf != 0; i++ {
		mf *= 2
		m.Lsh(m, 1)
		if mf >= 1 {
			m.Or(m, big.NewInt(1))
			mf -= 1
		}
	}
	e := exp - 60
	for m.Bit(0) == 0 && m.Sign() != 0 {
		m.Rsh(m, 1)
		e++
	}
	mb := m.Bytes()
	eb := minimalTwosComplement(big.NewInt(int64(e)))
	var lenOctet byte
	switch len(eb) {
	case 1:
		lenOctet = 0
	case 2:
		lenOctet = 1
	case 3:
		lenOctet = 2
	default:
		lenOctet = 3
	}
	first := 0x80 | sign | lenOctet
	out := []byte{first}
	if lenOctet == 3 {
		out = append(out, byte(len(eb)))
	}
	out = append(out, eb...)
	out = append(out, mb...)
	return out
}

func encodeOIDContent(v model.Value, path string, relative bool) ([]byte, error) {
	var arcs []uint
	switch oid := v.(type) {
	case asn1kit.ObjectIdentifier:
		arcs = []uint(oid)
	case asn1kit.RelativeOID:
		arcs = []uint(oid)
	default:
		return nil, &EncodeError{Path: path, Message: fmt.Sprintf("expected OID type, got %T", v)}
	}
	var out []byte
	start := 0
	if !relative {
		if len(arcs) < 2 {
			return nil, &EncodeError{Path: path, Message: "OBJECT IDENTIFIER needs at least two arcs"}
		}
		out = writeBase128(nil, 40*arcs[0]+arcs[1])
		start = 2
	}
	for _, a := range arcs[start:] {
		out = writeBase128(out, a)
	}
	return out, nil
}

func writeBase128(out []byte, v uint) []byte {
	var tmp [10]byte
	i := len(tmp)
	i--
	tmp[i] = byte(v & 0x7F)
	v >>= 7
	for v > 0 {
		i--
		tmp[i] = byte(v&0x7F) | 0x80
		v >>= 7
	}
	return append(out, tmp[i:]...)
}
