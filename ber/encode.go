// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ber

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	"golang.org/x/text/encoding/unicode"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
	"asn1kit.dev/asn1kit/tlv"
)

// tagOf converts a resolved [model.EffectiveTag] into the [asn1kit.Tag] used
// by the tlv package's identifier octets.
func tagOf(t model.EffectiveTag) asn1kit.Tag {
	return asn1kit.Tag{Class: asn1kit.Class(t.Class), Number: t.Number}
}

// writeTLV frames content as a single TLV using the tlv package's header
// encoder. The returned slice is the complete header+content encoding.
func writeTLV(tag asn1kit.Tag, constructed bool, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := tlv.NewEncoder(&buf)
	w, err := enc.WriteHeader(tlv.Header{Tag: tag, Constructed: constructed, Length: len(content)})
	if err != nil {
		return nil, err
	}
	if constructed {
		buf.Write(content)
		return buf.Bytes(), nil
	}
	if _, err := w.Write(content); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeNode encodes the value of the type at ref, including the outer tag
// (IMPLICIT replacement or EXPLICIT wrapping) that applies at ref.
func encodeNode(spec *model.Compiled, ref model.TypeRef, v model.Value, path string, der bool) ([]byte, error) {
	node := spec.Arena.Resolve(ref)

	if node.Tag.Mode == model.TagModeExplicit && node.Inner >= 0 {
		inner, err := encodeNode(spec, node.Inner, v, path, der)
		if err != nil {
			return nil, err
		}
		return writeTLV(tagOf(node.Tag), true, inner)
	}

	switch node.Kind {
	case model.KindChoice:
		return encodeChoice(spec, node, v, path, der)
	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		return encodeOpenType(v, path)
	}

	content, constructed, err := encodeContent(spec, node, v, path, der)
	if err != nil {
		return nil, err
	}
	return writeTLV(tagOf(node.Tag), constructed, content)
}

func encodeChoice(spec *model.Compiled, node *model.Type, v model.Value, path string, der bool) ([]byte, error) {
	c, ok := v.(*model.Choice)
	if !ok {
		return nil, &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.Choice, got %T", v)}
	}
	for _, comp := range node.Components {
		if comp.Name == c.Alt {
			return encodeNode(spec, comp.Type, c.Value, path+"."+c.Alt, der)
		}
	}
	return nil, &EncodeError{Path: path, Message: fmt.Sprintf("unknown CHOICE alternative %q", c.Alt)}
}

func encodeOpenType(v model.Value, path string) ([]byte, error) {
	if v == nil {
		return nil, &EncodeError{Path: path, Message: "ANY value must not be nil"}
	}
	ot, ok := v.(*model.OpenType)
	if !ok {
		return nil, &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.OpenType, got %T", v)}
	}
	if ot.Codec != "" && ot.Codec != "ber" {
		return nil, &EncodeError{Path: path, Message: fmt.Sprintf("open value was produced by codec %q, not ber", ot.Codec)}
	}
	return ot.Bytes, nil
}

// encodeContent produces the content octets and constructed flag for node's
// own Kind, ignoring any outer tag wrapping (handled by the caller).
func encodeContent(spec *model.Compiled, node *model.Type, v model.Value, path string, der bool) ([]byte, bool, error) {
	switch node.Kind {
	case model.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected bool, got %T", v)}
		}
		if b {
			return []byte{0xFF}, false, nil
		}
		return []byte{0x00}, false, nil

	case model.KindInteger, model.KindEnumerated:
		n, ok := v.(*big.Int)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected *big.Int, got %T", v)}
		}
		return encodeMinimalInt(n), false, nil

	case model.KindReal:
		return encodeReal(v, path)

	case model.KindNull:
		return nil, false, nil

	case model.KindBitString:
		bs, ok := v.(asn1kit.BitString)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.BitString, got %T", v)}
		}
		unused := (8 - bs.BitLength%8) % 8
		content := make([]byte, 1+len(bs.Bytes))
		content[0] = byte(unused)
		copy(content[1:], bs.Bytes)
		return content, false, nil

	case model.KindOctetString:
		b, ok := v.([]byte)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected []byte, got %T", v)}
		}
		return b, false, nil

	case model.KindObjectIdentifier:
		oid, ok := v.(asn1kit.ObjectIdentifier)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.ObjectIdentifier, got %T", v)}
		}
		return encodeOID(oid, path)

	case model.KindRelativeOID:
		oid, ok := v.(asn1kit.RelativeOID)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected asn1kit.RelativeOID, got %T", v)}
		}
		return encodeRelativeOID([]uint(oid)), false, nil

	case model.KindUTCTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected time.Time, got %T", v)}
		}
		return []byte(asn1kit.FormatUTCTime(t)), false, nil

	case model.KindGeneralizedTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected time.Time, got %T", v)}
		}
		return []byte(asn1kit.FormatGeneralizedTime(t)), false, nil

	case model.KindDate:
		t, ok := v.(time.Time)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected time.Time, got %T", v)}
		}
		return []byte(asn1kit.FormatDate(t)), false, nil

	case model.KindTimeOfDay:
		t, ok := v.(time.Time)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected time.Time, got %T", v)}
		}
		return []byte(asn1kit.FormatTimeOfDay(t)), false, nil

	case model.KindDateTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected time.Time, got %T", v)}
		}
		return []byte(asn1kit.FormatDateTime(t)), false, nil

	case model.KindDuration:
		d, ok := v.(time.Duration)
		if !ok {
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected time.Duration, got %T", v)}
		}
		return []byte(asn1kit.FormatDuration(d)), false, nil

	case model.KindSequence, model.KindExternal, model.KindEmbeddedPDV:
		return encodeStruct(spec, node, v, path, der, false)

	case model.KindSet:
		return encodeStruct(spec, node, v, path, der, true)

	case model.KindSequenceOf:
		return encodeRepeated(spec, node, v, path, der, false)

	case model.KindSetOf:
		return encodeRepeated(spec, node, v, path, der, true)

	default:
		if node.Kind.IsStringKind() {
			return encodeString(node.Kind, v, path)
		}
		return nil, false, &UnsupportedError{Path: path, Message: fmt.Sprintf("encoding %s", node.Kind)}
	}
}

// encodeMinimalInt returns the minimal two's-complement big-endian encoding
// of n, as required by both BER and DER (X.690 §8.3.2).
func encodeMinimalInt(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0x00}
	}
	if n.Sign() > 0 {
		b := n.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0x00}, b...)
		}
		return b
	}
	// Two's complement of a negative number: find the minimal byte width,
	// then fill with the two's complement representation.
	bitLen := n.BitLen()
	nBytes := bitLen/8 + 1
	twos := new(big.Int).Add(n, new(big.Int).Lsh(big.NewInt(1), uint(nBytes*8)))
	b := twos.Bytes()
	for len(b) < nBytes {
		b = append([]byte{0}, b...)
	}
	// Minimize: drop leading 0xFF bytes as long as the next byte still has
	// its sign bit set (X.690 §8.3.2: no more than necessary leading octets).
	for len(b) > 1 && b[0] == 0xFF && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b
}

// encodeReal implements the binary encoding of X.690 §8.5. The decimal (NR1/
// NR2/NR3) forms are not produced; only the base-2 binary form is written,
// which every BER/DER decoder must accept.
func encodeReal(v model.Value, path string) ([]byte, bool, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case *big.Float:
		f, _ = n.Float64()
	default:
		return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected float64 or *big.Float, got %T", v)}
	}
	switch {
	case f == 0 && !math.Signbit(f):
		return nil, false, nil
	case math.IsNaN(f):
		return nil, false, &EncodeError{Path: path, Message: "REAL value must not be NaN"}
	case math.IsInf(f, 1):
		return []byte{0x40}, false, nil
	case math.IsInf(f, -1):
		return []byte{0x41}, false, nil
	case f == 0 && math.Signbit(f):
		return []byte{0x43}, false, nil
	}

	sign := byte(0)
	abs := f
	if f < 0 {
		sign = 0x40
		abs = -f
	}
	frac, exp := math.Frexp(abs) // abs == frac * 2^exp, frac in [0.5, 1)
	mantissa := int64(frac * (1 << 53))
	exponent := exp - 53
	for mantissa != 0 && mantissa%2 == 0 {
		mantissa /= 2
		exponent++
	}

	expBytes := encodeMinimalInt(big.NewInt(int64(exponent)))
	mantBytes := big.NewInt(mantissa).Bytes()

	var content bytes.Buffer
	first := byte(0x80) | sign
	switch {
	case len(expBytes) == 1:
		first |= 0x00
	case len(expBytes) == 2:
		first |= 0x01
	case len(expBytes) == 3:
		first |= 0x02
	default:
		first |= 0x03
		content.WriteByte(first)
		content.WriteByte(byte(len(expBytes)))
		content.Write(expBytes)
		content.Write(mantBytes)
		return content.Bytes(), false, nil
	}
	content.WriteByte(first)
	content.Write(expBytes)
	content.Write(mantBytes)
	return content.Bytes(), false, nil
}

// encodeString returns the content octets for an ASN.1 character string
// Kind. Most string kinds store their content as raw octets (the valid
// character repertoire having already been checked at resolve/constraint
// time); BMPString and UniversalString transcode UTF-8 to big-endian
// UTF-16/UTF-32.
func encodeString(kind model.Kind, v model.Value, path string) ([]byte, bool, error) {
	s, ok := v.(string)
	if !ok {
		return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected string, got %T", v)}
	}
	switch kind {
	case model.KindBMPString:
		enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
		b, err := enc.Bytes([]byte(s))
		if err != nil {
			return nil, false, &EncodeError{Path: path, Message: "invalid BMPString content", Err: err}
		}
		return b, false, nil
	case model.KindUniversalString:
		return encodeUTF32(s), false, nil
	default:
		return []byte(s), false, nil
	}
}

func encodeUTF32(s string) []byte {
	buf := make([]byte, 0, len(s)*4)
	for _, r := range s {
		buf = append(buf, byte(r>>24), byte(r>>16), byte(r>>8), byte(r))
	}
	return buf
}

func encodeOID(oid asn1kit.ObjectIdentifier, path string) ([]byte, bool, error) {
	if len(oid) < 2 {
		return nil, false, &EncodeError{Path: path, Message: "OBJECT IDENTIFIER must have at least two arcs"}
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] >= 40) {
		return nil, false, &EncodeError{Path: path, Message: "invalid first two arcs of OBJECT IDENTIFIER"}
	}
	first := oid[0]*40 + oid[1]
	arcs := append([]uint{first}, oid[2:]...)
	return encodeRelativeOID(arcs), false, nil
}

func encodeRelativeOID(arcs []uint) []byte {
	var buf bytes.Buffer
	for _, arc := range arcs {
		writeBase128(&buf, arc)
	}
	return buf.Bytes()
}

func writeBase128(buf *bytes.Buffer, n uint) {
	var tmp [10]byte
	i := len(tmp)
	i--
	tmp[i] = byte(n & 0x7f)
	n >>= 7
	for n > 0 {
		i--
		tmp[i] = byte(n&0x7f) | 0x80
		n >>= 7
	}
	buf.Write(tmp[i:])
}

// encodeStruct encodes a SEQUENCE/SET/EXTERNAL/EMBEDDED PDV value. DER
// requires SET components to appear in ascending tag order; SEQUENCE
// (and EXTERNAL/EMBEDDED PDV, which are SEQUENCE-shaped) preserve
// declaration order always.
func encodeStruct(spec *model.Compiled, node *model.Type, v model.Value, path string, der, isSet bool) ([]byte, bool, error) {
	s, ok := v.(*model.Struct)
	if !ok {
		return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected *model.Struct, got %T", v)}
	}
	type encoded struct {
		tag   asn1kit.Tag
		bytes []byte
	}
	var parts []encoded
	for _, comp := range node.Components {
		fv, present := s.Get(comp.Name)
		if !present {
			if comp.Optional || comp.HasDefault {
				continue
			}
			return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("missing required component %q", comp.Name)}
		}
		b, err := encodeNode(spec, comp.Type, fv, path+"."+comp.Name, der)
		if err != nil {
			return nil, false, err
		}
		parts = append(parts, encoded{tag: tagOf(spec.Arena.Get(comp.Type).Tag), bytes: b})
	}
	if der && isSet {
		sort.Slice(parts, func(i, j int) bool {
			if parts[i].tag.Class != parts[j].tag.Class {
				return parts[i].tag.Class < parts[j].tag.Class
			}
			return parts[i].tag.Number < parts[j].tag.Number
		})
	}
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p.bytes)
	}
	return buf.Bytes(), true, nil
}

// encodeRepeated encodes a SEQUENCE OF/SET OF value. DER requires SET OF
// elements to be sorted by their fully-encoded octets (X.690 §11.6);
// SEQUENCE OF always preserves value order.
func encodeRepeated(spec *model.Compiled, node *model.Type, v model.Value, path string, der, isSetOf bool) ([]byte, bool, error) {
	elems, ok := v.([]model.Value)
	if !ok {
		return nil, false, &EncodeError{Path: path, Message: fmt.Sprintf("expected []model.Value, got %T", v)}
	}
	encoded := make([][]byte, len(elems))
	for i, e := range elems {
		b, err := encodeNode(spec, node.Element, e, fmt.Sprintf("%s[%d]", path, i), der)
		if err != nil {
			return nil, false, err
		}
		encoded[i] = b
	}
	if der && isSetOf {
		sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })
	}
	var buf bytes.Buffer
	for _, b := range encoded {
		buf.Write(b)
	}
	return buf.Bytes(), true, nil
}
