// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ber

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
	"asn1kit.dev/asn1kit/tlv"
)

func newDecoder(data []byte) *tlv.Decoder {
	return tlv.NewDecoder(bytes.NewReader(data))
}

func wrapDecodeErr(path string, dec *tlv.Decoder, err error) error {
	if de, ok := err.(*DecodeError); ok {
		return de
	}
	msg := "unexpected end of input"
	if err != io.EOF && err != io.ErrUnexpectedEOF {
		msg = err.Error()
	}
	return &DecodeError{Path: path, Offset: dec.InputOffset(), Message: msg, Err: err}
}

// decodeNode reads the next TLV from dec and decodes it as the type at ref.
func decodeNode(dec *tlv.Decoder, spec *model.Compiled, ref model.TypeRef, path string, lim Limits, depth int) (model.Value, error) {
	h, val, err := dec.ReadHeader()
	if err != nil {
		return nil, wrapDecodeErr(path, dec, err)
	}
	return decodeValueWithHeader(dec, spec, ref, h, val, path, lim, depth)
}

// decodeValueWithHeader decodes the type at ref given its already-read outer
// TLV header h (and, for primitive encodings, its content reader val).
func decodeValueWithHeader(dec *tlv.Decoder, spec *model.Compiled, ref model.TypeRef, h tlv.Header, val *tlv.Value, path string, lim Limits, depth int) (model.Value, error) {
	if depth > lim.MaxDepth {
		return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "maximum nesting depth exceeded"}
	}

	node := spec.Arena.Get(ref)
	if node.Tag.Mode == model.TagModeExplicit && node.Inner >= 0 {
		if !h.Constructed {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "EXPLICIT tag must use constructed encoding"}
		}
		ih, ival, err := dec.ReadHeader()
		if err != nil {
			return nil, wrapDecodeErr(path, dec, err)
		}
		if ih == (tlv.Header{}) {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "EXPLICIT tag has no content"}
		}
		v, err := decodeValueWithHeader(dec, spec, node.Inner, ih, ival, path, lim, depth+1)
		if err != nil {
			return nil, err
		}
		eh, _, err := dec.ReadHeader()
		if err != nil {
			return nil, wrapDecodeErr(path, dec, err)
		}
		if eh != (tlv.Header{}) {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "EXPLICIT tag has multiple components"}
		}
		return v, nil
	}

	resolved := spec.Arena.Resolve(ref)
	switch resolved.Kind {
	case model.KindChoice:
		return decodeChoiceAlt(dec, spec, resolved, h, val, path, lim, depth)
	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		content, err := readRaw(dec, h, val, path, lim, depth)
		if err != nil {
			return nil, err
		}
		b, err := writeTLV(h.Tag, h.Constructed, content)
		if err != nil {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "re-framing open type value", Err: err}
		}
		return &model.OpenType{Codec: "ber", Bytes: b}, nil
	}
	return decodeContent(dec, spec, resolved, h, val, path, lim, depth)
}

func decodeChoiceAlt(dec *tlv.Decoder, spec *model.Compiled, choiceNode *model.Type, h tlv.Header, val *tlv.Value, path string, lim Limits, depth int) (model.Value, error) {
	for _, comp := range choiceNode.Components {
		if tagSetContains(componentTagSet(spec, comp.Type), h.Tag) {
			v, err := decodeValueWithHeader(dec, spec, comp.Type, h, val, path+"."+comp.Name, lim, depth+1)
			if err != nil {
				return nil, err
			}
			return &model.Choice{Alt: comp.Name, Value: v}, nil
		}
	}
	return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: fmt.Sprintf("tag %s does not match any CHOICE alternative", h.Tag.String())}
}

// componentTagSet returns the set of wire tags that can open an encoding of
// the component reference ref: a single tag for ordinary and EXPLICIT-wrapped
// types, or the flattened set of alternative tags for a bare CHOICE (which
// has no tag of its own).
func componentTagSet(spec *model.Compiled, ref model.TypeRef) []asn1kit.Tag {
	node := spec.Arena.Get(ref)
	if node.Tag.Mode == model.TagModeExplicit && node.Inner >= 0 {
		return []asn1kit.Tag{tagOf(node.Tag)}
	}
	resolved := spec.Arena.Resolve(ref)
	if resolved.Kind == model.KindChoice {
		var tags []asn1kit.Tag
		for _, c := range resolved.Components {
			tags = append(tags, componentTagSet(spec, c.Type)...)
		}
		return tags
	}
	return []asn1kit.Tag{tagOf(node.Tag)}
}

func tagSetContains(tags []asn1kit.Tag, t asn1kit.Tag) bool {
	for _, x := range tags {
		if x == t {
			return true
		}
	}
	return false
}

func decodeStruct(dec *tlv.Decoder, spec *model.Compiled, node *model.Type, path string, lim Limits, depth int) (model.Value, error) {
	s := &model.Struct{}
	h, val, err := dec.ReadHeader()
	if err != nil {
		return nil, wrapDecodeErr(path, dec, err)
	}
	for _, comp := range node.Components {
		if h == (tlv.Header{}) || !tagSetContains(componentTagSet(spec, comp.Type), h.Tag) {
			if comp.HasDefault {
				s.Set(comp.Name, comp.Default)
				continue
			}
			if comp.Optional {
				continue
			}
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: fmt.Sprintf("missing required component %q", comp.Name)}
		}
		v, err := decodeValueWithHeader(dec, spec, comp.Type, h, val, path+"."+comp.Name, lim, depth+1)
		if err != nil {
			return nil, err
		}
		s.Set(comp.Name, v)
		h, val, err = dec.ReadHeader()
		if err != nil {
			return nil, wrapDecodeErr(path, dec, err)
		}
	}
	// Unknown trailing components are tolerated (extension additions this
	// compilation does not know about); they are skipped rather than
	// rejected, matching the tolerant-receiver posture of X.691's
	// extensibility model.
	for h != (tlv.Header{}) {
		if err := dec.Skip(); err != nil {
			return nil, wrapDecodeErr(path, dec, err)
		}
		h, _, err = dec.ReadHeader()
		if err != nil {
			return nil, wrapDecodeErr(path, dec, err)
		}
	}
	return s, nil
}

func decodeRepeated(dec *tlv.Decoder, spec *model.Compiled, node *model.Type, path string, lim Limits, depth int) (model.Value, error) {
	var elems []model.Value
	for i := 0; ; i++ {
		h, val, err := dec.ReadHeader()
		if err != nil {
			return nil, wrapDecodeErr(path, dec, err)
		}
		if h == (tlv.Header{}) {
			break
		}
		v, err := decodeValueWithHeader(dec, spec, node.Element, h, val, fmt.Sprintf("%s[%d]", path, i), lim, depth+1)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return elems, nil
}

func readAllValue(val *tlv.Value, path string, dec *tlv.Decoder, lim Limits) ([]byte, error) {
	if val.Len() > lim.MaxLength {
		return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "value exceeds configured maximum length"}
	}
	buf := make([]byte, val.Len())
	if _, err := io.ReadFull(val, buf); err != nil {
		return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "reading content octets", Err: err}
	}
	return buf, nil
}

// readRaw collects the complete content octets of an as-yet-undecoded value,
// recursing into constructed encodings and re-framing each nested TLV along
// the way. Used for ANY/open type passthrough.
func readRaw(dec *tlv.Decoder, h tlv.Header, val *tlv.Value, path string, lim Limits, depth int) ([]byte, error) {
	if depth > lim.MaxDepth {
		return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "maximum nesting depth exceeded"}
	}
	if !h.Constructed {
		return readAllValue(val, path, dec, lim)
	}
	var buf bytes.Buffer
	for {
		ch, cval, err := dec.ReadHeader()
		if err != nil {
			return nil, wrapDecodeErr(path, dec, err)
		}
		if ch == (tlv.Header{}) {
			break
		}
		content, err := readRaw(dec, ch, cval, path, lim, depth+1)
		if err != nil {
			return nil, err
		}
		b, err := writeTLV(ch.Tag, ch.Constructed, content)
		if err != nil {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "re-framing nested value", Err: err}
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func decodeContent(dec *tlv.Decoder, spec *model.Compiled, node *model.Type, h tlv.Header, val *tlv.Value, path string, lim Limits, depth int) (model.Value, error) {
	switch node.Kind {
	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		return decodeStruct(dec, spec, node, path, lim, depth)
	case model.KindSequenceOf, model.KindSetOf:
		return decodeRepeated(dec, spec, node, path, lim, depth)
	}

	content, err := readAllValue(val, path, dec, lim)
	if err != nil {
		return nil, err
	}
	switch node.Kind {
	case model.KindBoolean:
		if len(content) != 1 {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "BOOLEAN content must be exactly one octet"}
		}
		return content[0] != 0x00, nil

	case model.KindInteger, model.KindEnumerated:
		if len(content) == 0 {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "INTEGER content must not be empty"}
		}
		return decodeMinimalInt(content), nil

	case model.KindReal:
		return decodeReal(content, path, dec)

	case model.KindNull:
		if len(content) != 0 {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "NULL content must be empty"}
		}
		return nil, nil

	case model.KindBitString:
		if len(content) == 0 {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "BIT STRING content must have an unused-bits octet"}
		}
		unused := int(content[0])
		if unused > 7 || (unused > 0 && len(content) == 1) {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "invalid unused-bits count"}
		}
		return asn1kit.BitString{Bytes: content[1:], BitLength: (len(content)-1)*8 - unused}, nil

	case model.KindOctetString:
		return content, nil

	case model.KindObjectIdentifier:
		return decodeOID(content, path, dec)

	case model.KindRelativeOID:
		arcs, err := decodeArcs(content, path, dec)
		if err != nil {
			return nil, err
		}
		return asn1kit.RelativeOID(arcs), nil

	case model.KindUTCTime:
		t, ok := parseUTCTime(string(content))
		if !ok {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "invalid UTCTime content"}
		}
		return t, nil

	case model.KindGeneralizedTime:
		t, ok := parseGeneralizedTime(string(content))
		if !ok {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "invalid GeneralizedTime content"}
		}
		return t, nil

	case model.KindDate:
		t, ok := asn1kit.ParseDate(string(content))
		if !ok {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "invalid DATE content"}
		}
		return t, nil

	case model.KindTimeOfDay:
		offset, loc, _, ok := asn1kit.ParseASN1Time(string(content))
		if !ok {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "invalid TIME-OF-DAY content"}
		}
		return time.Date(0, 1, 1, 0, 0, 0, 0, loc).Add(offset), nil

	case model.KindDateTime:
		t, ok := parseDateTime(string(content))
		if !ok {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "invalid DATE-TIME content"}
		}
		return t, nil

	case model.KindDuration:
		d, ok := parseDuration(string(content))
		if !ok {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "invalid DURATION content"}
		}
		return d, nil

	default:
		if node.Kind.IsStringKind() {
			s, err := decodeString(node.Kind, content, path, dec)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
		return nil, &UnsupportedError{Path: path, Message: fmt.Sprintf("decoding %s", node.Kind)}
	}
}

func decodeMinimalInt(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	n := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}

// decodeReal implements the binary form of X.690 §8.5. Decimal (NR1/NR2/NR3)
// encodings are rejected as unsupported.
func decodeReal(content []byte, path string, dec *tlv.Decoder) (model.Value, error) {
	if len(content) == 0 {
		return float64(0), nil
	}
	first := content[0]
	switch first {
	case 0x40:
		return math.Inf(1), nil
	case 0x41:
		return math.Inf(-1), nil
	case 0x42:
		return math.NaN(), nil
	case 0x43:
		return math.Copysign(0, -1), nil
	}
	if first&0x80 == 0 {
		return nil, &UnsupportedError{Path: path, Message: "decimal-form REAL values are not supported"}
	}

	sign := 1.0
	if first&0x40 != 0 {
		sign = -1.0
	}
	base := (first >> 4) & 0x3
	scale := uint((first >> 2) & 0x3)
	var baseMul float64
	switch base {
	case 0:
		baseMul = 2
	case 1:
		baseMul = 8
	case 2:
		baseMul = 16
	default:
		return nil, &UnsupportedError{Path: path, Message: "REAL base 2^8 is reserved"}
	}

	idx := 1
	var expLen int
	if first&0x3 == 0x3 {
		if len(content) < 2 {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "truncated REAL exponent length"}
		}
		expLen = int(content[1])
		idx = 2
	} else {
		expLen = int(first&0x3) + 1
	}
	if idx+expLen > len(content) {
		return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "truncated REAL exponent"}
	}
	exponent := decodeMinimalInt(content[idx : idx+expLen]).Int64()
	mantissa := new(big.Int).SetBytes(content[idx+expLen:])
	mantissa.Lsh(mantissa, scale)

	f := new(big.Float).SetInt(mantissa)
	f.Mul(f, big.NewFloat(math.Pow(baseMul, float64(exponent))))
	result, _ := f.Float64()
	return sign * result, nil
}

func decodeOID(content []byte, path string, dec *tlv.Decoder) (model.Value, error) {
	arcs, err := decodeArcs(content, path, dec)
	if err != nil {
		return nil, err
	}
	if len(arcs) == 0 {
		return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "OBJECT IDENTIFIER content must not be empty"}
	}
	first := arcs[0]
	var x, y uint
	if first < 80 {
		x = first / 40
		y = first % 40
	} else {
		x = 2
		y = first - 80
	}
	oid := append(asn1kit.ObjectIdentifier{x, y}, arcs[1:]...)
	return oid, nil
}

func decodeArcs(content []byte, path string, dec *tlv.Decoder) ([]uint, error) {
	var arcs []uint
	i := 0
	for i < len(content) {
		var v uint
		for {
			if i >= len(content) {
				return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "truncated OID/RELATIVE-OID arc"}
			}
			b := content[i]
			i++
			v = v<<7 | uint(b&0x7f)
			if b&0x80 == 0 {
				break
			}
		}
		arcs = append(arcs, v)
	}
	return arcs, nil
}

func decodeString(kind model.Kind, content []byte, path string, dec *tlv.Decoder) (model.Value, error) {
	switch kind {
	case model.KindBMPString:
		d := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		b, err := d.Bytes(content)
		if err != nil {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "invalid BMPString content", Err: err}
		}
		return string(b), nil
	case model.KindUniversalString:
		if len(content)%4 != 0 {
			return nil, &DecodeError{Path: path, Offset: dec.InputOffset(), Message: "UniversalString content length must be a multiple of 4"}
		}
		var b strings.Builder
		for i := 0; i < len(content); i += 4 {
			r := rune(content[i])<<24 | rune(content[i+1])<<16 | rune(content[i+2])<<8 | rune(content[i+3])
			b.WriteRune(r)
		}
		return b.String(), nil
	default:
		return string(content), nil
	}
}

func parseUTCTime(s string) (time.Time, bool) {
	if len(s) < 8 {
		return time.Time{}, false
	}
	yy, err1 := strconv.Atoi(s[0:2])
	month, err2 := strconv.Atoi(s[2:4])
	day, err3 := strconv.Atoi(s[4:6])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	year := 1900 + yy
	if yy < 50 {
		year += 100
	}
	offset, loc, _, ok := asn1kit.ParseASN1Time(s[6:])
	if !ok {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc).Add(offset), true
}

func parseGeneralizedTime(s string) (time.Time, bool) {
	if len(s) < 10 {
		return time.Time{}, false
	}
	year, err1 := strconv.Atoi(s[0:4])
	month, err2 := strconv.Atoi(s[4:6])
	day, err3 := strconv.Atoi(s[6:8])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	offset, loc, _, ok := asn1kit.ParseASN1Time(s[8:])
	if !ok {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc).Add(offset), true
}

func parseDateTime(s string) (time.Time, bool) {
	parts := strings.SplitN(s, "T", 2)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	d, ok := asn1kit.ParseDate(parts[0])
	if !ok {
		return time.Time{}, false
	}
	offset, loc, _, ok := asn1kit.ParseASN1Time(parts[1])
	if !ok {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(offset), true
}

// parseDuration parses the subset of ISO 8601 durations produced by
// [asn1kit.FormatDuration]: an optional leading '-', "PT", then any of
// hours/minutes/seconds (seconds may carry a fractional part).
func parseDuration(s string) (time.Duration, bool) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if !strings.HasPrefix(s, "PT") {
		return 0, false
	}
	s = s[2:]
	var total time.Duration
	for len(s) > 0 {
		i := 0
		for i < len(s) && (s[i] == '.' || s[i] == ',' || (s[i] >= '0' && s[i] <= '9')) {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, false
		}
		numStr := strings.Replace(s[:i], ",", ".", 1)
		unit := s[i]
		s = s[i+1:]
		f, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, false
		}
		switch unit {
		case 'H':
			total += time.Duration(f * float64(time.Hour))
		case 'M':
			total += time.Duration(f * float64(time.Minute))
		case 'S':
			total += time.Duration(f * float64(time.Second))
		default:
			return 0, false
		}
	}
	if neg {
		total = -total
	}
	return total, true
}
