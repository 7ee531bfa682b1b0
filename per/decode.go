// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package per

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"golang.org/x/text/encoding/unicode"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
)

func decodeNode(spec *model.Compiled, ref model.TypeRef, path string, r *BitReader, lim Limits, depth int, aligned bool) (model.Value, error) {
	if depth > lim.MaxDepth {
		return nil, &DecodeError{Path: path, Message: "maximum nesting depth exceeded"}
	}
	node := spec.Arena.Resolve(ref)
	switch node.Kind {
	case model.KindChoice:
		return decodeChoice(spec, node, path, r, lim, depth, aligned)
	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		b, err := readLengthPrefixedBytes(r)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return &model.OpenType{Codec: "per", Bytes: b}, nil
	case model.KindBoolean:
		b, err := r.ReadBit()
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return b == 1, nil
	case model.KindInteger, model.KindEnumerated:
		set, hasSet := valueSet(node)
		n, err := readConstrainedInt(r, set, hasSet)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return n, nil
	case model.KindNull:
		return nil, nil
	case model.KindReal:
		content, err := readLengthPrefixedBytes(r)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return decodeRealContent(content), nil
	case model.KindBitString:
		b, n, err := decodeSizedBytes(node, r, aligned)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return asn1kit.BitString{Bytes: bitStringBytes(b), BitLength: n}, nil
	case model.KindOctetString:
		b, _, err := decodeSizedBytes(node, r, aligned)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return b, nil
	case model.KindObjectIdentifier, model.KindRelativeOID:
		content, err := readLengthPrefixedBytes(r)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return decodeOIDContent(content, node.Kind == model.KindRelativeOID), nil
	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		return decodeStruct(spec, node, path, r, lim, depth, aligned)
	case model.KindSequenceOf, model.KindSetOf:
		return decodeRepeated(spec, node, path, r, lim, depth, aligned)
	}
	if node.Kind.IsStringKind() {
		b, _, err := decodeSizedBytes(node, r, aligned)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return decodeCharBytes(node, b)
	}
	if kind, ok := timeKind(node.Kind); ok {
		b, _, err := decodeSizedBytes(node, r, aligned)
		if err != nil {
			return nil, wrapErr(path, err)
		}
		return decodeTimeText(kind, string(b), path)
	}
	return nil, &UnsupportedError{Path: path, Message: fmt.Sprintf("kind %s is not supported by per", node.Kind)}
}

func timeKind(k model.Kind) (model.Kind, bool) {
	switch k {
	case model.KindUTCTime, model.KindGeneralizedTime, model.KindDate, model.KindTimeOfDay, model.KindDateTime, model.KindDuration:
		return k, true
	}
	return 0, false
}

// decodeTimeText parses the canonical textual content produced by
// [timeText] back into a Go value. The per-kind parsing mirrors the
// ber package's parseUTCTime/parseGeneralizedTime/parseDateTime/
// parseDuration helpers (X.691 §15 gives the time family no binary
// framing of its own, so PER's content octets are the same text BER
// embeds; the parsers are duplicated here rather than exported from ber
// since they are unexported decode-path internals there).
func decodeTimeText(kind model.Kind, s string, path string) (model.Value, error) {
	switch kind {
	case model.KindUTCTime:
		t, ok := parseUTCTime(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid UTCTime content"}
		}
		return t, nil
	case model.KindGeneralizedTime:
		t, ok := parseGeneralizedTime(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid GeneralizedTime content"}
		}
		return t, nil
	case model.KindDate:
		t, ok := asn1kit.ParseDate(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid DATE content"}
		}
		return t, nil
	case model.KindTimeOfDay:
		offset, loc, _, ok := asn1kit.ParseASN1Time(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid TIME-OF-DAY content"}
		}
		return time.Date(0, 1, 1, 0, 0, 0, 0, loc).Add(offset), nil
	case model.KindDateTime:
		t, ok := parseDateTime(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid DATE-TIME content"}
		}
		return t, nil
	case model.KindDuration:
		d, ok := parseDuration(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid DURATION content"}
		}
		return d, nil
	}
	return nil, &UnsupportedError{Path: path, Message: "unsupported time kind"}
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
	idx := -1
	for i := 0; i < len(s); i++ {
		if s[i] == 'T' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return time.Time{}, false
	}
	d, ok := asn1kit.ParseDate(s[:idx])
	if !ok {
		return time.Time{}, false
	}
	offset, loc, _, ok := asn1kit.ParseASN1Time(s[idx+1:])
	if !ok {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(offset), true
}

func parseDuration(s string) (time.Duration, bool) {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) < 2 || s[0:2] != "PT" {
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
		numStr := s[:i]
		for j, c := range numStr {
			if c == ',' {
				numStr = numStr[:j] + "." + numStr[j+1:]
				break
			}
		}
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

func wrapErr(path string, err error) error {
	return &DecodeError{Path: path, Message: err.Error()}
}

func decodeSizedBytes(node *model.Type, r *BitReader, aligned bool) ([]byte, int, error) {
	set, hasSet := sizeSet(node)
	if hasSet && set.RootFinite() {
		lo, hi := set.Bounds()
		var n, bitLen int
		if lo.Cmp(hi) == 0 {
			bitLen = int(lo.Int64())
			n = bitLen
			if node.Kind == model.KindBitString {
				// SIZE on a BIT STRING counts bits; this package's
				// whole-octet framing (see encodeSizedBytes) means the
				// on-wire byte count is the bit count rounded up, while
				// BitLength keeps the exact, unrounded value.
				n = (bitLen + 7) / 8
			}
		} else {
			v, err := readConstrainedInt(r, set, true)
			if err != nil {
				return nil, 0, err
			}
			n = int(v.Int64())
			bitLen = n * 8
			if aligned {
				r.Align()
			}
		}
		b, err := r.ReadBytes(n)
		if err != nil {
			return nil, 0, err
		}
		return b, bitLen, nil
	}
	b, err := readLengthPrefixedBytes(r)
	if err != nil {
		return nil, 0, err
	}
	return b, len(b) * 8, nil
}

// bitStringBytes returns the on-wire octets as a [asn1kit.BitString].Bytes
// value. This package frames BIT STRING content on whole-octet boundaries
// in BitString's own packing (see the encodeSizedBytes doc comment), so the
// wire bytes need no realignment. The bit length paired with them is the
// exact SIZE when the root fixes it, and the octet count times 8 otherwise.
func bitStringBytes(b []byte) []byte {
	return b
}

func decodeCharBytes(node *model.Type, b []byte) (model.Value, error) {
	switch node.Kind {
	case model.KindBMPString:
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(b)
		if err != nil {
			return nil, &DecodeError{Message: "invalid BMPString content: " + err.Error()}
		}
		return string(out), nil
	case model.KindUniversalString:
		var sb []rune
		for i := 0; i+4 <= len(b); i += 4 {
			sb = append(sb, rune(uint32(b[i])<<24|uint32(b[i+1])<<16|uint32(b[i+2])<<8|uint32(b[i+3])))
		}
		return string(sb), nil
	default:
		return string(b), nil
	}
}

func decodeChoice(spec *model.Compiled, node *model.Type, path string, r *BitReader, lim Limits, depth int, aligned bool) (model.Value, error) {
	rootN := len(node.Components)
	extAt := -1
	if node.ExtensibleAt >= 0 {
		rootN = node.ExtensibleAt + 1
		extAt = node.ExtensibleAt
	}
	if extAt >= 0 {
		b, err := r.ReadBit()
		if err != nil {
			return nil, wrapErr(path, err)
		}
		if b == 1 {
			off, err := readNormallySmallInt(r)
			if err != nil {
				return nil, wrapErr(path, err)
			}
			idx := rootN + off
			content, err := readLengthPrefixedBytes(r)
			if err != nil {
				return nil, wrapErr(path, err)
			}
			if idx < 0 || idx >= len(node.Components) {
				return nil, &DecodeError{Path: path, Message: fmt.Sprintf("unknown CHOICE extension index %d", off)}
			}
			inner := NewBitReader(content)
			v, err := decodeNode(spec, node.Components[idx].Type, path+"."+node.Components[idx].Name, inner, lim, depth+1, aligned)
			if err != nil {
				return nil, err
			}
			return &model.Choice{Alt: node.Components[idx].Name, Value: v}, nil
		}
	}
	idxV, err := readUintBits(r, bitsForChoice(rootN))
	if err != nil {
		return nil, wrapErr(path, err)
	}
	idx := int(idxV.Int64())
	if idx < 0 || idx >= rootN {
		return nil, &DecodeError{Path: path, Message: fmt.Sprintf("CHOICE index %d out of range", idx)}
	}
	v, err := decodeNode(spec, node.Components[idx].Type, path+"."+node.Components[idx].Name, r, lim, depth+1, aligned)
	if err != nil {
		return nil, err
	}
	return &model.Choice{Alt: node.Components[idx].Name, Value: v}, nil
}

func decodeStruct(spec *model.Compiled, node *model.Type, path string, r *BitReader, lim Limits, depth int, aligned bool) (model.Value, error) {
	s := &model.Struct{}
	rootComps := node.Components
	var extComps []model.Component
	if node.ExtensibleAt >= 0 {
		rootComps = node.Components[:node.ExtensibleAt+1]
		extComps = node.Components[node.ExtensibleAt+1:]
	}

	anyExt := false
	if node.ExtensibleAt >= 0 {
		b, err := r.ReadBit()
		if err != nil {
			return nil, wrapErr(path, err)
		}
		anyExt = b == 1
	}

	present := make([]bool, len(rootComps))
	for i, comp := range rootComps {
		if comp.Optional || comp.HasDefault {
			b, err := r.ReadBit()
			if err != nil {
				return nil, wrapErr(path, err)
			}
			present[i] = b == 1
		} else {
			present[i] = true
		}
	}
	for i, comp := range rootComps {
		if !present[i] {
			if comp.HasDefault {
				s.Set(comp.Name, comp.Default)
			}
			continue
		}
		v, err := decodeNode(spec, comp.Type, path+"."+comp.Name, r, lim, depth+1, aligned)
		if err != nil {
			return nil, err
		}
		s.Set(comp.Name, v)
	}

	if anyExt {
		var extPresent []bool
		_, err := readLengthPrefixedElements(r, func() error {
			b, err := r.ReadBit()
			if err != nil {
				return err
			}
			extPresent = append(extPresent, b == 1)
			return nil
		})
		if err != nil {
			return nil, wrapErr(path, err)
		}
		for i, comp := range extComps {
			if i >= len(extPresent) || !extPresent[i] {
				continue
			}
			content, err := readLengthPrefixedBytes(r)
			if err != nil {
				return nil, wrapErr(path, err)
			}
			inner := NewBitReader(content)
			v, err := decodeNode(spec, comp.Type, path+"."+comp.Name, inner, lim, depth+1, aligned)
			if err != nil {
				return nil, err
			}
			s.Set(comp.Name, v)
		}
	}
	return s, nil
}

func decodeRepeated(spec *model.Compiled, node *model.Type, path string, r *BitReader, lim Limits, depth int, aligned bool) (model.Value, error) {
	set, hasSet := sizeSet(node)
	var out []model.Value
	if hasSet && set.RootFinite() {
		lo, hi := set.Bounds()
		var n int
		if lo.Cmp(hi) == 0 {
			n = int(lo.Int64())
		} else {
			v, err := readConstrainedInt(r, set, true)
			if err != nil {
				return nil, wrapErr(path, err)
			}
			n = int(v.Int64())
		}
		for i := 0; i < n; i++ {
			v, err := decodeNode(spec, node.Element, fmt.Sprintf("%s[%d]", path, i), r, lim, depth+1, aligned)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	i := 0
	_, err := readLengthPrefixedElements(r, func() error {
		v, err := decodeNode(spec, node.Element, fmt.Sprintf("%s[%d]", path, i), r, lim, depth+1, aligned)
		if err != nil {
			return err
		}
		out = append(out, v)
		i++
		return nil
	})
	if err != nil {
		return nil, wrapErr(path, err)
	}
	return out, nil
}

func decodeRealContent(b []byte) model.Value {
	if len(b) == 0 {
		return float64(0)
	}
	first := b[0]
	switch first {
	case 0x40:
		return math.Inf(1)
	case 0x41:
		return math.Inf(-1)
	case 0x42:
		return math.NaN()
	case 0x43:
		return math.Copysign(0, -1)
	}
	sign := 1.0
	if first&0x40 != 0 {
		sign = -1.0
	}
	lenOctet := first & 0x03
	i := 1
	var expLen int
	switch lenOctet {
	case 0, 1, 2:
		expLen = int(lenOctet) + 1
	default:
		expLen = int(b[1])
		i = 2
	}
	expBytes := b[i : i+expLen]
	e := fromTwosComplement(expBytes)
	i += expLen
	mantBytes := b[i:]
	mant := new(big.Int).SetBytes(mantBytes)
	mf := new(big.Float).SetInt(mant)
	scale := new(big.Float).SetMantExp(big.NewFloat(1), int(e.Int64()))
	mf.Mul(mf, scale)
	f, _ := mf.Float64()
	return sign * f
}

func decodeOIDContent(content []byte, relative bool) model.Value {
	arcs := decodeArcsRaw(content)
	if relative {
		return asn1kit.RelativeOID(arcs)
	}
	if len(arcs) == 0 {
		return asn1kit.ObjectIdentifier{0, 0}
	}
	first := arcs[0]
	x := first / 40
	y := first % 40
	if x > 2 {
		x = 2
		y = first - 80
	}
	out := append(asn1kit.ObjectIdentifier{x, y}, arcs[1:]...)
	return out
}

func decodeArcsRaw(b []byte) []uint {
	var arcs []uint
	var cur uint
	for _, c := range b {
		cur = cur<<7 | uint(c&0x7F)
		if c&0x80 == 0 {
			arcs = append(arcs, cur)
			cur = 0
		}
	}
	return arcs
}
