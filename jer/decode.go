// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jer

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
)

// decodeNode decodes the next JSON value from dec against ref. Unlike
// xer's decodeNode, JSON object keys name their component directly, so
// there is no need for xer's optional-component lookahead buffer: a
// missing key is simply absent from the object, in whichever order the
// source actually wrote it.
func decodeNode(spec *model.Compiled, ref model.TypeRef, path string, dec *json.Decoder, lim Limits, depth int) (model.Value, error) {
	if depth > lim.MaxDepth {
		return nil, &DecodeError{Path: path, Message: "maximum nesting depth exceeded"}
	}
	node := spec.Arena.Resolve(ref)

	switch node.Kind {
	case model.KindChoice:
		if err := expectDelim(dec, '{', path); err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected object key, got %v", tok)}
		}
		for _, comp := range node.Components {
			if comp.Name != key {
				continue
			}
			v, err := decodeNode(spec, comp.Type, path+"."+comp.Name, dec, lim, depth+1)
			if err != nil {
				return nil, err
			}
			if err := expectDelim(dec, '}', path); err != nil {
				return nil, err
			}
			return &model.Choice{Alt: comp.Name, Value: v}, nil
		}
		return nil, &DecodeError{Path: path, Message: fmt.Sprintf("unknown CHOICE alternative %q", key)}

	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		if err := expectDelim(dec, '{', path); err != nil {
			return nil, err
		}
		s := &model.Struct{}
		for {
			tok, err := dec.Token()
			if err != nil {
				return nil, wrapDecErr(path, err)
			}
			if d, ok := tok.(json.Delim); ok && d == '}' {
				break
			}
			key, ok := tok.(string)
			if !ok {
				return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected object key, got %v", tok)}
			}
			var comp *model.Component
			for i := range node.Components {
				if node.Components[i].Name == key {
					comp = &node.Components[i]
					break
				}
			}
			if comp == nil {
				if err := skipValue(dec); err != nil {
					return nil, wrapDecErr(path, err)
				}
				continue
			}
			v, err := decodeNode(spec, comp.Type, path+"."+comp.Name, dec, lim, depth+1)
			if err != nil {
				return nil, err
			}
			s.Set(comp.Name, v)
		}
		for _, comp := range node.Components {
			if _, ok := s.Get(comp.Name); !ok && !comp.Optional && !comp.HasDefault {
				return nil, &DecodeError{Path: path, Message: fmt.Sprintf("missing required component %q", comp.Name)}
			}
		}
		return s, nil

	case model.KindSequenceOf, model.KindSetOf:
		if err := expectDelim(dec, '[', path); err != nil {
			return nil, err
		}
		var elems []model.Value
		for dec.More() {
			v, err := decodeNode(spec, node.Element, fmt.Sprintf("%s[%d]", path, len(elems)), dec, lim, depth+1)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		if err := expectDelim(dec, ']', path); err != nil {
			return nil, err
		}
		return elems, nil

	case model.KindBoolean:
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		b, ok := tok.(bool)
		if !ok {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected bool, got %v", tok)}
		}
		return b, nil

	case model.KindNull:
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		if tok != nil {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected null, got %v", tok)}
		}
		return nil, nil

	case model.KindInteger, model.KindEnumerated:
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		var text string
		switch t := tok.(type) {
		case json.Number:
			text = t.String()
		case string:
			text = t
		default:
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected number or numeric string, got %v", tok)}
		}
		n, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("invalid integer %q", text)}
		}
		return n, nil

	case model.KindReal:
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		n, ok := tok.(json.Number)
		if !ok {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected number, got %v", tok)}
		}
		f, err := n.Float64()
		if err != nil {
			return nil, &DecodeError{Path: path, Message: "invalid REAL: " + err.Error(), Err: err}
		}
		return f, nil

	case model.KindOctetString:
		s, err := expectString(dec, path)
		if err != nil {
			return nil, err
		}
		b, err := decodeHex(s)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: "invalid OCTET STRING hex: " + err.Error(), Err: err}
		}
		return b, nil

	case model.KindBitString:
		return decodeBitString(dec, path)

	case model.KindObjectIdentifier:
		s, err := expectString(dec, path)
		if err != nil {
			return nil, err
		}
		arcs, err := parseArcs(s)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: err.Error(), Err: err}
		}
		return asn1kit.ObjectIdentifier(arcs), nil

	case model.KindRelativeOID:
		s, err := expectString(dec, path)
		if err != nil {
			return nil, err
		}
		arcs, err := parseArcs(s)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: err.Error(), Err: err}
		}
		return asn1kit.RelativeOID(arcs), nil

	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		s, err := expectString(dec, path)
		if err != nil {
			return nil, err
		}
		b, err := decodeHex(s)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: "invalid open type content: " + err.Error(), Err: err}
		}
		return &model.OpenType{Codec: "jer", Bytes: b}, nil
	}

	if node.Kind.IsStringKind() {
		return expectString(dec, path)
	}
	if k, ok := timeKind(node.Kind); ok {
		s, err := expectString(dec, path)
		if err != nil {
			return nil, err
		}
		return decodeTimeText(k, s, path)
	}
	return nil, &UnsupportedError{Path: path, Message: fmt.Sprintf("kind %s is not supported by jer", node.Kind)}
}

func wrapDecErr(path string, err error) error {
	return &DecodeError{Path: path, Message: err.Error(), Err: err}
}

func expectDelim(dec *json.Decoder, want json.Delim, path string) error {
	tok, err := dec.Token()
	if err != nil {
		return wrapDecErr(path, err)
	}
	got, ok := tok.(json.Delim)
	if !ok || got != want {
		return &DecodeError{Path: path, Message: fmt.Sprintf("expected %q, got %v", want, tok)}
	}
	return nil
}

func expectString(dec *json.Decoder, path string) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", wrapDecErr(path, err)
	}
	s, ok := tok.(string)
	if !ok {
		return "", &DecodeError{Path: path, Message: fmt.Sprintf("expected string, got %v", tok)}
	}
	return s, nil
}

// skipValue discards the next JSON value, whatever its shape, so unknown
// object keys don't need their type looked up.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		if dd, ok := t.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// decodeBitString reads the {"value": <hex>, "length": <bits>} object
// produced by encodeNode, tolerating unknown keys and either key order.
func decodeBitString(dec *json.Decoder, path string) (model.Value, error) {
	if err := expectDelim(dec, '{', path); err != nil {
		return nil, err
	}
	var hexVal string
	var bitLen int
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			break
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected object key, got %v", tok)}
		}
		switch key {
		case "value":
			s, err := expectString(dec, path)
			if err != nil {
				return nil, err
			}
			hexVal = s
		case "length":
			vtok, err := dec.Token()
			if err != nil {
				return nil, wrapDecErr(path, err)
			}
			n, ok := vtok.(json.Number)
			if !ok {
				return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected number for \"length\", got %v", vtok)}
			}
			l, err := n.Int64()
			if err != nil {
				return nil, &DecodeError{Path: path, Message: err.Error(), Err: err}
			}
			bitLen = int(l)
		default:
			if err := skipValue(dec); err != nil {
				return nil, wrapDecErr(path, err)
			}
		}
	}
	b, err := decodeHex(hexVal)
	if err != nil {
		return nil, &DecodeError{Path: path, Message: "invalid BIT STRING hex: " + err.Error(), Err: err}
	}
	return asn1kit.BitString{Bytes: b, BitLength: bitLen}, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

func parseArcs(text string) ([]uint, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ".")
	arcs := make([]uint, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OID arc %q", p)
		}
		arcs[i] = uint(v)
	}
	return arcs, nil
}

func timeKind(k model.Kind) (model.Kind, bool) {
	switch k {
	case model.KindUTCTime, model.KindGeneralizedTime, model.KindDate,
		model.KindTimeOfDay, model.KindDateTime, model.KindDuration:
		return k, true
	}
	return k, false
}

func decodeTimeText(kind model.Kind, s, path string) (model.Value, error) {
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
	return nil, &UnsupportedError{Path: path, Message: fmt.Sprintf("kind %s is not a time kind", kind)}
}

// parseUTCTime, parseGeneralizedTime, parseDateTime and parseDuration mirror
// the unexported parsers of the same name in ber/decode.go (also duplicated
// into per/decode.go and xer/decode.go); see per/decode.go's doc comment for
// why they are repeated here rather than exported from ber.

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
	idx := strings.IndexByte(s, 'T')
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
