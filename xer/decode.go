// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xer

import (
	"encoding/xml"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/model"
)

// decodeNode decodes the element opened by start (already consumed from
// dec) against ref, returning the decoded value after consuming the
// matching EndElement.
func decodeNode(spec *model.Compiled, ref model.TypeRef, path string, dec *xml.Decoder, start xml.StartElement, lim Limits, depth int) (model.Value, error) {
	if depth > lim.MaxDepth {
		return nil, &DecodeError{Path: path, Message: "maximum nesting depth exceeded"}
	}
	node := spec.Arena.Resolve(ref)

	switch node.Kind {
	case model.KindChoice:
		inner, err := nextChild(dec, start)
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		if inner == nil {
			return nil, &DecodeError{Path: path, Message: "CHOICE element is empty"}
		}
		for _, comp := range node.Components {
			if comp.Name != inner.Name.Local {
				continue
			}
			v, err := decodeNode(spec, comp.Type, path+"."+comp.Name, dec, *inner, lim, depth+1)
			if err != nil {
				return nil, err
			}
			if err := drainToEnd(dec, start); err != nil {
				return nil, wrapDecErr(path, err)
			}
			return &model.Choice{Alt: comp.Name, Value: v}, nil
		}
		return nil, &DecodeError{Path: path, Message: fmt.Sprintf("unknown CHOICE alternative %q", inner.Name.Local)}

	case model.KindSequence, model.KindSet, model.KindExternal, model.KindEmbeddedPDV:
		s := &model.Struct{}
		var pending *xml.StartElement
		ended := false // nextChild has consumed start's EndElement
		for _, comp := range node.Components {
			child := pending
			pending = nil
			if child == nil && !ended {
				c, err := nextChild(dec, start)
				if err != nil {
					return nil, wrapDecErr(path, err)
				}
				child = c
				ended = c == nil
			}
			if child == nil {
				if comp.Optional || comp.HasDefault {
					continue
				}
				return nil, &DecodeError{Path: path, Message: fmt.Sprintf("missing required component %q", comp.Name)}
			}
			if child.Name.Local != comp.Name {
				if comp.Optional || comp.HasDefault {
					// This component is absent; hold the child for the
					// next (possibly also optional) component to examine.
					pending = child
					continue
				}
				return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected component %q, found %q", comp.Name, child.Name.Local)}
			}
			v, err := decodeNode(spec, comp.Type, path+"."+comp.Name, dec, *child, lim, depth+1)
			if err != nil {
				return nil, err
			}
			s.Set(comp.Name, v)
		}
		if pending != nil {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("unexpected element %q", pending.Name.Local)}
		}
		if !ended {
			if err := drainToEnd(dec, start); err != nil {
				return nil, wrapDecErr(path, err)
			}
		}
		return s, nil

	case model.KindSequenceOf, model.KindSetOf:
		var out []model.Value
		i := 0
		for {
			child, err := nextChild(dec, start)
			if err != nil {
				return nil, wrapDecErr(path, err)
			}
			if child == nil {
				break
			}
			v, err := decodeNode(spec, node.Element, fmt.Sprintf("%s[%d]", path, i), dec, *child, lim, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			i++
		}
		return out, nil

	case model.KindBoolean:
		child, err := nextChild(dec, start)
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		if child == nil {
			return nil, &DecodeError{Path: path, Message: "BOOLEAN element is empty"}
		}
		b := child.Name.Local == "true"
		if !b && child.Name.Local != "false" {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected true/false, found %q", child.Name.Local)}
		}
		if err := drainToEnd(dec, *child); err != nil {
			return nil, wrapDecErr(path, err)
		}
		if err := drainToEnd(dec, start); err != nil {
			return nil, wrapDecErr(path, err)
		}
		return b, nil

	case model.KindNull:
		if err := drainToEnd(dec, start); err != nil {
			return nil, wrapDecErr(path, err)
		}
		return nil, nil

	case model.KindAny, model.KindAnyDefinedBy, model.KindOpenType:
		text, err := readText(dec, start)
		if err != nil {
			return nil, wrapDecErr(path, err)
		}
		b, err := decodeHex(text)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: "invalid open type content: " + err.Error()}
		}
		return &model.OpenType{Codec: "xer", Bytes: b}, nil
	}

	text, err := readText(dec, start)
	if err != nil {
		return nil, wrapDecErr(path, err)
	}
	return decodeContentText(node, text, path)
}

func wrapDecErr(path string, err error) error {
	return &DecodeError{Path: path, Message: err.Error(), Err: err}
}

// nextChild reads the next token inside start's element. It returns nil,
// nil if the matching EndElement for start is reached first (i.e. no more
// children). Non-whitespace CharData between elements is otherwise
// ignored, matching how XER permits indentation/formatting whitespace.
func nextChild(dec *xml.Decoder, start xml.StartElement) (*xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			se := t
			return &se, nil
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil, nil
			}
		}
	}
}

// drainToEnd consumes tokens up to and including the EndElement matching
// start, tolerating already-processed children.
func drainToEnd(dec *xml.Decoder, start xml.StartElement) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

// readText reads the CharData content of start's element (assumed to have
// no child elements) and consumes the matching EndElement.
func readText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return sb.String(), nil
			}
		}
	}
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

func decodeContentText(node *model.Type, text, path string) (model.Value, error) {
	switch node.Kind {
	case model.KindInteger, model.KindEnumerated:
		n, ok := new(big.Int).SetString(strings.TrimSpace(text), 10)
		if !ok {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("invalid integer text %q", text)}
		}
		return n, nil
	case model.KindReal:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: "invalid REAL text: " + err.Error()}
		}
		return f, nil
	case model.KindOctetString:
		b, err := decodeHex(text)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: "invalid OCTET STRING hex: " + err.Error()}
		}
		return b, nil
	case model.KindBitString:
		text = strings.TrimSpace(text)
		n := len(text)
		bytes := make([]byte, (n+7)/8)
		for i := 0; i < n; i++ {
			if text[i] == '1' {
				bytes[i/8] |= 1 << uint(7-i%8)
			} else if text[i] != '0' {
				return nil, &DecodeError{Path: path, Message: fmt.Sprintf("invalid BIT STRING text %q", text)}
			}
		}
		return asn1kit.BitString{Bytes: bytes, BitLength: n}, nil
	case model.KindObjectIdentifier:
		arcs, err := parseArcs(text)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: err.Error()}
		}
		return asn1kit.ObjectIdentifier(arcs), nil
	case model.KindRelativeOID:
		arcs, err := parseArcs(text)
		if err != nil {
			return nil, &DecodeError{Path: path, Message: err.Error()}
		}
		return asn1kit.RelativeOID(arcs), nil
	}
	if node.Kind.IsStringKind() {
		return text, nil
	}
	if v, err, ok := decodeTimeText(node.Kind, text, path); ok {
		return v, err
	}
	return nil, &UnsupportedError{Path: path, Message: fmt.Sprintf("kind %s is not supported by xer", node.Kind)}
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

func decodeTimeText(kind model.Kind, s, path string) (model.Value, error, bool) {
	switch kind {
	case model.KindUTCTime:
		t, ok := parseUTCTime(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid UTCTime content"}, true
		}
		return t, nil, true
	case model.KindGeneralizedTime:
		t, ok := parseGeneralizedTime(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid GeneralizedTime content"}, true
		}
		return t, nil, true
	case model.KindDate:
		t, ok := asn1kit.ParseDate(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid DATE content"}, true
		}
		return t, nil, true
	case model.KindTimeOfDay:
		offset, loc, _, ok := asn1kit.ParseASN1Time(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid TIME-OF-DAY content"}, true
		}
		return time.Date(0, 1, 1, 0, 0, 0, 0, loc).Add(offset), nil, true
	case model.KindDateTime:
		t, ok := parseDateTime(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid DATE-TIME content"}, true
		}
		return t, nil, true
	case model.KindDuration:
		d, ok := parseDuration(s)
		if !ok {
			return nil, &DecodeError{Path: path, Message: "invalid DURATION content"}, true
		}
		return d, nil, true
	}
	return nil, nil, false
}

// parseUTCTime, parseGeneralizedTime, parseDateTime and parseDuration mirror
// the unexported parsers of the same name in ber/decode.go (also duplicated
// into per/decode.go); see per/decode.go's doc comment for why they are
// repeated here rather than exported from ber.

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
