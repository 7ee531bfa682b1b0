// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package constraint models ASN.1 subtype constraints (value ranges, SIZE,
// permitted alphabet) in the canonical root/extension form required by the
// PER/UPER framing rules: every constraint reduces to an interval, an
// explicit set, or a code-point mask, partitioned into a root and an
// extension part. This package deliberately does not import package model:
// it answers questions purely from constraint data, never from a resolved
// type graph or a runtime value, so it can be evaluated during resolution
// before the type graph it will be attached to even exists.
package constraint

import (
	"math/big"

	"github.com/rivo/uniseg"
)

// Domain identifies which axis of a value a [Constraint] restricts.
type Domain uint8

const (
	DomainValue Domain = iota
	DomainSize
	DomainAlphabet
)

// Set is the canonical reduced form of one constraint domain: a root part
// and, if the constraint is extensible, an extension part. Both parts are
// unions of disjoint intervals; an explicit enumerated set (e.g. an INTEGER
// constrained to {1, 5, 9}) is represented as a union of single-point
// intervals, and a code-point mask for a permitted-alphabet constraint is
// represented as a union of rune intervals.
type Set struct {
	Domain      Domain
	Root        []Interval
	Extension   []Interval
	Extensible  bool
}

// Interval is a closed range [Lo, Hi]. A nil Lo or Hi denotes an unbounded
// end (MIN/MAX in ASN.1 notation).
type Interval struct {
	Lo, Hi *big.Int
}

// Constraint is one subtype constraint attached to a [model.Type]. The zero
// value is an unconstrained (always-satisfied) constraint.
type Constraint struct {
	Sets []Set
}

// Extensible reports whether any domain of c carries an extension marker.
func (c Constraint) Extensible() bool {
	for _, s := range c.Sets {
		if s.Extensible {
			return true
		}
	}
	return false
}

// Size returns the SIZE domain's Set and whether one is present.
func (c Constraint) Size() (Set, bool) {
	return c.domain(DomainSize)
}

// Value returns the value-range domain's Set and whether one is present.
func (c Constraint) Value() (Set, bool) {
	return c.domain(DomainValue)
}

// Alphabet returns the permitted-alphabet domain's Set and whether one is
// present.
func (c Constraint) Alphabet() (Set, bool) {
	return c.domain(DomainAlphabet)
}

func (c Constraint) domain(d Domain) (Set, bool) {
	for _, s := range c.Sets {
		if s.Domain == d {
			return s, true
		}
	}
	return Set{}, false
}

// RootFinite reports whether s's root part is a finite, fully-bounded set —
// required by PER before a constrained encoding (fixed bit-width or
// length-as-constrained-integer) can be used.
func (s Set) RootFinite() bool {
	if len(s.Root) == 0 {
		return false
	}
	for _, iv := range s.Root {
		if iv.Lo == nil || iv.Hi == nil {
			return false
		}
	}
	return true
}

// Bounds returns the overall lower and upper bound of s's root part. Either
// may be nil if the corresponding end is unbounded or the root is empty.
func (s Set) Bounds() (lo, hi *big.Int) {
	loUnbounded, hiUnbounded := false, false
	for _, iv := range s.Root {
		if iv.Lo == nil {
			loUnbounded = true
		} else if lo == nil || iv.Lo.Cmp(lo) < 0 {
			lo = iv.Lo
		}
		if iv.Hi == nil {
			hiUnbounded = true
		} else if hi == nil || iv.Hi.Cmp(hi) > 0 {
			hi = iv.Hi
		}
	}
	if loUnbounded {
		lo = nil
	}
	if hiUnbounded {
		hi = nil
	}
	return lo, hi
}

// BitWidth returns the minimum number of bits needed to represent any value
// in [0, hi-lo] for s's root range, per X.691 §10.5.7.2. It returns -1 if
// the root is not finite.
func (s Set) BitWidth() int {
	if !s.RootFinite() {
		return -1
	}
	lo, hi := s.Bounds()
	if lo == nil || hi == nil {
		return -1
	}
	span := new(big.Int).Sub(hi, lo)
	if span.Sign() == 0 {
		return 0
	}
	return span.BitLen()
}

// NewRange builds a value-domain Constraint over [lo, hi], optionally
// extensible. A nil bound represents MIN or MAX.
func NewRange(lo, hi *big.Int, extensible bool) Constraint {
	return Constraint{Sets: []Set{{
		Domain:     DomainValue,
		Root:       []Interval{{Lo: lo, Hi: hi}},
		Extensible: extensible,
	}}}
}

// NewSize builds a SIZE-domain Constraint over [lo, hi].
func NewSize(lo, hi *big.Int, extensible bool) Constraint {
	return Constraint{Sets: []Set{{
		Domain:     DomainSize,
		Root:       []Interval{{Lo: lo, Hi: hi}},
		Extensible: extensible,
	}}}
}

// GraphemeCount returns the number of extended grapheme clusters in s, per
// Unicode Annex #29. No codec in this module calls it: the per package takes
// a character string's SIZE length as the number of its encoded content
// octets.
func GraphemeCount(s string) int {
	n := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n++
	}
	return n
}

// Intersect combines a and b by intersecting their root and extension
// intervals within each domain. A domain present in only one of a or b is
// carried through unchanged.
func Intersect(a, b Constraint) Constraint {
	out := Constraint{}
	seen := map[Domain]bool{}
	for _, s := range a.Sets {
		seen[s.Domain] = true
	}
	merged := map[Domain]Set{}
	for _, s := range a.Sets {
		merged[s.Domain] = s
	}
	for _, s := range b.Sets {
		if existing, ok := merged[s.Domain]; ok {
			merged[s.Domain] = Set{
				Domain:     s.Domain,
				Root:       intersectIntervals(existing.Root, s.Root),
				Extension:  intersectIntervals(existing.Extension, s.Extension),
				Extensible: existing.Extensible || s.Extensible,
			}
		} else {
			merged[s.Domain] = s
		}
	}
	for _, s := range merged {
		out.Sets = append(out.Sets, s)
	}
	return out
}

func intersectIntervals(a, b []Interval) []Interval {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	var out []Interval
	for _, x := range a {
		for _, y := range b {
			lo := maxBound(x.Lo, y.Lo, true)
			hi := maxBound(x.Hi, y.Hi, false)
			if lo != nil && hi != nil && lo.Cmp(hi) > 0 {
				continue
			}
			out = append(out, Interval{Lo: lo, Hi: hi})
		}
	}
	return out
}

// maxBound picks the tighter of two possibly-unbounded endpoints. When lower
// is true it picks the larger (tighter lower bound); otherwise the smaller
// (tighter upper bound). A nil argument is unbounded and loses to any
// concrete bound.
func maxBound(a, b *big.Int, lower bool) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	cmp := a.Cmp(b)
	if lower {
		if cmp >= 0 {
			return a
		}
		return b
	}
	if cmp <= 0 {
		return a
	}
	return b
}
