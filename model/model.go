// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package model defines the canonical, immutable type graph produced by the
// resolve package and consumed by every codec. A compiled specification is
// an arena of [Type] nodes addressed by [TypeRef]; recursive ASN.1 types
// become graph edges between arena slots rather than unfolded trees, so a
// self-referential SEQUENCE costs one slot, not an infinite one.
package model

import "asn1kit.dev/asn1kit/constraint"

// Kind discriminates the case of a [Type] node. Every codec dispatches on
// Kind instead of a class hierarchy: adding a codec means adding one switch
// arm per Kind, not a new subtype per ASN.1 construct.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBoolean
	KindInteger
	KindReal
	KindNull
	KindBitString
	KindOctetString
	KindObjectIdentifier
	KindRelativeOID
	KindEnumerated
	KindUTF8String
	KindIA5String
	KindPrintableString
	KindNumericString
	KindVisibleString
	KindGeneralString
	KindBMPString
	KindUniversalString
	KindTeletexString
	KindGraphicString
	KindUTCTime
	KindGeneralizedTime
	KindDate
	KindTimeOfDay
	KindDateTime
	KindDuration
	KindObjectDescriptor
	KindExternal
	KindEmbeddedPDV
	KindCharacterString
	KindChoice
	KindSequence
	KindSet
	KindSequenceOf
	KindSetOf
	KindAny
	KindAnyDefinedBy
	KindOpenType
)

// String returns the ASN.1 keyword for k, where one exists.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "INVALID"
}

var kindNames = map[Kind]string{
	KindBoolean:          "BOOLEAN",
	KindInteger:          "INTEGER",
	KindReal:             "REAL",
	KindNull:             "NULL",
	KindBitString:        "BIT STRING",
	KindOctetString:      "OCTET STRING",
	KindObjectIdentifier: "OBJECT IDENTIFIER",
	KindRelativeOID:      "RELATIVE-OID",
	KindEnumerated:       "ENUMERATED",
	KindUTF8String:       "UTF8String",
	KindIA5String:        "IA5String",
	KindPrintableString:  "PrintableString",
	KindNumericString:    "NumericString",
	KindVisibleString:    "VisibleString",
	KindGeneralString:    "GeneralString",
	KindBMPString:        "BMPString",
	KindUniversalString:  "UniversalString",
	KindTeletexString:    "TeletexString",
	KindGraphicString:    "GraphicString",
	KindUTCTime:          "UTCTime",
	KindGeneralizedTime:  "GeneralizedTime",
	KindDate:             "DATE",
	KindTimeOfDay:        "TIME-OF-DAY",
	KindDateTime:         "DATE-TIME",
	KindDuration:         "DURATION",
	KindObjectDescriptor: "ObjectDescriptor",
	KindExternal:         "EXTERNAL",
	KindEmbeddedPDV:      "EMBEDDED PDV",
	KindCharacterString:  "CHARACTER STRING",
	KindChoice:           "CHOICE",
	KindSequence:         "SEQUENCE",
	KindSet:              "SET",
	KindSequenceOf:       "SEQUENCE OF",
	KindSetOf:            "SET OF",
	KindAny:              "ANY",
	KindAnyDefinedBy:     "ANY DEFINED BY",
	KindOpenType:         "OPEN TYPE",
}

// IsStringKind reports whether k is one of the ASN.1 character string kinds
// (excluding OCTET STRING and BIT STRING, which are not character strings).
func (k Kind) IsStringKind() bool {
	switch k {
	case KindUTF8String, KindIA5String, KindPrintableString, KindNumericString,
		KindVisibleString, KindGeneralString, KindBMPString, KindUniversalString,
		KindTeletexString, KindGraphicString, KindCharacterString:
		return true
	}
	return false
}

// IsConstructed reports whether values of k are BER/DER-constructed by
// nature (their content is itself a sequence of TLVs).
func (k Kind) IsConstructed() bool {
	switch k {
	case KindSequence, KindSet, KindSequenceOf, KindSetOf, KindChoice, KindExternal, KindEmbeddedPDV:
		return true
	}
	return false
}

// TagMode mirrors [asn1kit.TagMode] without importing the root package,
// which would create an import cycle (the root package imports model for
// [Compiled] and [Value]).
type TagMode uint8

const (
	TagModeImplicit TagMode = iota
	TagModeExplicit
)

// TagClass mirrors [asn1kit.Class].
type TagClass uint8

const (
	ClassUniversal TagClass = iota
	ClassApplication
	ClassContextSpecific
	ClassPrivate
)

// EffectiveTag is the outermost tag of a [Type] after IMPLICIT/EXPLICIT/
// AUTOMATIC tagging has been applied, per X.680 §31.
type EffectiveTag struct {
	Class  TagClass
	Number uint
	Mode   TagMode
}

// TypeRef is an index into an [Arena]'s Types slice. The zero TypeRef never
// denotes a valid node (arena slot 0 is reserved); resolved references that
// point nowhere are a compiler bug, not an empty TypeRef.
type TypeRef int

// Component is a named member of a SEQUENCE, SET, or CHOICE.
type Component struct {
	Name             string
	Type             TypeRef
	Optional         bool
	HasDefault       bool
	Default          Value
	ExtensionAddition bool
	// GroupID identifies a version-bracket `[[ n: ... ]]` group; components
	// without an explicit group share GroupID 0.
	GroupID int
}

// Type is one node of the resolved type graph. Exactly one of the
// kind-specific fields below is meaningful, selected by Kind.
type Type struct {
	Kind Kind
	Name string // the assignment name this node was declared under, if any

	Tag         EffectiveTag
	Constraints []constraint.Constraint

	// ExtensibleAt, if >= 0, is the component index (within Components)
	// after which the "..." extension marker appears; -1 means not
	// extensible. For CHOICE this marks the root/extension boundary among
	// Components the same way.
	ExtensibleAt int

	// Components holds SEQUENCE/SET/CHOICE members in declaration order.
	Components []Component

	// Element is the element type of SEQUENCE OF / SET OF.
	Element TypeRef

	// Target, when >= 0 and Kind is KindInvalid, makes this node a pure
	// alias: every plain (untagged, unconstrained-further) type reference
	// resolves to its own arena slot whose only content is a pointer to the
	// referenced node, via Target. Callers must dereference aliases with
	// [Arena.Resolve] rather than [Arena.Get] directly. Giving every
	// reference its own slot (instead of reusing the target's slot) keeps a
	// recursive type's self-reference representable as a single alias edge,
	// and lets two uses of the same named type carry independent
	// use-site data (e.g. two different AUTOMATIC TAGS context tags)
	// without mutating the shared target.
	Target TypeRef

	// DefinedBy names the sibling INTEGER/OID component that selects the
	// concrete type of an ANY DEFINED BY field, empty otherwise.
	DefinedBy string

	// Inner, when >= 0, is the pre-wrap node a TAGGED type wraps: Tag then
	// holds the new outer tag (with Tag.Mode recording IMPLICIT/EXPLICIT),
	// while Kind/Components/Element/Constraints above are a flattened copy
	// of Inner's content for codecs that only care about the content shape.
	// EXPLICIT codecs need Inner too: the wrapped TLV underneath an EXPLICIT
	// tag carries Inner's own tag (which may itself be a previous TAGGED
	// wrapper's tag), not the bare universal tag for Kind. -1 means this
	// node was never produced by a TAGGED type.
	Inner TypeRef
}

// Choice is the runtime [Value] representation of an ASN.1 CHOICE: the name
// of the chosen alternative and its value.
type Choice struct {
	Alt   string
	Value Value
}

// Struct is the runtime [Value] representation of an ASN.1 SEQUENCE or SET:
// an ordered list of present components. Absent OPTIONAL/DEFAULT components
// are omitted rather than represented with a nil or zero value.
type Struct struct {
	Fields []Field
}

// Field is one present component of a [Struct].
type Field struct {
	Name  string
	Value Value
}

// Get returns the value of the named field and whether it was present.
func (s *Struct) Get(name string) (Value, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set appends or replaces the named field.
func (s *Struct) Set(name string, v Value) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = v
			return
		}
	}
	s.Fields = append(s.Fields, Field{Name: name, Value: v})
}

// OpenType is the runtime representation of an undecoded ANY / open type
// value: the raw content octets plus enough framing information for a codec
// to skip or later decode them against a concrete type.
type OpenType struct {
	// Codec names which codec produced Bytes ("ber", "per", "xer", "jer",
	// "gser"), so a value carried across codecs is never misinterpreted.
	Codec string
	Bytes []byte
}

// Arena owns every [Type] node produced by a single compilation. A [TypeRef]
// is only meaningful relative to the Arena that produced it.
type Arena struct {
	Types []*Type
}

// New allocates a zero-valued Type and returns its TypeRef. Allocating
// before filling in a node's fields lets mutually-recursive assignments
// resolve forward references to each other within the same strongly
// connected component: each assignment gets a stable TypeRef as soon as
// its node is allocated, before its body is ever walked.
func (a *Arena) New() TypeRef {
	a.Types = append(a.Types, &Type{ExtensibleAt: -1, Target: -1, Inner: -1})
	return TypeRef(len(a.Types) - 1)
}

// Get dereferences ref without following alias edges. It panics if ref is
// out of range, which indicates a compiler bug (a TypeRef that escaped its
// owning Arena).
func (a *Arena) Get(ref TypeRef) *Type {
	return a.Types[ref]
}

// Resolve dereferences ref, following Target alias edges until it reaches a
// node with a concrete Kind. A self-referential chain (only possible if the
// resolver produced a bare alias cycle, which indicates a compiler bug since
// every named type eventually bottoms out at a builtin or constructed kind)
// is broken after one full pass over the arena rather than looping forever.
func (a *Arena) Resolve(ref TypeRef) *Type {
	n := a.Get(ref)
	for steps := 0; n.Kind == KindInvalid && n.Target >= 0 && steps < len(a.Types); steps++ {
		ref = n.Target
		n = a.Get(ref)
	}
	return n
}

// ModuleInfo is the resolved content of one ASN.1 module: its
// type/value assignments, by name.
type ModuleInfo struct {
	Name   string
	Types  map[string]TypeRef
	Values map[string]Value
}

// Diagnostic records a non-fatal situation the resolver downgraded rather
// than failing compilation outright (an information object class, object
// or object set assignment, which is accepted but not resolved, WITH SYNTAX
// clauses included). Diagnostics are data the caller
// can inspect, not side-effecting log lines.
type Diagnostic struct {
	Module  string
	Name    string
	Message string
}

// Compiled is the immutable output of resolution: every module's assignment
// table, backed by a single shared [Arena]. A *Compiled is safe to share
// read-only across goroutines once resolution returns.
type Compiled struct {
	Arena       *Arena
	Modules     map[string]*ModuleInfo
	Diagnostics []Diagnostic
}

// Lookup resolves a (module, name) type reference. If module is empty, every
// module is searched (single-module compilations are the common case).
func (c *Compiled) Lookup(module, name string) (TypeRef, bool) {
	if module != "" {
		mi, ok := c.Modules[module]
		if !ok {
			return 0, false
		}
		ref, ok := mi.Types[name]
		return ref, ok
	}
	for _, mi := range c.Modules {
		if ref, ok := mi.Types[name]; ok {
			return ref, true
		}
	}
	return 0, false
}

// Value is the canonical runtime representation shared by every codec. A
// Value is one of:
//
//	bool                     BOOLEAN
//	*big.Int                 INTEGER, ENUMERATED
//	float64 or *big.Float    REAL
//	asn1kit.BitString        BIT STRING
//	[]byte                   OCTET STRING
//	asn1kit.ObjectIdentifier OBJECT IDENTIFIER
//	asn1kit.RelativeOID      RELATIVE-OID
//	string                   any character string Kind
//	time.Time                UTCTime, GeneralizedTime, DATE, TIME-OF-DAY, DATE-TIME
//	time.Duration            DURATION
//	*Choice                  CHOICE
//	*Struct                  SEQUENCE, SET, EXTERNAL, EMBEDDED PDV
//	[]Value                  SEQUENCE OF, SET OF
//	*OpenType                ANY, ANY DEFINED BY, OPEN TYPE
//	nil                      NULL
//
// Using `any` rather than a closed sum type keeps the codec packages free of
// a dependency on a generated variant type, at the cost of runtime type
// assertions; every codec performs those assertions in exactly one place
// (its top-level value dispatch), so the trade is confined.
type Value = any
