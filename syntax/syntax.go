// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package syntax implements a recursive-descent parser over the token
// stream produced by package lexer. It builds a raw syntax tree per module:
// references between types and values are unresolved strings, resolved
// later by package resolve.
package syntax

import "asn1kit.dev/asn1kit/lexer"

// TagDefault is a module's tagging default, per X.680 §12.2.
type TagDefault uint8

const (
	TagDefaultExplicit TagDefault = iota
	TagDefaultImplicit
	TagDefaultAutomatic
)

// Module is one parsed ASN.1 module, prior to cross-module resolution.
type Module struct {
	Name                 string
	OID                  []OIDArc
	TagDefault           TagDefault
	ExtensibilityImplied bool
	Imports              []Import
	Exports              []string // nil means EXPORTS ALL (the default)
	ExportsAll           bool
	Assignments          []Assignment
}

// OIDArc is one arc of a module identifier OBJECT IDENTIFIER value, which
// may name the arc (`iso(1)`) or give only a number.
type OIDArc struct {
	Name   string
	Number int
	HasNum bool
}

// Import is one `FROM <module>` clause.
type Import struct {
	Symbols []string
	Module  string
}

// AssignmentKind discriminates the kind of reference bound by an
// [Assignment].
type AssignmentKind uint8

const (
	AssignType AssignmentKind = iota
	AssignValue
	AssignValueSet
	AssignObjectClass
	AssignObject
	AssignObjectSet
)

// Assignment binds a reference name to a type, value, or information-object
// construct.
type Assignment struct {
	Kind AssignmentKind
	Name string
	Type *TypeNode // the bound type, or (for value/object assignments) the governing type
	// Value, for AssignValue, holds the parsed value expression. The
	// parser leaves it nil for object and object set assignments, whose
	// text it keeps in Raw.
	Value *ValueNode
	// Raw holds an opaque captured token span for constructs this parser
	// accepts but does not interpret structurally (CLASS bodies, WITH
	// SYNTAX clauses, object set specifications). The resolver treats a
	// Raw-bearing assignment as present but semantically inert, per the
	// information-object-class Non-goal.
	Raw []lexer.Token
}

// TypeNodeKind discriminates the case of a [TypeNode].
type TypeNodeKind uint8

const (
	NodeReference TypeNodeKind = iota
	NodeBuiltin
	NodeSequence
	NodeSet
	NodeChoice
	NodeSequenceOf
	NodeSetOf
	NodeTagged
	NodeAny
	NodeAnyDefinedBy
	NodeSelection // `TypeRef.&field`
)

// TypeNode is one node of the raw (pre-resolution) type tree.
type TypeNode struct {
	Kind TypeNodeKind

	// Reference, for NodeReference, is the referenced type name; Module, if
	// non-empty, is an explicit `Module.Type` qualification.
	Reference string
	Module    string

	// Field, for NodeSelection, is the object class field name selected
	// out of Reference (the governing object/class reference), i.e. the
	// `&Field` half of `TypeRef.&Field`.
	Field string

	// Builtin, for NodeBuiltin, is the reserved-word name of a primitive
	// ASN.1 type (e.g. "INTEGER", "UTF8String").
	Builtin string

	// Components, for NodeSequence/NodeSet/NodeChoice, are the named
	// members in declaration order.
	Components []ComponentNode
	// ExtensibleAt is the index within Components after which "..."
	// appeared, or -1 if the type is not extensible.
	ExtensibleAt int

	// Element, for NodeSequenceOf/NodeSetOf, is the element type.
	Element *TypeNode

	// Tag and TagMode, for NodeTagged, describe the applied tag; Inner is
	// the tagged type.
	Tag     *TagNode
	TagMode TagModeNode
	Inner   *TypeNode

	// DefinedBy, for NodeAnyDefinedBy, names the governing component.
	DefinedBy string

	Constraints []ConstraintNode
}

// TagModeNode is the per-type tagging mode as written in source; ModeDefault
// means no explicit IMPLICIT/EXPLICIT keyword was present and the module's
// TagDefault applies.
type TagModeNode uint8

const (
	ModeDefault TagModeNode = iota
	ModeImplicit
	ModeExplicit
)

// TagNode is a parsed `[CLASS n]` tag annotation.
type TagNode struct {
	Class  string // "", "APPLICATION", "PRIVATE", "UNIVERSAL" ("" means context-specific)
	Number int
}

// ComponentNode is one named member of a SEQUENCE/SET/CHOICE, prior to
// resolution.
type ComponentNode struct {
	Name              string
	Type              *TypeNode
	Optional          bool
	Default           *ValueNode
	ExtensionAddition bool
	GroupID           int
}

// ConstraintNodeKind discriminates the case of a [ConstraintNode].
type ConstraintNodeKind uint8

const (
	ConstraintRange ConstraintNodeKind = iota
	ConstraintSize
	ConstraintFrom
	ConstraintPattern
	ConstraintUnion
	ConstraintIntersection
	ConstraintAllExcept
	ConstraintSingleValue
	ConstraintWithComponents
)

// ConstraintNode is one node of the raw constraint expression tree.
type ConstraintNode struct {
	Kind       ConstraintNodeKind
	Lo, Hi     *ValueNode // ConstraintRange; a nil bound is MIN/MAX
	Extensible bool
	Nested     []ConstraintNode // operands of ConstraintSize/From/Union/Intersection/AllExcept
	Pattern    string
	Value      *ValueNode // ConstraintSingleValue
}

// ValueNodeKind discriminates the case of a [ValueNode].
type ValueNodeKind uint8

const (
	ValueInteger ValueNodeKind = iota
	ValueBoolean
	ValueString
	ValueBitString
	ValueHexString
	ValueNull
	ValueOID
	ValueReferenceNode
	ValueMin
	ValueMax
	ValueNegative     // unary minus applied to Operand
	ValueRelativeRef  // `@.field` / `@field`, a WITH COMPONENTS constrained-by reference
)

// ValueNode is one node of the raw value expression tree.
type ValueNode struct {
	Kind      ValueNodeKind
	Text      string
	Reference string
	OID       []OIDArc
	Operand   *ValueNode
}
