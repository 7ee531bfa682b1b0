// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"asn1kit.dev/asn1kit/model"
)

func TestResolve_SimpleSequence(t *testing.T) {
	c, err := Resolve([]Source{{Name: "test.asn1", Text: `
Test DEFINITIONS AUTOMATIC TAGS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    b INTEGER OPTIONAL
  }
END
`}})
	require.NoError(t, err)

	ref, ok := c.Lookup("Test", "Foo")
	require.True(t, ok)
	foo := c.Arena.Get(ref)
	require.Equal(t, model.KindSequence, foo.Kind)
	require.Len(t, foo.Components, 2)

	a := c.Arena.Get(foo.Components[0].Type)
	require.Equal(t, model.KindBoolean, a.Kind)
	require.Equal(t, model.ClassContextSpecific, a.Tag.Class)
	require.Equal(t, uint(0), a.Tag.Number)
	require.Equal(t, model.TagModeImplicit, a.Tag.Mode)

	b := c.Arena.Get(foo.Components[1].Type)
	require.Equal(t, model.KindInteger, b.Kind)
	require.True(t, foo.Components[1].Optional)
}

func TestResolve_RecursiveType(t *testing.T) {
	c, err := Resolve([]Source{{Name: "test.asn1", Text: `
Test DEFINITIONS ::=
BEGIN
  List ::= SEQUENCE {
    head INTEGER,
    tail List OPTIONAL
  }
END
`}})
	require.NoError(t, err)

	ref, ok := c.Lookup("Test", "List")
	require.True(t, ok)
	list := c.Arena.Get(ref)
	require.Len(t, list.Components, 2)

	tail := c.Arena.Resolve(list.Components[1].Type)
	require.Equal(t, model.KindSequence, tail.Kind)
	require.Same(t, list, tail)
}

func TestResolve_ImplicitChoiceRejected(t *testing.T) {
	_, err := Resolve([]Source{{Name: "test.asn1", Text: `
Test DEFINITIONS ::=
BEGIN
  Q ::= CHOICE { x INTEGER, y BOOLEAN }
  R ::= [0] IMPLICIT Q
END
`}})
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
}

func TestResolve_ConstraintRange(t *testing.T) {
	c, err := Resolve([]Source{{Name: "test.asn1", Text: `
Test DEFINITIONS ::=
BEGIN
  Small ::= INTEGER (0..127)
END
`}})
	require.NoError(t, err)
	ref, ok := c.Lookup("Test", "Small")
	require.True(t, ok)
	small := c.Arena.Get(ref)
	require.Len(t, small.Constraints, 1)
	vset, ok := small.Constraints[0].Value()
	require.True(t, ok)
	lo, hi := vset.Bounds()
	require.Equal(t, int64(0), lo.Int64())
	require.Equal(t, int64(127), hi.Int64())
}

func TestResolve_DuplicateTagRejected(t *testing.T) {
	_, err := Resolve([]Source{{Name: "test.asn1", Text: `
Test DEFINITIONS ::=
BEGIN
  Q ::= CHOICE {
    x [0] IMPLICIT INTEGER,
    y [0] IMPLICIT BOOLEAN
  }
END
`}})
	require.Error(t, err)
}

func TestResolve_UnresolvedReference(t *testing.T) {
	_, err := Resolve([]Source{{Name: "test.asn1", Text: `
Test DEFINITIONS ::=
BEGIN
  Foo ::= Bar
END
`}})
	require.Error(t, err)
}
