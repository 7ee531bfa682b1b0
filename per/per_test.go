// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package per_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"asn1kit.dev/asn1kit/model"
	"asn1kit.dev/asn1kit/per"
	"asn1kit.dev/asn1kit/resolve"
)

func compile(t *testing.T, text string) *model.Compiled {
	t.Helper()
	c, err := resolve.Resolve([]resolve.Source{{Name: "test.asn1", Text: text}})
	require.NoError(t, err)
	return c
}

// TestMarshalUPER_ConstrainedInteger covers the scenario spec.md's testable
// properties name explicitly: Foo ::= INTEGER (0..127), value 5 encodes as
// the 7-bit pattern 0000101, which UPER pads to a single octet 0x0A.
func TestMarshalUPER_ConstrainedInteger(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= INTEGER (0..127)
END
`)
	data, err := per.MarshalUPER(spec, "Foo", big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, []byte{0x0A}, data)

	got, err := per.UnmarshalUPER(spec, "Foo", data)
	require.NoError(t, err)
	require.Zero(t, big.NewInt(5).Cmp(got.(*big.Int)))
}

func TestMarshalUPER_UnconstrainedInteger(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= INTEGER
END
`)
	data, err := per.MarshalUPER(spec, "Foo", big.NewInt(1000))
	require.NoError(t, err)
	got, err := per.UnmarshalUPER(spec, "Foo", data)
	require.NoError(t, err)
	require.Zero(t, big.NewInt(1000).Cmp(got.(*big.Int)))
}

func TestMarshal_SequenceRoundTrip(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    b INTEGER (0..255) OPTIONAL
  }
END
`)
	v := &model.Struct{Fields: []model.Field{
		{Name: "a", Value: true},
		{Name: "b", Value: big.NewInt(42)},
	}}
	data, err := per.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s := got.(*model.Struct)
	a, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, true, a)
	b, ok := s.Get("b")
	require.True(t, ok)
	require.Zero(t, big.NewInt(42).Cmp(b.(*big.Int)))
}

func TestMarshal_SequenceOptionalOmitted(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    b INTEGER (0..255) OPTIONAL
  }
END
`)
	v := &model.Struct{Fields: []model.Field{{Name: "a", Value: false}}}
	data, err := per.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s := got.(*model.Struct)
	_, ok := s.Get("b")
	require.False(t, ok)
}

func TestMarshal_ExtensibleSequence(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    ...,
    b INTEGER OPTIONAL
  }
END
`)
	v := &model.Struct{Fields: []model.Field{
		{Name: "a", Value: true},
		{Name: "b", Value: big.NewInt(7)},
	}}
	data, err := per.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s := got.(*model.Struct)
	b, ok := s.Get("b")
	require.True(t, ok)
	require.Zero(t, big.NewInt(7).Cmp(b.(*big.Int)))
}

func TestMarshal_ExtensibleSequenceNoExtensionsPresent(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    ...,
    b INTEGER OPTIONAL
  }
END
`)
	v := &model.Struct{Fields: []model.Field{{Name: "a", Value: true}}}
	data, err := per.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s := got.(*model.Struct)
	_, ok := s.Get("b")
	require.False(t, ok)
}

func TestMarshal_Choice(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= CHOICE {
    a BOOLEAN,
    b INTEGER
  }
END
`)
	v := &model.Choice{Alt: "b", Value: big.NewInt(9)}
	data, err := per.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	c := got.(*model.Choice)
	require.Equal(t, "b", c.Alt)
	require.Zero(t, big.NewInt(9).Cmp(c.Value.(*big.Int)))
}

func TestMarshal_ChoiceExtensionAlternative(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= CHOICE {
    a BOOLEAN,
    ...,
    b INTEGER
  }
END
`)
	v := &model.Choice{Alt: "b", Value: big.NewInt(100)}
	data, err := per.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	c := got.(*model.Choice)
	require.Equal(t, "b", c.Alt)
	require.Zero(t, big.NewInt(100).Cmp(c.Value.(*big.Int)))
}

func TestMarshal_OctetString(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= OCTET STRING (SIZE(1..10))
END
`)
	data, err := per.Marshal(spec, "Foo", []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, got.([]byte))
}

func TestMarshal_SequenceOf(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE OF INTEGER (0..10)
END
`)
	v := []model.Value{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	data, err := per.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	elems := got.([]model.Value)
	require.Len(t, elems, 3)
	for i, e := range elems {
		require.Zero(t, big.NewInt(int64(i+1)).Cmp(e.(*big.Int)))
	}
}

// TestMarshal_SizeConstrainedCharacterString covers scenario 6 from
// spec.md's testable properties: a SIZE-constrained character string still
// round-trips through the constrained length-field path.
func TestMarshal_SizeConstrainedCharacterString(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= IA5String (SIZE(1..20))
END
`)
	data, err := per.Marshal(spec, "Foo", "hello")
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	require.Equal(t, "hello", got.(string))
}

func TestMarshal_Null(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= NULL
END
`)
	data, err := per.Marshal(spec, "Foo", nil)
	require.NoError(t, err)

	got, err := per.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	require.Nil(t, got)
}
