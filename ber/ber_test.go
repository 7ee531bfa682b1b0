// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ber_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"asn1kit.dev/asn1kit/ber"
	"asn1kit.dev/asn1kit/model"
	"asn1kit.dev/asn1kit/resolve"
)

func compile(t *testing.T, text string) *model.Compiled {
	t.Helper()
	c, err := resolve.Resolve([]resolve.Source{{Name: "test.asn1", Text: text}})
	require.NoError(t, err)
	return c
}

func TestMarshal_SimpleSequence(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS AUTOMATIC TAGS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    b INTEGER OPTIONAL
  }
END
`)
	v := &model.Struct{Fields: []model.Field{
		{Name: "a", Value: true},
		{Name: "b", Value: big.NewInt(42)},
	}}
	data, err := ber.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := ber.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s, ok := got.(*model.Struct)
	require.True(t, ok)
	a, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, true, a)
	b, ok := s.Get("b")
	require.True(t, ok)
	require.Zero(t, big.NewInt(42).Cmp(b.(*big.Int)))
}

func TestMarshal_OptionalComponentOmitted(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS AUTOMATIC TAGS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    b INTEGER OPTIONAL
  }
END
`)
	v := &model.Struct{Fields: []model.Field{{Name: "a", Value: false}}}
	data, err := ber.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := ber.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s := got.(*model.Struct)
	_, ok := s.Get("b")
	require.False(t, ok)
}

func TestMarshal_Choice(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS AUTOMATIC TAGS ::=
BEGIN
  Foo ::= CHOICE {
    num INTEGER,
    flag BOOLEAN
  }
END
`)
	v := &model.Choice{Alt: "flag", Value: true}
	data, err := ber.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := ber.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	c := got.(*model.Choice)
	require.Equal(t, "flag", c.Alt)
	require.Equal(t, true, c.Value)
}

func TestMarshal_ExplicitTag(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= [1] EXPLICIT INTEGER
END
`)
	data, err := ber.Marshal(spec, "Foo", big.NewInt(7))
	require.NoError(t, err)
	// outer tag: context-specific constructed [1] -> 0xA1
	require.Equal(t, byte(0xA1), data[0])

	got, err := ber.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	require.Zero(t, big.NewInt(7).Cmp(got.(*big.Int)))
}

func TestMarshal_SequenceOf(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE OF INTEGER
END
`)
	v := []model.Value{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	data, err := ber.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := ber.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	elems := got.([]model.Value)
	require.Len(t, elems, 3)
	require.Zero(t, big.NewInt(2).Cmp(elems[1].(*big.Int)))
}

func TestMarshal_SetOfCanonicalOrder(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SET OF OCTET STRING
END
`)
	v := []model.Value{[]byte{0x02}, []byte{0x01}, []byte{0x01, 0x00}}
	data, err := ber.Marshal(spec, "Foo", v)
	require.NoError(t, err)

	got, err := ber.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	elems := got.([]model.Value)
	require.Equal(t, []byte{0x01}, elems[0])
	require.Equal(t, []byte{0x01, 0x00}, elems[1])
	require.Equal(t, []byte{0x02}, elems[2])
}

func TestUnmarshal_UnknownType(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= INTEGER
END
`)
	_, err := ber.Unmarshal(spec, "Bar", []byte{0x02, 0x01, 0x01})
	require.Error(t, err)
	var uerr *ber.UnsupportedError
	require.ErrorAs(t, err, &uerr)
}
