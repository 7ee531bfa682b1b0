// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jer_test

import (
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"asn1kit.dev/asn1kit"
	"asn1kit.dev/asn1kit/jer"
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
Test DEFINITIONS ::=
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
	data, err := jer.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `{"a":true,"b":42}`, string(data))

	got, err := jer.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s := got.(*model.Struct)
	a, _ := s.Get("a")
	require.Equal(t, true, a)
	b, _ := s.Get("b")
	require.Zero(t, big.NewInt(42).Cmp(b.(*big.Int)))
}

func TestMarshal_OptionalComponentOmitted(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    b INTEGER OPTIONAL,
    c BOOLEAN
  }
END
`)
	v := &model.Struct{Fields: []model.Field{
		{Name: "a", Value: false},
		{Name: "c", Value: true},
	}}
	data, err := jer.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `{"a":false,"c":true}`, string(data))

	got, err := jer.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s := got.(*model.Struct)
	_, ok := s.Get("b")
	require.False(t, ok)
	c, _ := s.Get("c")
	require.Equal(t, true, c)
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
	data, err := jer.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `{"b":9}`, string(data))

	got, err := jer.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	c := got.(*model.Choice)
	require.True(t, cmp.Equal(c.Alt, "b") && c.Value.(*big.Int).Cmp(big.NewInt(9)) == 0)
}

func TestMarshal_OctetStringHex(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= OCTET STRING
END
`)
	data, err := jer.Marshal(spec, "Foo", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	require.Equal(t, `"DEADBEEF"`, string(data))

	got, err := jer.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	require.True(t, cmp.Equal([]byte{0xDE, 0xAD, 0xBE, 0xEF}, got.([]byte)))
}

func TestMarshal_BitString(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= BIT STRING
END
`)
	v := asn1kit.BitString{Bytes: []byte{0xB0}, BitLength: 4}
	data, err := jer.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `{"value":"B0","length":4}`, string(data))

	got, err := jer.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	require.True(t, cmp.Equal(v, got))
}

func TestMarshal_SequenceOf(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE OF INTEGER
END
`)
	v := []model.Value{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	data, err := jer.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `[1,2,3]`, string(data))

	got, err := jer.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	elems := got.([]model.Value)
	require.Len(t, elems, 3)
	for i, e := range elems {
		require.Zero(t, big.NewInt(int64(i+1)).Cmp(e.(*big.Int)))
	}
}

func TestMarshal_LargeIntegerAsString(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= INTEGER
END
`)
	n := new(big.Int).Lsh(big.NewInt(1), 64)
	data, err := jer.Marshal(spec, "Foo", n)
	require.NoError(t, err)
	require.Equal(t, `"18446744073709551616"`, string(data))

	got, err := jer.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	require.Zero(t, n.Cmp(got.(*big.Int)))
}

func TestMarshal_NestedSequence(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Inner ::= SEQUENCE {
    x INTEGER
  }
  Foo ::= SEQUENCE {
    a Inner,
    b BOOLEAN OPTIONAL
  }
END
`)
	v := &model.Struct{Fields: []model.Field{
		{Name: "a", Value: &model.Struct{Fields: []model.Field{{Name: "x", Value: big.NewInt(7)}}}},
	}}
	data, err := jer.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `{"a":{"x":7}}`, string(data))

	got, err := jer.Unmarshal(spec, "Foo", data)
	require.NoError(t, err)
	s := got.(*model.Struct)
	a, ok := s.Get("a")
	require.True(t, ok)
	inner := a.(*model.Struct)
	x, ok := inner.Get("x")
	require.True(t, ok)
	require.Zero(t, big.NewInt(7).Cmp(x.(*big.Int)))
	_, ok = s.Get("b")
	require.False(t, ok)
}
