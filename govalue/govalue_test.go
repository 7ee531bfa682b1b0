// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package govalue_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"asn1kit.dev/asn1kit/govalue"
	"asn1kit.dev/asn1kit/model"
	"asn1kit.dev/asn1kit/resolve"
)

func compile(t *testing.T, text string) *model.Compiled {
	t.Helper()
	c, err := resolve.Resolve([]resolve.Source{{Name: "test.asn1", Text: text}})
	require.NoError(t, err)
	return c
}

type person struct {
	Name string
	Age  *big.Int
	Note *string
}

func TestFromStruct_ToStruct_RoundTrip(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Person ::= SEQUENCE {
    name UTF8String,
    age INTEGER,
    note UTF8String OPTIONAL
  }
END
`)
	p := person{Name: "Alice", Age: big.NewInt(30)}
	v, err := govalue.FromStruct(spec, "Person", p)
	require.NoError(t, err)
	s := v.(*model.Struct)
	name, _ := s.Get("name")
	require.Equal(t, "Alice", name)
	age, _ := s.Get("age")
	require.Zero(t, big.NewInt(30).Cmp(age.(*big.Int)))
	_, ok := s.Get("note")
	require.False(t, ok)

	var out person
	require.NoError(t, govalue.ToStruct(spec, "Person", v, &out))
	require.Equal(t, "Alice", out.Name)
	require.Zero(t, big.NewInt(30).Cmp(out.Age))
	require.Nil(t, out.Note)
}

func TestFromStruct_OptionalPointerPresent(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Person ::= SEQUENCE {
    name UTF8String,
    age INTEGER,
    note UTF8String OPTIONAL
  }
END
`)
	note := "hello"
	p := person{Name: "Bob", Age: big.NewInt(5), Note: &note}
	v, err := govalue.FromStruct(spec, "Person", p)
	require.NoError(t, err)
	s := v.(*model.Struct)
	n, ok := s.Get("note")
	require.True(t, ok)
	require.Equal(t, "hello", n)
}

type numbers struct {
	Values []*big.Int
}

func TestFromStruct_SequenceOf(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Numbers ::= SEQUENCE {
    values SEQUENCE OF INTEGER
  }
END
`)
	v, err := govalue.FromStruct(spec, "Numbers", numbers{Values: []*big.Int{big.NewInt(1), big.NewInt(2)}})
	require.NoError(t, err)
	s := v.(*model.Struct)
	values, ok := s.Get("values")
	require.True(t, ok)
	elems := values.([]model.Value)
	require.Len(t, elems, 2)

	var out numbers
	require.NoError(t, govalue.ToStruct(spec, "Numbers", v, &out))
	require.Len(t, out.Values, 2)
	require.Zero(t, big.NewInt(1).Cmp(out.Values[0]))
	require.Zero(t, big.NewInt(2).Cmp(out.Values[1]))
}
