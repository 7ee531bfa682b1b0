// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gser_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"asn1kit.dev/asn1kit/gser"
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
    name UTF8String,
    age INTEGER
  }
END
`)
	v := &model.Struct{Fields: []model.Field{
		{Name: "name", Value: "Alice"},
		{Name: "age", Value: big.NewInt(30)},
	}}
	data, err := gser.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `{ name "Alice", age 30 }`, string(data))
}

func TestMarshal_OptionalComponentOmitted(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN,
    b INTEGER OPTIONAL
  }
END
`)
	v := &model.Struct{Fields: []model.Field{{Name: "a", Value: true}}}
	data, err := gser.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `{ a TRUE }`, string(data))
}

func TestMarshal_EmptySequence(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE {
    a BOOLEAN OPTIONAL
  }
END
`)
	data, err := gser.Marshal(spec, "Foo", &model.Struct{})
	require.NoError(t, err)
	require.Equal(t, `{}`, string(data))
}

func TestMarshal_Choice(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= CHOICE {
    rfc822Name UTF8String,
    count INTEGER
  }
END
`)
	v := &model.Choice{Alt: "rfc822Name", Value: "alice@example.com"}
	data, err := gser.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `rfc822Name:"alice@example.com"`, string(data))
}

func TestMarshal_SequenceOf(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= SEQUENCE OF INTEGER
END
`)
	v := []model.Value{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	data, err := gser.Marshal(spec, "Foo", v)
	require.NoError(t, err)
	require.Equal(t, `{ 1, 2, 3 }`, string(data))
}

func TestMarshal_OctetString(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= OCTET STRING
END
`)
	data, err := gser.Marshal(spec, "Foo", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	require.Equal(t, `'DEADBEEF'H`, string(data))
}

func TestMarshal_QuotedStringEscaping(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= UTF8String
END
`)
	data, err := gser.Marshal(spec, "Foo", `say "hi"\`)
	require.NoError(t, err)
	require.Equal(t, `"say \"hi\"\\"`, string(data))
}

func TestUnmarshal_Unsupported(t *testing.T) {
	spec := compile(t, `
Test DEFINITIONS ::=
BEGIN
  Foo ::= BOOLEAN
END
`)
	_, err := gser.Unmarshal(spec, "Foo", []byte("TRUE"))
	require.Error(t, err)
	var unsupported *gser.UnsupportedError
	require.ErrorAs(t, err, &unsupported)
}
