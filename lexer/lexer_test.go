// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAll_Basic(t *testing.T) {
	src := `Foo ::= SEQUENCE { a INTEGER, b BOOLEAN OPTIONAL }`
	tokens, err := All("test.asn1", src)
	require.NoError(t, err)

	want := []struct {
		kind Kind
		text string
	}{
		{TypeReference, "Foo"},
		{Punctuation, "::="},
		{ReservedWord, "SEQUENCE"},
		{Punctuation, "{"},
		{ValueReference, "a"},
		{ReservedWord, "INTEGER"},
		{Punctuation, ","},
		{ValueReference, "b"},
		{ReservedWord, "BOOLEAN"},
		{ReservedWord, "OPTIONAL"},
		{Punctuation, "}"},
		{EOF, ""},
	}
	require.Len(t, tokens, len(want))
	for i, w := range want {
		require.Equalf(t, w.kind, tokens[i].Kind, "token %d kind", i)
		require.Equalf(t, w.text, tokens[i].Text, "token %d text", i)
	}
}

func TestAll_Comments(t *testing.T) {
	src := "A ::= -- line comment\nINTEGER /* block\ncomment */ (0..127)"
	tokens, err := All("test.asn1", src)
	require.NoError(t, err)

	var kinds []Kind
	for _, tok := range tokens {
		kinds = append(kinds, tok.Kind)
	}
	require.Equal(t, []Kind{
		TypeReference, Punctuation, ReservedWord, Punctuation,
		IntegerLiteral, Punctuation, IntegerLiteral, Punctuation, EOF,
	}, kinds)
}

func TestAll_Literals(t *testing.T) {
	tests := map[string]struct {
		src  string
		kind Kind
		text string
	}{
		"bstring":  {`'0101'B`, BinaryLiteral, "0101"},
		"hstring":  {`'1F2A'H`, HexLiteral, "1F2A"},
		"cstring":  {`"hello ""world"""`, CharacterStringLiteral, `hello "world"`},
		"integer":  {`12345`, IntegerLiteral, "12345"},
		"typeref":  {`MyType`, TypeReference, "MyType"},
		"valueref": {`myValue`, ValueReference, "myValue"},
		"tripledot": {`...`, Punctuation, "..."},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tokens, err := All("test.asn1", tt.src)
			require.NoError(t, err)
			require.Len(t, tokens, 2)
			require.Equal(t, tt.kind, tokens[0].Kind)
			require.Equal(t, tt.text, tokens[0].Text)
		})
	}
}

func TestAll_IllegalCharacter(t *testing.T) {
	_, err := All("test.asn1", "Foo ::= #INTEGER")
	require.Error(t, err)
	var lexErr *Error
	require.ErrorAs(t, err, &lexErr)
	require.Equal(t, 1, lexErr.Line)
}

func TestAll_UnterminatedString(t *testing.T) {
	_, err := All("test.asn1", `"unterminated`)
	require.Error(t, err)
}

func TestAll_UnterminatedComment(t *testing.T) {
	_, err := All("test.asn1", `/* unterminated`)
	require.Error(t, err)
}
