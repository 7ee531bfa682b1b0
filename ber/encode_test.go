// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ber

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"asn1kit.dev/asn1kit"
)

func TestEncodeMinimalInt(t *testing.T) {
	tests := []struct {
		n    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x00, 0x80}},
		{256, []byte{0x01, 0x00}},
		{-1, []byte{0xFF}},
		{-128, []byte{0x80}},
		{-129, []byte{0xFF, 0x7F}},
	}
	for _, tt := range tests {
		got := encodeMinimalInt(big.NewInt(tt.n))
		require.Equal(t, tt.want, got, "n=%d", tt.n)
	}
}

func TestEncodeOID(t *testing.T) {
	oid := asn1kit.ObjectIdentifier{1, 2, 840, 113549}
	content, constructed, err := encodeOID(oid, "")
	require.NoError(t, err)
	require.False(t, constructed)
	require.Equal(t, []byte{0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D}, content)
}

func TestWriteTLV_Primitive(t *testing.T) {
	tag := asn1kit.Tag{Class: asn1kit.ClassUniversal, Number: asn1kit.TagInteger}
	b, err := writeTLV(tag, false, []byte{0x01})
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x01, 0x01}, b)
}

func TestEncodeReal_SpecialValues(t *testing.T) {
	content, _, err := encodeReal(math.Inf(1), "")
	require.NoError(t, err)
	require.Equal(t, []byte{0x40}, content)

	content, _, err = encodeReal(math.Inf(-1), "")
	require.NoError(t, err)
	require.Equal(t, []byte{0x41}, content)

	content, _, err = encodeReal(0.0, "")
	require.NoError(t, err)
	require.Empty(t, content)
}
