// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ber

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"asn1kit.dev/asn1kit"
)

func TestDecodeMinimalInt(t *testing.T) {
	tests := []struct {
		in   []byte
		want int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7F}, 127},
		{[]byte{0x00, 0x80}, 128},
		{[]byte{0x01, 0x00}, 256},
		{[]byte{0xFF}, -1},
		{[]byte{0x80}, -128},
		{[]byte{0xFF, 0x7F}, -129},
	}
	for _, tt := range tests {
		got := decodeMinimalInt(tt.in)
		require.Zero(t, big.NewInt(tt.want).Cmp(got), "in=% X", tt.in)
	}
}

func TestDecodeArcsAndOID(t *testing.T) {
	content := []byte{0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D}
	v, err := decodeOID(content, "", newDecoder(nil))
	require.NoError(t, err)
	require.Equal(t, asn1kit.ObjectIdentifier{1, 2, 840, 113549}, v)
}

func TestParseUTCTime(t *testing.T) {
	tm, ok := parseUTCTime("230615120000Z")
	require.True(t, ok)
	require.Equal(t, 2023, tm.Year())
	require.Equal(t, time.June, tm.Month())
	require.Equal(t, 15, tm.Day())
	require.Equal(t, 12, tm.Hour())
}

func TestParseGeneralizedTime(t *testing.T) {
	tm, ok := parseGeneralizedTime("20230615120000Z")
	require.True(t, ok)
	require.Equal(t, 2023, tm.Year())
}

func TestParseDuration(t *testing.T) {
	d, ok := parseDuration("PT1H30M")
	require.True(t, ok)
	require.Equal(t, time.Hour+30*time.Minute, d)

	d, ok = parseDuration("PT0S")
	require.True(t, ok)
	require.Zero(t, d)
}

func TestDecodeReal_RoundTrip(t *testing.T) {
	content, _, err := encodeReal(1.5, "")
	require.NoError(t, err)
	v, err := decodeReal(content, "", newDecoder(nil))
	require.NoError(t, err)
	require.InDelta(t, 1.5, v.(float64), 1e-9)
}
