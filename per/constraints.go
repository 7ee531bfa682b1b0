// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package per

import (
	"math/big"

	"asn1kit.dev/asn1kit/constraint"
	"asn1kit.dev/asn1kit/model"
)

// sizeSet returns the SIZE-domain constraint set attached to node, if any.
func sizeSet(node *model.Type) (constraint.Set, bool) {
	for _, c := range node.Constraints {
		if s, ok := c.Size(); ok {
			return s, true
		}
	}
	return constraint.Set{}, false
}

// valueSet returns the value-range constraint set attached to node, if any.
func valueSet(node *model.Type) (constraint.Set, bool) {
	for _, c := range node.Constraints {
		if s, ok := c.Value(); ok {
			return s, true
		}
	}
	return constraint.Set{}, false
}

// writeConstrainedInt encodes n against set per X.691 §10.5: a root-finite
// set without extension writes n-lo in set.BitWidth() bits (aligned: the
// minimum whole octets that hold that many bits); an unconstrained or
// non-root-finite set falls back to a general length-determinant-prefixed
// two's-complement encoding.
func writeConstrainedInt(w *BitWriter, set constraint.Set, hasSet bool, n *big.Int, aligned bool) {
	if hasSet && set.Extensible {
		w.WriteBit(0) // value is within the extension root
	}
	if hasSet && set.RootFinite() {
		lo, _ := set.Bounds()
		off := new(big.Int).Sub(n, lo)
		bits := set.BitWidth()
		if aligned {
			bits = (bits + 7) / 8 * 8
		}
		writeUintBits(w, off, bits)
		return
	}
	writeUnconstrainedInt(w, n)
}

func readConstrainedInt(r *BitReader, set constraint.Set, hasSet bool) (*big.Int, error) {
	if hasSet && set.Extensible {
		b, err := r.ReadBit()
		if err != nil {
			return nil, err
		}
		if b == 1 {
			return readUnconstrainedInt(r)
		}
	}
	if hasSet && set.RootFinite() {
		lo, _ := set.Bounds()
		bits := set.BitWidth()
		off, err := readUintBits(r, bits)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Add(lo, off), nil
	}
	return readUnconstrainedInt(r)
}

// writeUintBits writes the non-negative value v in exactly n bits.
func writeUintBits(w *BitWriter, v *big.Int, n int) {
	if n <= 0 {
		return
	}
	b := v.Bytes()
	var full big.Int
	full.SetBytes(b)
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(int(full.Bit(i)))
	}
}

func readUintBits(r *BitReader, n int) (*big.Int, error) {
	v := new(big.Int)
	for i := 0; i < n; i++ {
		bit, err := r.ReadBit()
		if err != nil {
			return nil, err
		}
		v.Lsh(v, 1)
		if bit == 1 {
			v.Or(v, big.NewInt(1))
		}
	}
	return v, nil
}

// writeUnconstrainedInt writes n as a general length-determinant-prefixed
// minimal two's-complement integer, per X.691 §10.8.
func writeUnconstrainedInt(w *BitWriter, n *big.Int) {
	b := minimalTwosComplement(n)
	writeLengthPrefixedBytes(w, b)
}

func readUnconstrainedInt(r *BitReader) (*big.Int, error) {
	b, err := readLengthPrefixedBytes(r)
	if err != nil {
		return nil, err
	}
	return fromTwosComplement(b), nil
}

func minimalTwosComplement(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0x00}
	}
	if n.Sign() > 0 {
		b := n.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0x00}, b...)
		}
		return b
	}
	bitLen := n.BitLen()
	nBytes := bitLen/8 + 1
	twos := new(big.Int).Add(n, new(big.Int).Lsh(big.NewInt(1), uint(nBytes*8)))
	b := twos.Bytes()
	for len(b) < nBytes {
		b = append([]byte{0}, b...)
	}
	for len(b) > 1 && b[0] == 0xFF && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b
}

func fromTwosComplement(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	v := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return v
}

// bitsForChoice returns the number of bits needed to index n root
// alternatives, per X.691 §23.
func bitsForChoice(n int) int {
	if n <= 1 {
		return 0
	}
	bits := 0
	for (1 << bits) < n {
		bits++
	}
	return bits
}
