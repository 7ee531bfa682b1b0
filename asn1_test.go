// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asn1kit

import "fmt"

func ExampleTag_String() {
	t1 := Tag{ClassApplication, 17}
	t2 := Tag{ClassContextSpecific, 8}
	t3 := Tag{ClassUniversal, 2}
	fmt.Println(t1.String())
	fmt.Println(t2.String())
	fmt.Println(t3.String())
	// Output:
	// [APPLICATION 17]
	// [8]
	// [UNIVERSAL 2]
}

func ExampleTagMode_String() {
	fmt.Println(TagImplicit.String())
	fmt.Println(TagExplicit.String())
	// Output:
	// IMPLICIT
	// EXPLICIT
}
