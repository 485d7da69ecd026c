/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package image

// xorShift128 is a from-scratch port of the classic XorShift128 generator
// (the same algorithm the original simulator drove via the rand crate's
// XorShiftRng) — no package in the retrieval corpus implements this PRNG,
// so the recurrence itself had to be hand-written to reproduce the
// original's documented seed behavior bit-for-bit.
type xorShift128 struct {
	x, y, z, w uint32
}

func newXorShift128(seed [4]uint32) *xorShift128 {
	return &xorShift128{x: seed[0], y: seed[1], z: seed[2], w: seed[3]}
}

func (r *xorShift128) next() uint32 {
	t := r.x ^ (r.x << 11)
	r.x = r.y
	r.y = r.z
	r.z = r.w
	r.w = r.w ^ (r.w >> 19) ^ (t ^ (t >> 8))
	return r.w
}

// fillBytes fills dst with the little-endian bytes of successive next()
// calls, matching the rand crate's generic fill_bytes over a u32 source.
func (r *xorShift128) fillBytes(dst []byte) {
	var word uint32
	for i := range dst {
		if i%4 == 0 {
			word = r.next()
		}
		dst[i] = byte(word >> uint((i%4)*8))
	}
}

// Splat fills dst with the deterministic pseudorandom image body, seeded
// from the fixed constants, the body length, and the slot offset — so that
// the primary and upgrade image bodies are reproducible across runs and
// comparable bit-for-bit.
func Splat(dst []byte, offset int) {
	seed := [4]uint32{0x135782ea, 0x92184728, uint32(len(dst)), uint32(offset)}
	newXorShift128(seed).fillBytes(dst)
}
