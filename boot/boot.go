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

// Package boot defines the portable contract between the simulator and the
// bootloader System Under Test. The real bootloader is an external black
// box; package boot/refboot supplies the reference implementation this
// repository exercises the contract against.
package boot

import (
	"github.com/mcu-tools/bootsim/areadesc"
	"github.com/mcu-tools/bootsim/flashsim"
)

// Interrupted is the sentinel boot_go result meaning "the interrupt counter
// reached zero mid-operation". This must be preserved bit-exact: it is the
// single handshake the simulator and the bootloader share.
const Interrupted = -0x13579

// Counter is the mutable, cooperative interruption trigger passed into
// Func: decremented once per flash operation the bootloader issues. When it
// reaches zero, the bootloader must stop and return Interrupted. A nil
// *Counter (Enabled == false) means "run to completion".
type Counter struct {
	Enabled bool
	N       int
}

// Tick decrements the counter if enabled and reports whether it has been
// exhausted (reached zero on this call).
func (c *Counter) Tick() bool {
	if c == nil || !c.Enabled {
		return false
	}
	c.N--
	return c.N <= 0
}

// Func is the signature every bootloader binding (reference or real)
// implements. result is 0 on success, Interrupted if counter ran out, or
// any other negative value on failure. asserts counts triggered assertions
// when catchAsserts is true instead of panicking on them.
type Func func(fl *flashsim.Device, ad *areadesc.AreaDescriptor, counter *Counter,
	align int, catchAsserts bool) (result int, asserts int)

// MagicSize is the fixed length of the trailer magic pattern.
func MagicSize() int { return 16 }

// MaxAlign is the largest write alignment the catalog exercises.
func MaxAlign() int { return 8 }

// TrailerSize returns the total trailer footprint for the given alignment:
// copy_done + image_ok + magic, each field padded out to align.
func TrailerSize(align int) int {
	return 2*align + MagicSize()
}

// Caps reports the compile-time feature flags of a bootloader binding as a
// runtime-queryable capability object, per the design notes' preference for
// a runtime object over build tags (needed here since the catalog/align
// cross product must select scenarios per run, not per build).
type Caps struct {
	SwapUpgrade   bool
	ValidateSlot0 bool
}
