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

// Package flashsim emulates the type of NOR flash commonly used in
// microcontrollers: writable one byte at a time, but only erasable in
// larger sector-sized units, with write locations that must be erased
// before they can be written again.
package flashsim

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/mcu-tools/bootsim/util"
)

type badRegion struct {
	offset int
	len    int
	rate   float32
}

// Device is an emulated flash chip: a block of bytes plus its sector
// mapping.
type Device struct {
	data         []byte
	writeSafe    []bool
	sectors      []int
	badRegions   []badRegion
	align        int
	verifyWrites bool
}

// New builds a flash device for the given sector size map.  align must be
// a positive power of two; it is the smallest unit writes may be split
// into.  Every sector size must be positive.
func New(sectors []int, align int) *Device {
	if align <= 0 || align&(align-1) != 0 {
		panic("flash alignment must be a positive power of two")
	}

	total := 0
	for _, s := range sectors {
		if s <= 0 {
			panic("flash sector size must be positive")
		}
		total += s
	}

	data := make([]byte, total)
	writeSafe := make([]bool, total)
	for i := range data {
		data[i] = 0xff
		writeSafe[i] = true
	}

	return &Device{
		data:         data,
		writeSafe:    writeSafe,
		sectors:      append([]int(nil), sectors...),
		align:        align,
		verifyWrites: true,
	}
}

// Clone returns a deep copy of the device, including its write-safe
// tracking and bad-region table.  Scenarios in package harness clone the
// base device rather than mutate a shared instance.
func (d *Device) Clone() *Device {
	c := &Device{
		data:         append([]byte(nil), d.data...),
		writeSafe:    append([]bool(nil), d.writeSafe...),
		sectors:      append([]int(nil), d.sectors...),
		badRegions:   append([]badRegion(nil), d.badRegions...),
		align:        d.align,
		verifyWrites: d.verifyWrites,
	}
	return c
}

func (d *Device) Align() int {
	return d.align
}

func (d *Device) DeviceSize() int {
	return len(d.data)
}

// WriteFile dumps the raw device contents to path, the optional persisted
// state spec.md describes.
func (d *Device) WriteFile(path string) error {
	if err := os.WriteFile(path, d.data, 0644); err != nil {
		return util.ChildSimError(err)
	}
	return nil
}

// getSector scans the sector map and returns the sector index and the
// offset within that sector for a given device offset.  The second return
// value is false if offset lies outside the device.
func (d *Device) getSector(offset int) (sector int, within int, ok bool) {
	for i, size := range d.sectors {
		if offset < size {
			return i, offset, true
		}
		offset -= size
	}
	return 0, 0, false
}

// Erase requires offset to land exactly at the start of a sector and
// offset+len to land exactly at the end of one; flash drivers tend to
// erase beyond the bounds of a loosely-specified range, so this is
// deliberately strict.
func (d *Device) Erase(offset, length int) error {
	_, within, ok := d.getSector(offset)
	if !ok {
		return util.OutOfBoundsError("erase start out of bounds: 0x%x", offset)
	}
	if within != 0 {
		return util.OutOfBoundsError("erase offset 0x%x not at start of sector", offset)
	}

	endSector, endWithin, ok := d.getSector(offset + length - 1)
	if !ok {
		return util.OutOfBoundsError("erase end out of bounds: 0x%x", offset+length)
	}
	if endWithin != d.sectors[endSector]-1 {
		return util.OutOfBoundsError("erase end 0x%x not at end of sector", offset+length)
	}

	for i := offset; i < offset+length; i++ {
		d.data[i] = 0xff
		d.writeSafe[i] = true
	}

	return nil
}

// Write restricts callers to writing either previously-unwritten locations
// or locations written to after being erased, emulating flash that starts
// out erased and disallows rewriting the same location even when the bits
// would be compatible.
//
// Bad-region failures and the bounds/alignment checks are evaluated before
// anything is mutated, so a write they reject leaves the device unchanged.
// The write-safety check runs byte by byte, clearing each byte's write-safe
// flag as it passes; payload bytes are copied into the device only after
// every byte has passed it.
func (d *Device) Write(offset int, payload []byte) error {
	for _, r := range d.badRegions {
		if offset >= r.offset && offset+len(payload) <= r.offset+r.len {
			if randFloat32() < r.rate {
				return util.SimulatedFailError(
					"Ignoring write to 0x%x-0x%x", r.offset, r.offset+r.len)
			}
		}
	}

	if offset+len(payload) > len(d.data) {
		panic("write outside of device")
	}

	if offset&(d.align-1) != 0 {
		panic("misaligned write address")
	}

	if len(payload)&(d.align-1) != 0 {
		panic("write length not a multiple of alignment")
	}

	for i := 0; i < len(payload); i++ {
		if d.verifyWrites && !d.writeSafe[offset+i] {
			panic("write to unerased location")
		}
		d.writeSafe[offset+i] = false
	}

	copy(d.data[offset:offset+len(payload)], payload)
	return nil
}

// Read does no write-safety bookkeeping, only a bounds check.
func (d *Device) Read(offset int, data []byte) error {
	if offset+len(data) > len(d.data) {
		return util.OutOfBoundsError("read outside of device: 0x%x", offset)
	}
	copy(data, d.data[offset:offset+len(data)])
	return nil
}

// AddBadRegion causes writes fully contained in [offset, offset+len) to
// fail with probability rate.
func (d *Device) AddBadRegion(offset, length int, rate float32) error {
	if rate < 0.0 || rate > 1.0 {
		return util.OutOfBoundsError("invalid bad-region rate: %v", rate)
	}

	log.Debugf("adding bad region 0x%x-0x%x rate=%v", offset, offset+length, rate)
	d.badRegions = append(d.badRegions, badRegion{offset, length, rate})
	return nil
}

func (d *Device) ResetBadRegions() {
	d.badRegions = nil
}

func (d *Device) SetVerifyWrites(enable bool) {
	d.verifyWrites = enable
}
