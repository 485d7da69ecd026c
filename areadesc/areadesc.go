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

// Package areadesc maps the fixed set of logical flash roles (the primary
// image slot, the upgrade/candidate slot, and scratch space) onto offsets
// and sizes within a flashsim.Device.
package areadesc

import (
	"fmt"
	"sort"

	"github.com/mcu-tools/bootsim/flashsim"
	"github.com/mcu-tools/bootsim/util"
)

// FlashId names one of the fixed logical flash roles the bootloader
// understands.
type FlashId int

const (
	Image0 FlashId = iota
	Image1
	Scratch
)

func (id FlashId) String() string {
	switch id {
	case Image0:
		return "Image0"
	case Image1:
		return "Image1"
	case Scratch:
		return "Scratch"
	default:
		return fmt.Sprintf("FlashId(%d)", int(id))
	}
}

// Area is the offset and size of one logical area.
type Area struct {
	Base int
	Size int
}

// AreaDescriptor binds logical flash roles to concrete offsets, the way
// FlashArea binds a system area name to a device/offset/size triple.
type AreaDescriptor struct {
	areas map[FlashId]Area
}

func New() *AreaDescriptor {
	return &AreaDescriptor{areas: make(map[FlashId]Area)}
}

// Clone performs a shallow copy; Area values are immutable so a shallow map
// copy is sufficient and cheap, matching spec.md's requirement that cloning
// the fixture per-scenario stay inexpensive.
func (ad *AreaDescriptor) Clone() *AreaDescriptor {
	c := New()
	for k, v := range ad.areas {
		c.areas[k] = v
	}
	return c
}

// AddImage registers an area, requiring its bounds to land on whole sector
// boundaries as reported by dev's sector map.
func (ad *AreaDescriptor) AddImage(dev *flashsim.Device, base, size int, id FlashId) error {
	if !onSectorBoundary(dev, base) {
		return util.OutOfBoundsError("area base 0x%x not on a sector boundary", base)
	}
	if !onSectorBoundary(dev, base+size) {
		return util.OutOfBoundsError("area end 0x%x not on a sector boundary", base+size)
	}
	ad.areas[id] = Area{Base: base, Size: size}
	return nil
}

// AddSimpleImage registers an area without the sector-boundary check, used
// by device presets (like k64fbig) that model a flash part as if it had
// larger, simpler sectors than it actually does.
func (ad *AreaDescriptor) AddSimpleImage(base, size int, id FlashId) {
	ad.areas[id] = Area{Base: base, Size: size}
}

func onSectorBoundary(dev *flashsim.Device, offset int) bool {
	if offset == dev.DeviceSize() {
		return true
	}
	it := dev.SectorIter()
	for {
		s, ok := it.Next()
		if !ok {
			return false
		}
		if s.Base == offset {
			return true
		}
	}
}

// Find returns the area registered for id.
func (ad *AreaDescriptor) Find(id FlashId) (Area, bool) {
	a, ok := ad.areas[id]
	return a, ok
}

// Validate reports overlapping areas, grounded on the teacher's
// DetectErrors/areasDistinct overlap check, repurposed here from guarding a
// YAML-parsed flash map to sanity-checking a hardcoded catalog preset.
func (ad *AreaDescriptor) Validate() error {
	ids := make([]FlashId, 0, len(ad.areas))
	for id := range ad.areas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a := ad.areas[ids[i]]
			b := ad.areas[ids[j]]
			if areasOverlap(a, b) {
				return util.FmtSimError("areas %v and %v overlap", ids[i], ids[j])
			}
		}
	}
	return nil
}

func areasOverlap(a, b Area) bool {
	lo, hi := a, b
	if b.Base < a.Base {
		lo, hi = b, a
	}
	return lo.Base+lo.Size > hi.Base
}
