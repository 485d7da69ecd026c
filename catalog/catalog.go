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

// Package catalog holds the fixed per-device sector-map and area-map
// presets the harness cross-products against alignments when it builds a
// fresh flash fixture for a scenario.
package catalog

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/mcu-tools/bootsim/areadesc"
	"github.com/mcu-tools/bootsim/flashsim"
	"github.com/mcu-tools/bootsim/util"
)

const (
	k = 1024
)

// AllAligns are the write alignments the runall CLI mode exercises.
var AllAligns = []int{1, 2, 4, 8}

// AllDevices are the preset names Build recognizes.
var AllDevices = []string{"stm32f4", "k64f", "k64fbig", "nrf52840"}

// Preset is a literal, named sector-map and area-map pair.
type Preset struct {
	Name    string
	Sectors []int
	// Simple marks device geometries (k64fbig) whose areas are registered
	// with AddSimpleImage rather than the sector-boundary-checked AddImage,
	// the way a board support package might describe its flash map coarser
	// than the physical sector layout.
	Simple bool
	Images []presetImage
}

type presetImage struct {
	base, size int
	id         areadesc.FlashId
}

// Presets returns the fixed device catalog, grounded on the literal sector
// maps and area offsets spelled out in the device catalog component.
func Presets() map[string]Preset {
	return map[string]Preset{
		"stm32f4": {
			Name:    "stm32f4",
			Sectors: []int{16 * k, 16 * k, 16 * k, 16 * k, 64 * k, 128 * k, 128 * k, 128 * k},
			Images: []presetImage{
				{0x020000, 0x20000, areadesc.Image0},
				{0x040000, 0x20000, areadesc.Image1},
				{0x060000, 0x20000, areadesc.Scratch},
			},
		},
		"k64f": {
			Name:    "k64f",
			Sectors: uniform(128, 4*k),
			Images: []presetImage{
				{0x020000, 0x20000, areadesc.Image0},
				{0x040000, 0x20000, areadesc.Image1},
				{0x060000, 0x1000, areadesc.Scratch},
			},
		},
		"k64fbig": {
			Name:    "k64fbig",
			Sectors: uniform(128, 4*k),
			Simple:  true,
			Images: []presetImage{
				{0x020000, 0x20000, areadesc.Image0},
				{0x040000, 0x20000, areadesc.Image1},
				{0x060000, 0x20000, areadesc.Scratch},
			},
		},
		"nrf52840": {
			Name:    "nrf52840",
			Sectors: uniform(128, 4*k),
			Images: []presetImage{
				{0x008000, 0x34000, areadesc.Image0},
				{0x03C000, 0x34000, areadesc.Image1},
				{0x070000, 0x0D000, areadesc.Scratch},
			},
		},
	}
}

func uniform(count, size int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = size
	}
	return out
}

// Build constructs a fresh flash device and area descriptor for the named
// preset at the given write alignment.
func Build(name string, align int) (*flashsim.Device, *areadesc.AreaDescriptor, error) {
	preset, ok := Presets()[name]
	if !ok {
		return nil, nil, util.FmtSimError("unknown device preset %q", name)
	}

	dev := flashsim.New(preset.Sectors, align)
	if err := dev.Erase(0, dev.DeviceSize()); err != nil {
		return nil, nil, err
	}

	ad := areadesc.New()
	for _, img := range preset.Images {
		if preset.Simple {
			ad.AddSimpleImage(img.base, img.size, img.id)
			continue
		}
		if err := ad.AddImage(dev, img.base, img.size, img.id); err != nil {
			return nil, nil, err
		}
	}
	if err := ad.Validate(); err != nil {
		return nil, nil, err
	}

	return dev, ad, nil
}

// ParseSize parses a human size string such as "16Kb" or "128Kb" into a
// byte count, the way a CLI flag or catalog config value would be
// accepted loosely and coerced with spf13/cast rather than a hand-rolled
// parser.
func ParseSize(s string) (int, error) {
	n, err := cast.ToIntE(trimSizeSuffix(s))
	if err != nil {
		return 0, util.FmtSimError("invalid size %q: %v", s, err)
	}
	return n, nil
}

func trimSizeSuffix(s string) string {
	mult := 1
	suffix := ""
	switch {
	case hasSuffixFold(s, "kb"), hasSuffixFold(s, "k"):
		mult = k
		suffix = trimAnySuffix(s)
	case hasSuffixFold(s, "mb"), hasSuffixFold(s, "m"):
		mult = k * k
		suffix = trimAnySuffix(s)
	default:
		return s
	}
	n, err := cast.ToIntE(suffix)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%d", n*mult)
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := range tail {
		a, b := tail[i], suffix[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func trimAnySuffix(s string) string {
	for len(s) > 0 {
		c := s[len(s)-1]
		if c >= '0' && c <= '9' {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}
