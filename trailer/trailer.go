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

// Package trailer reads and writes the upgrade-state bytes kept at the high
// end of an image slot: a 16-byte magic pattern, an image_ok byte, and a
// copy_done byte.
package trailer

import "github.com/mcu-tools/bootsim/flashsim"

// MagicSize is the length, in bytes, of the trailer magic pattern.
const MagicSize = 16

// MagicValid is written to a slot's trailer to request an upgrade.
var MagicValid = []byte{
	0x77, 0xc2, 0x95, 0xf3, 0x60, 0xd2, 0xef, 0x7f,
	0x35, 0x52, 0x50, 0x0f, 0x2c, 0xb6, 0x79, 0x80,
}

// MagicUnset marks a trailer that carries no pending request.
var MagicUnset = bytes16(0xff)

const (
	Unset    byte = 0xff
	ImageOk  byte = 0x01
	CopyDone byte = 0x01
)

func bytes16(b byte) []byte {
	out := make([]byte, MagicSize)
	for i := range out {
		out[i] = b
	}
	return out
}

// Offsets of the three trailer fields relative to a slot's trailer_off, as
// a function of the bootloader's maximum write alignment: byte 0 is
// copy_done, byte maxAlign is image_ok, and bytes 2*maxAlign..2*maxAlign+16
// hold the magic. This generalizes over every align in {1,2,4,8}; a fixed
// offset of 8 (valid only for maxAlign==8) would be wrong for the others.
func copyDoneOffset(maxAlign int) int { return 0 }
func imageOkOffset(maxAlign int) int  { return maxAlign }
func magicOffset(maxAlign int) int    { return 2 * maxAlign }

// Size returns the total trailer footprint for a given alignment:
// boot_trailer_sz in spec terms.
func Size(maxAlign int) int {
	return magicOffset(maxAlign) + MagicSize
}

// MarkUpgrade writes the magic pattern that requests an upgrade at
// trailerOff, the offset of the slot's trailer within the device.
func MarkUpgrade(fl *flashsim.Device, trailerOff, maxAlign int) error {
	return fl.Write(trailerOff+magicOffset(maxAlign), MagicValid)
}

// MarkPermanentUpgrade additionally sets image_ok, so the bootloader treats
// the upgrade as confirmed and will not revert it.
func MarkPermanentUpgrade(fl *flashsim.Device, trailerOff, maxAlign int) error {
	buf := make([]byte, maxAlign)
	buf[0] = ImageOk
	for i := 1; i < maxAlign; i++ {
		buf[i] = Unset
	}
	return fl.Write(trailerOff+imageOkOffset(maxAlign), buf)
}

// MarkCopyDone sets the copy_done byte directly; refboot uses this after
// performing a swap.
func MarkCopyDone(fl *flashsim.Device, trailerOff, maxAlign int) error {
	buf := make([]byte, maxAlign)
	buf[0] = CopyDone
	for i := 1; i < maxAlign; i++ {
		buf[i] = Unset
	}
	return fl.Write(trailerOff+copyDoneOffset(maxAlign), buf)
}

// Fields holds the result of a trailer read.
type Fields struct {
	CopyDone byte
	ImageOk  byte
	Magic    []byte
}

// Read returns the raw trailer fields at trailerOff.
func Read(fl *flashsim.Device, trailerOff, maxAlign int) (Fields, error) {
	buf := make([]byte, Size(maxAlign))
	if err := fl.Read(trailerOff, buf); err != nil {
		return Fields{}, err
	}
	return Fields{
		CopyDone: buf[copyDoneOffset(maxAlign)],
		ImageOk:  buf[imageOkOffset(maxAlign)],
		Magic:    append([]byte(nil), buf[magicOffset(maxAlign):magicOffset(maxAlign)+MagicSize]...),
	}, nil
}

// Verify compares trailer fields against expected values; a nil expected
// field is not checked. Any mismatch among the provided fields is a
// verification failure.
func Verify(fl *flashsim.Device, trailerOff, maxAlign int, magic, imageOk, copyDone []byte) (bool, error) {
	got, err := Read(fl, trailerOff, maxAlign)
	if err != nil {
		return false, err
	}

	if magic != nil && !bytesEqual(got.Magic, magic) {
		return false, nil
	}
	if imageOk != nil && got.ImageOk != imageOk[0] {
		return false, nil
	}
	if copyDone != nil && got.CopyDone != copyDone[0] {
		return false, nil
	}
	return true, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
