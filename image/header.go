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

// Package image builds the firmware images installed into flash slots: a
// fixed-layout header, a deterministically-generated body, and a
// TLV-encoded signature or hash tail.
package image

import (
	"bytes"
	"encoding/binary"

	"github.com/mcu-tools/bootsim/util"
)

const (
	Magic      uint32 = 0x96f3b83d
	HeaderSize        = 32

	FlagPic          uint32 = 0x00000001
	FlagNonBootable  uint32 = 0x00000002
	FlagEncrypted    uint32 = 0x00000004
)

// Version mirrors the portable wire layout's version sub-fields.
type Version struct {
	Major    uint8
	Minor    uint8
	Revision uint16
	BuildNum uint32
}

// Header is the 32-byte little-endian packed image header: u32 magic, u16
// tlv_size, u8 key_id, u8 pad, u16 hdr_size, u16 pad, u32 img_size, u32
// flags, u8 major, u8 minor, u16 revision, u32 build_num, u32 pad.
type Header struct {
	Magic   uint32
	TlvSize uint16
	KeyId   uint8
	Pad1    uint8
	HdrSize uint16
	Pad2    uint16
	ImgSize uint32
	Flags   uint32
	Version Version
	Pad3    uint32
}

// wireHeader is the exact on-the-wire field order; Header.Version is
// flattened into it so binary.Write emits a packed 32-byte record with no
// Go struct padding of its own.
type wireHeader struct {
	Magic    uint32
	TlvSize  uint16
	KeyId    uint8
	Pad1     uint8
	HdrSize  uint16
	Pad2     uint16
	ImgSize  uint32
	Flags    uint32
	Major    uint8
	Minor    uint8
	Revision uint16
	BuildNum uint32
	Pad3     uint32
}

// Bytes serializes the header to its 32-byte wire form.
func (h Header) Bytes() []byte {
	w := wireHeader{
		Magic:    h.Magic,
		TlvSize:  h.TlvSize,
		KeyId:    h.KeyId,
		Pad1:     h.Pad1,
		HdrSize:  h.HdrSize,
		Pad2:     h.Pad2,
		ImgSize:  h.ImgSize,
		Flags:    h.Flags,
		Major:    h.Version.Major,
		Minor:    h.Version.Minor,
		Revision: h.Version.Revision,
		BuildNum: h.Version.BuildNum,
		Pad3:     h.Pad3,
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &w); err != nil {
		panic(util.FmtSimError("failed to serialize image header: %s", err))
	}
	return buf.Bytes()
}
