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

import "github.com/mcu-tools/bootsim/flashsim"

const versionBoundary = 128 * 1024

// Install builds and writes a complete image (header, deterministic body,
// and TLV tail) at offset within fl, and returns the exact bytes written
// (the "expected" buffer callers compare flash contents against).
//
// When badSig is true, the TLV tail bytes are replaced with zeros of the
// same length before writing, leaving the layout intact but the signature
// invalid.
func Install(fl *flashsim.Device, offset, length int, badSig bool, tlv TlvBuilder) ([]byte, error) {
	hdr := Header{
		Magic:   Magic,
		TlvSize: tlv.Size(),
		KeyId:   0,
		HdrSize: HeaderSize,
		ImgSize: uint32(length),
		Flags:   tlv.Flags(),
		Version: Version{
			Major:    uint8(offset / versionBoundary),
			Minor:    0,
			Revision: 1,
			BuildNum: uint32(offset),
		},
	}

	headerBytes := hdr.Bytes()

	body := make([]byte, length)
	Splat(body, offset)

	tlv.AddBytes(headerBytes)
	tlv.AddBytes(body)
	tail := tlv.Make()

	if badSig {
		for i := range tail {
			tail[i] = 0x00
		}
	}

	if err := fl.Write(offset, headerBytes); err != nil {
		return nil, err
	}

	payload := append(append([]byte(nil), body...), tail...)
	for len(payload)%8 != 0 {
		payload = append(payload, 0xff)
	}

	if err := fl.Write(offset+HeaderSize, payload); err != nil {
		return nil, err
	}

	total := HeaderSize + len(payload)
	expected := make([]byte, total)
	if err := fl.Read(offset, expected); err != nil {
		return nil, err
	}
	return expected, nil
}
