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

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/mcu-tools/bootsim/flashsim"
)

// ReadHeader reads and decodes the 32-byte header at offset.
func ReadHeader(fl *flashsim.Device, offset int) (Header, error) {
	buf := make([]byte, HeaderSize)
	if err := fl.Read(offset, buf); err != nil {
		return Header{}, err
	}

	return Header{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		TlvSize: binary.LittleEndian.Uint16(buf[4:6]),
		KeyId:   buf[6],
		Pad1:    buf[7],
		HdrSize: binary.LittleEndian.Uint16(buf[8:10]),
		Pad2:    binary.LittleEndian.Uint16(buf[10:12]),
		ImgSize: binary.LittleEndian.Uint32(buf[12:16]),
		Flags:   binary.LittleEndian.Uint32(buf[16:20]),
		Version: Version{
			Major:    buf[20],
			Minor:    buf[21],
			Revision: binary.LittleEndian.Uint16(buf[22:24]),
			BuildNum: binary.LittleEndian.Uint32(buf[24:28]),
		},
		Pad3: binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}

// VerifyHash recomputes SHA256(header||body) and compares it with the
// leading SHA256 TLV record every variant this package builds emits first
// (NewHashOnlyTlv/NewRSATlv/NewECDSATlv all put the hash record first, the
// same order BuildSigTlvs uses). This is how a bootloader binding detects a
// bad_sig image without needing to know which signature variant was used:
// a bad_sig install zeroes the entire TLV tail, which corrupts this leading
// hash record along with everything after it.
func VerifyHash(fl *flashsim.Device, offset int) (bool, error) {
	hdr, err := ReadHeader(fl, offset)
	if err != nil {
		return false, err
	}

	body := make([]byte, hdr.ImgSize)
	if err := fl.Read(offset+HeaderSize, body); err != nil {
		return false, err
	}

	tlv := make([]byte, hdr.TlvSize)
	if err := fl.Read(offset+HeaderSize+int(hdr.ImgSize), tlv); err != nil {
		return false, err
	}
	if len(tlv) < tlvHeaderSize+sha256.Size {
		return false, nil
	}
	if tlv[0] != tlvSHA256 {
		return false, nil
	}
	storedLen := binary.LittleEndian.Uint16(tlv[2:4])
	if int(storedLen) != sha256.Size {
		return false, nil
	}
	stored := tlv[tlvHeaderSize : tlvHeaderSize+sha256.Size]

	sum := sha256.Sum256(append(hdr.Bytes(), body...))
	for i := range sum {
		if sum[i] != stored[i] {
			return false, nil
		}
	}
	return true, nil
}
