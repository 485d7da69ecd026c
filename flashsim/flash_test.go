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

package flashsim

import (
	"testing"

	"github.com/mcu-tools/bootsim/util"
)

func TestFlashUniformSectors(t *testing.T) {
	sizes := make([]int, 256)
	for i := range sizes {
		sizes[i] = 4096
	}
	testDevice(t, New(sizes, 1))
}

func TestFlashNonUniformSectors(t *testing.T) {
	sizes := []int{16 * 1024, 16 * 1024, 16 * 1024, 64 * 1024, 128 * 1024, 128 * 1024, 128 * 1024}
	testDevice(t, New(sizes, 1))
}

func testDevice(t *testing.T, d *Device) {
	sectors := d.SectorIter().Collect()

	if err := d.Erase(0, sectors[0].Size); err != nil {
		t.Fatalf("erase first sector: %v", err)
	}

	size := d.DeviceSize()
	if err := d.Erase(0, size); err != nil {
		t.Fatalf("erase whole device: %v", err)
	}

	if err := d.Erase(0, sectors[0].Size-1); !util.IsOutOfBounds(err) {
		t.Fatalf("expected out-of-bounds erasing a partial sector, got %v", err)
	}

	if err := d.Write(0, []byte{0}); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	if err := d.Read(0, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []byte{0, 0xff, 0xff, 0xff}
	if !bytesEqual(buf, want) {
		t.Fatalf("got %v want %v", buf, want)
	}

	if err := d.Erase(0, sectors[0].Size); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if err := d.Read(0, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, b := range buf {
		if b != 0xff {
			t.Fatalf("expected fully erased, got %v", buf)
		}
	}

	for _, sector := range sectors {
		b := byte(sector.Num & 127)
		if err := d.Write(sector.Base, []byte{b}); err != nil {
			t.Fatalf("write sector %d start: %v", sector.Num, err)
		}
		if err := d.Write(sector.Base+sector.Size-1, []byte{b}); err != nil {
			t.Fatalf("write sector %d end: %v", sector.Num, err)
		}
	}

	for _, sector := range sectors {
		b := byte(sector.Num & 127)
		buf := make([]byte, sector.Size)
		if err := d.Read(sector.Base, buf); err != nil {
			t.Fatalf("read sector %d: %v", sector.Num, err)
		}
		if buf[0] != b || buf[len(buf)-1] != b {
			t.Fatalf("sector %d: got first=%v last=%v want %v", sector.Num, buf[0], buf[len(buf)-1], b)
		}
		for _, mid := range buf[1 : len(buf)-1] {
			if mid != 0xff {
				t.Fatalf("sector %d: interior byte not erased: %v", sector.Num, mid)
			}
		}
	}
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
