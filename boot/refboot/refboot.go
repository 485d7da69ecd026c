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

// Package refboot is the reference bootloader the test harness drives
// package boot's contract against. The real bootloader System Under Test
// is out of scope and treated as a black box; this state machine exists so
// the harness has something runnable to interrupt, fault-inject against,
// and verify. Its scenario-level behavior (what trailer state results from
// a fresh upgrade vs. a revert, when a bad signature aborts without a
// swap) is read directly off the assertions the original simulator's
// scenario methods make; the swap mechanics themselves are new, since the
// real bootloader's own swap algorithm was not part of the retrieved
// source.
package refboot

import (
	log "github.com/sirupsen/logrus"

	"github.com/mcu-tools/bootsim/areadesc"
	"github.com/mcu-tools/bootsim/boot"
	"github.com/mcu-tools/bootsim/flashsim"
	"github.com/mcu-tools/bootsim/image"
	"github.com/mcu-tools/bootsim/trailer"
	"github.com/mcu-tools/bootsim/util"
)

// interrupted is panicked when the flash-operation counter is exhausted
// and recovered exactly once at the top of the returned boot.Func — the
// sentinel-return idiom from the design notes, implemented as a single
// recover point instead of threading an abort signal through every nested
// helper call.
type interrupted struct{}

// New returns a boot.Func implementing the given capability set.
func New(caps boot.Caps) boot.Func {
	return func(fl *flashsim.Device, ad *areadesc.AreaDescriptor, counter *boot.Counter,
		align int, catchAsserts bool) (result int, asserts int) {

		b := &run{fl: fl, ad: ad, counter: counter, align: align, catchAsserts: catchAsserts, caps: caps}

		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(interrupted); ok {
					result, asserts = boot.Interrupted, b.asserts
					return
				}
				panic(r)
			}
		}()

		b.execute()
		return 0, b.asserts
	}
}

type run struct {
	fl           *flashsim.Device
	ad           *areadesc.AreaDescriptor
	counter      *boot.Counter
	align        int
	catchAsserts bool
	caps         boot.Caps
	asserts      int
}

func (b *run) tick() {
	if b.counter.Tick() {
		panic(interrupted{})
	}
}

func (b *run) erase(off, length int) {
	b.tick()
	if err := b.fl.Erase(off, length); err != nil {
		panic(err)
	}
}

func (b *run) write(off int, payload []byte) {
	b.tick()
	if err := b.fl.Write(off, payload); err != nil {
		panic(err)
	}
}

func (b *run) read(off int, data []byte) {
	b.tick()
	if err := b.fl.Read(off, data); err != nil {
		panic(err)
	}
}

// markUpgrade, markCopyDone and markPermanent wrap the trailer package's
// single-field writers with the counter tick and tolerate a simulated
// bad-region write failure, counting it as an assert when catchAsserts is
// set; any other write error panics.
func (b *run) markUpgrade(trailerOff int) {
	b.tick()
	if err := trailer.MarkUpgrade(b.fl, trailerOff, boot.MaxAlign()); err != nil {
		if !util.IsSimulatedFail(err) {
			panic(err)
		}
		if b.catchAsserts {
			b.asserts++
		}
	}
}

func (b *run) markCopyDone(trailerOff int) {
	b.tick()
	if err := trailer.MarkCopyDone(b.fl, trailerOff, boot.MaxAlign()); err != nil {
		if !util.IsSimulatedFail(err) {
			panic(err)
		}
		if b.catchAsserts {
			b.asserts++
		}
	}
}

func (b *run) markPermanent(trailerOff int) {
	b.tick()
	if err := trailer.MarkPermanentUpgrade(b.fl, trailerOff, boot.MaxAlign()); err != nil {
		if !util.IsSimulatedFail(err) {
			panic(err)
		}
		if b.catchAsserts {
			b.asserts++
		}
	}
}

func offsetFromEnd() int {
	return boot.MagicSize() + boot.MaxAlign()*2
}

func (b *run) trailerOff(id areadesc.FlashId) int {
	switch id {
	case areadesc.Image0:
		a1, _ := b.ad.Find(areadesc.Image1)
		return a1.Base - offsetFromEnd()
	case areadesc.Image1:
		sc, _ := b.ad.Find(areadesc.Scratch)
		return sc.Base - offsetFromEnd()
	default:
		panic("trailer requested for unsupported area")
	}
}

func (b *run) execute() {
	slot0, _ := b.ad.Find(areadesc.Image0)
	slot1, _ := b.ad.Find(areadesc.Image1)

	slot0Trailer := b.trailerOff(areadesc.Image0)
	slot1Trailer := b.trailerOff(areadesc.Image1)

	slot0Fields, err := trailer.Read(b.fl, slot0Trailer, boot.MaxAlign())
	if err != nil {
		panic(err)
	}

	dataLen := slot0.Size - offsetFromEnd()

	// A completed-but-unconfirmed swap must be detected from slot0's own
	// trailer, not slot1's: swapData below erases every sector tail past
	// dataLen as a side effect of the forward swap, which is exactly where
	// both slots' trailers live, so slot1's pending magic is already gone
	// by the time a later boot could read it. slot0's copy_done/image_ok
	// pair is the only durable record that a revert is still owed.
	if slot0Fields.CopyDone == trailer.CopyDone && slot0Fields.ImageOk != trailer.ImageOk && b.caps.SwapUpgrade {
		// Completed, unconfirmed swap: revert, then confirm the restored
		// primary so a further boot is stable.
		b.swapData(slot0, slot1, dataLen)
		b.markUpgrade(slot0Trailer)
		b.markCopyDone(slot0Trailer)
		b.markPermanent(slot0Trailer)
	} else {
		slot1Fields, err := trailer.Read(b.fl, slot1Trailer, boot.MaxAlign())
		if err != nil {
			panic(err)
		}

		if !bytesEqual(slot1Fields.Magic, trailer.MagicValid) {
			log.Debug("refboot: no pending upgrade in slot1, nothing to do")
			return
		}

		if !b.verifySlot(slot1.Base) {
			log.Debug("refboot: slot1 signature invalid, rejecting upgrade")
			return
		}

		// Fresh upgrade request: swap slot0 and slot1 through scratch,
		// then stamp slot0's trailer with the carried-over image_ok.
		b.swapData(slot0, slot1, dataLen)
		b.markUpgrade(slot0Trailer)
		b.markCopyDone(slot0Trailer)
		if slot1Fields.ImageOk == trailer.ImageOk {
			b.markPermanent(slot0Trailer)
		}
	}

	if b.caps.ValidateSlot0 {
		if !b.verifySlot(slot0.Base) {
			if b.catchAsserts {
				b.asserts++
			} else {
				panic(util.FmtSimError("post-swap slot0 validation failed"))
			}
		}
	}
}

func (b *run) verifySlot(base int) bool {
	ok, err := image.VerifyHash(b.fl, base)
	if err != nil {
		panic(err)
	}
	return ok
}

// swapData exchanges the first dataLen bytes of slot0 and slot1, moving
// each real sector's worth of content through the scratch area. Each
// sector is erased in full (required by the flash model) but only dataLen
// bytes, clamped per-sector, are ever written back — the remainder of a
// sector that straddles dataLen is left erased, which is precisely how
// the trailer fields of both slots end up reset to the erased/UNSET state
// as a side effect of the swap, with no separate "clear trailer" step
// needed.
func (b *run) swapData(slot0, slot1 areadesc.Area, dataLen int) {
	scratch, _ := b.ad.Find(areadesc.Scratch)

	for _, sector := range sectorsIn(b.fl, slot0.Base, slot0.Size) {
		relOff := sector.Base - slot0.Base
		chunkLen := sector.Size

		n := dataLen - relOff
		if n < 0 {
			n = 0
		}
		if n > chunkLen {
			n = chunkLen
		}

		buf0 := make([]byte, chunkLen)
		b.read(slot0.Base+relOff, buf0)
		buf1 := make([]byte, chunkLen)
		b.read(slot1.Base+relOff, buf1)

		b.erase(scratch.Base, chunkLen)
		if n > 0 {
			b.write(scratch.Base, buf0[:n])
		}

		b.erase(slot0.Base+relOff, chunkLen)
		if n > 0 {
			b.write(slot0.Base+relOff, buf1[:n])
		}

		b.erase(slot1.Base+relOff, chunkLen)
		if n > 0 {
			scratchBack := make([]byte, n)
			b.read(scratch.Base, scratchBack)
			b.write(slot1.Base+relOff, scratchBack)
		}
	}
}

func sectorsIn(fl *flashsim.Device, base, size int) []flashsim.Sector {
	var out []flashsim.Sector
	it := fl.SectorIter()
	for {
		s, ok := it.Next()
		if !ok {
			break
		}
		if s.Base >= base && s.Base < base+size {
			out = append(out, s)
		}
	}
	return out
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
