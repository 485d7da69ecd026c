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

// Package harness is the test orchestrator: it builds the Images fixture
// for a (device, align) pair, drives a bootloader binding through the
// upgrade/revert/interrupt/random-fault/sign-failure scenarios, and
// accumulates pass/fail counts.
package harness

import (
	"math/rand"

	log "github.com/sirupsen/logrus"

	"github.com/mcu-tools/bootsim/areadesc"
	"github.com/mcu-tools/bootsim/boot"
	"github.com/mcu-tools/bootsim/catalog"
	"github.com/mcu-tools/bootsim/flashsim"
	"github.com/mcu-tools/bootsim/image"
	"github.com/mcu-tools/bootsim/trailer"
	"github.com/mcu-tools/bootsim/util"
)

// testImageLen is the body length installed into every slot in the
// catalog: comfortably smaller than the smallest preset's usable slot
// capacity (the stm32f4/k64f 128K slots, minus the 32-byte trailer
// footprint reserved at max_align=8), so every device/align combination
// in the catalog can host it.
const testImageLen = 32784

// Images is one test fixture: a flash device, its area descriptor, the
// images installed into slot0/slot1, and the bootloader binding under
// test.
type Images struct {
	Dev    *flashsim.Device
	Ad     *areadesc.AreaDescriptor
	Align  int
	BootFn boot.Func
	Caps   boot.Caps

	Primary []byte
	Upgrade []byte

	hasSlot1 bool
}

// NewImages builds a fresh device/area-descriptor pair for device at align
// and installs a primary image into slot0 and, unless slot1Image is false,
// an upgrade image into slot1. tlvFactory must return a fresh TlvBuilder
// each call, since a builder accumulates state across one image.
func NewImages(device string, align int, bootFn boot.Func, caps boot.Caps,
	tlvFactory func() image.TlvBuilder, slot1Image bool, slot1BadSig bool) (*Images, error) {

	dev, ad, err := catalog.Build(device, align)
	if err != nil {
		return nil, err
	}

	slot0, _ := ad.Find(areadesc.Image0)
	primary, err := image.Install(dev, slot0.Base, testImageLen, false, tlvFactory())
	if err != nil {
		return nil, err
	}

	im := &Images{
		Dev: dev, Ad: ad, Align: align, BootFn: bootFn, Caps: caps,
		Primary: primary,
	}

	if slot1Image {
		slot1, _ := ad.Find(areadesc.Image1)
		upgrade, err := image.Install(dev, slot1.Base, testImageLen, slot1BadSig, tlvFactory())
		if err != nil {
			return nil, err
		}
		im.Upgrade = upgrade
		im.hasSlot1 = true
	}

	return im, nil
}

// Clone forks an independent copy of the fixture: a fresh flash buffer and
// area map, sharing the immutable expected-content buffers.
func (im *Images) Clone() *Images {
	return &Images{
		Dev: im.Dev.Clone(), Ad: im.Ad.Clone(), Align: im.Align,
		BootFn: im.BootFn, Caps: im.Caps,
		Primary: im.Primary, Upgrade: im.Upgrade, hasSlot1: im.hasSlot1,
	}
}

func offsetFromEnd() int {
	return boot.MagicSize() + boot.MaxAlign()*2
}

// trailerOffset returns the device offset of id's trailer, mirroring
// refboot's own (unexported) computation: SlotInfo's trailer_off is
// defined relative to the NEXT slot's base.
func (im *Images) trailerOffset(id areadesc.FlashId) int {
	switch id {
	case areadesc.Image0:
		a1, _ := im.Ad.Find(areadesc.Image1)
		return a1.Base - offsetFromEnd()
	case areadesc.Image1:
		sc, _ := im.Ad.Find(areadesc.Scratch)
		return sc.Base - offsetFromEnd()
	default:
		panic("trailer requested for unsupported area")
	}
}

func (im *Images) markUpgrade(id areadesc.FlashId) error {
	return trailer.MarkUpgrade(im.Dev, im.trailerOffset(id), boot.MaxAlign())
}

func (im *Images) markPermanent(id areadesc.FlashId) error {
	return trailer.MarkPermanentUpgrade(im.Dev, im.trailerOffset(id), boot.MaxAlign())
}

func (im *Images) verifyTrailer(id areadesc.FlashId, magic, imageOk, copyDone []byte) (bool, error) {
	return trailer.Verify(im.Dev, im.trailerOffset(id), boot.MaxAlign(), magic, imageOk, copyDone)
}

func (im *Images) slotBytesEqual(id areadesc.FlashId, want []byte) (bool, error) {
	area, _ := im.Ad.Find(id)
	got := make([]byte, len(want))
	if err := im.Dev.Read(area.Base, got); err != nil {
		return false, err
	}
	for i := range want {
		if got[i] != want[i] {
			return false, nil
		}
	}
	return true, nil
}

// runBoot invokes the bootloader binding with the given counter and
// catchAsserts, returning its (result, asserts) pair unchanged.
func (im *Images) runBoot(counter *boot.Counter, catchAsserts bool) (int, int) {
	return im.BootFn(im.Dev, im.Ad, counter, im.Align, catchAsserts)
}

var (
	magicValid = trailer.MagicValid
	magicUnset = trailer.MagicUnset
	imageOk    = []byte{trailer.ImageOk}
	unset      = []byte{trailer.Unset}
	copyDone   = []byte{trailer.CopyDone}
)

// RunStatus accumulates the pass/fail counts across every scenario a run
// invokes.
type RunStatus struct {
	Passes   int
	Failures int
}

func (rs *RunStatus) record(name string, ok bool, err error) {
	if err != nil {
		log.Errorf("%s: error: %v", name, err)
		rs.Failures++
		return
	}
	if ok {
		rs.Passes++
	} else {
		log.Errorf("%s: FAILED", name)
		rs.Failures++
	}
}

// RunBasicUpgrade marks slot1 permanent, runs to completion, and verifies
// slot0 now holds the upgrade image. It also measures the flash-op count
// for a clean upgrade, which every interruption scenario replays against.
func RunBasicUpgrade(base *Images) (pass bool, totalCount int, err error) {
	im := base.Clone()
	if err := im.markUpgrade(areadesc.Image1); err != nil {
		return false, 0, err
	}
	if err := im.markPermanent(areadesc.Image1); err != nil {
		return false, 0, err
	}

	counter := &boot.Counter{Enabled: true, N: 1 << 20}
	result, _ := im.runBoot(counter, false)
	if result != 0 {
		return false, 0, util.FmtSimError("basic_upgrade: boot_go returned %d", result)
	}

	ok, err := im.slotBytesEqual(areadesc.Image0, im.Upgrade)
	if err != nil {
		return false, 0, err
	}
	return ok, (1 << 20) - counter.N, nil
}

// RunBasicRevert only applies when the binding supports swap/revert. For
// n successive full boots (n in 2..4), since image_ok is never marked,
// slot0 must always settle back to the primary image.
func RunBasicRevert(base *Images) (bool, error) {
	if !base.Caps.SwapUpgrade {
		return true, nil
	}

	for n := 2; n <= 4; n++ {
		im := base.Clone()
		if err := im.markUpgrade(areadesc.Image1); err != nil {
			return false, err
		}

		for i := 0; i < n; i++ {
			result, _ := im.runBoot(nil, false)
			if result != 0 {
				return false, util.FmtSimError("basic_revert(n=%d): boot %d returned %d", n, i, result)
			}
		}

		ok, err := im.slotBytesEqual(areadesc.Image0, im.Primary)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// RunPermWithFails interrupts a permanent upgrade at every possible flash
// op, resumes to completion, and checks the end state is identical
// regardless of where the interruption landed.
func RunPermWithFails(base *Images, totalCount int) (bool, error) {
	for i := 1; i < totalCount; i++ {
		im := base.Clone()
		if err := im.markUpgrade(areadesc.Image1); err != nil {
			return false, err
		}
		if err := im.markPermanent(areadesc.Image1); err != nil {
			return false, err
		}

		counter := &boot.Counter{Enabled: true, N: i}
		result, _ := im.runBoot(counter, false)
		if result != boot.Interrupted && result != 0 {
			return false, util.FmtSimError("perm_with_fails(i=%d): unexpected result %d", i, result)
		}

		result, _ = im.runBoot(nil, false)
		if result != 0 {
			return false, util.FmtSimError("perm_with_fails(i=%d): completion returned %d", i, result)
		}

		if ok, err := im.endStatePermanent(); err != nil {
			return false, err
		} else if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (im *Images) endStatePermanent() (bool, error) {
	ok, err := im.slotBytesEqual(areadesc.Image0, im.Upgrade)
	if err != nil || !ok {
		return false, err
	}
	ok, err = im.verifyTrailer(areadesc.Image0, magicValid, imageOk, copyDone)
	if err != nil || !ok {
		return false, err
	}
	ok, err = im.verifyTrailer(areadesc.Image1, magicUnset, unset, unset)
	if err != nil || !ok {
		return false, err
	}
	if im.Caps.SwapUpgrade {
		return im.slotBytesEqual(areadesc.Image1, im.Primary)
	}
	return true, nil
}

// RunPermWithRandomFails draws n stop-counts, each uniformly from
// [1, remaining/2) where remaining shrinks by the previous draw every
// iteration, applies each as a successive partial run, then runs to
// completion, and verifies the same end state as RunPermWithFails.
func RunPermWithRandomFails(base *Images, totalCount, n int) (bool, []int, error) {
	im := base.Clone()
	if err := im.markUpgrade(areadesc.Image1); err != nil {
		return false, nil, err
	}
	if err := im.markPermanent(areadesc.Image1); err != nil {
		return false, nil, err
	}

	remaining := totalCount
	stops := make([]int, n)
	for i := range stops {
		upper := remaining / 2
		if upper < 2 {
			upper = 2
		}
		stops[i] = 1 + rand.Intn(upper-1)

		counter := &boot.Counter{Enabled: true, N: stops[i]}
		im.runBoot(counter, false)

		remaining -= stops[i]
		if remaining < 1 {
			remaining = 1
		}
	}

	result, _ := im.runBoot(nil, false)
	if result != 0 {
		return false, stops, util.FmtSimError("perm_with_random_fails: completion returned %d", result)
	}

	ok, err := im.endStatePermanent()
	return ok, stops, err
}

// RunRevertWithFails interrupts an unconfirmed upgrade, resumes to
// complete that swap without ever marking it permanent, then issues a
// further boot to trigger and complete the revert, and checks the
// bootloader has reverted back to the primary image and confirmed it. The
// exact mid-interruption flash contents are algorithm-internal to
// whichever bootloader binding is under test, so this only checks the
// observable post-revert invariant, not a snapshot at every possible stop
// point.
func RunRevertWithFails(base *Images, totalCount int) (bool, error) {
	if !base.Caps.SwapUpgrade {
		return true, nil
	}

	for i := 1; i < totalCount-1; i++ {
		im := base.Clone()
		if err := im.markUpgrade(areadesc.Image1); err != nil {
			return false, err
		}

		counter := &boot.Counter{Enabled: true, N: i}
		im.runBoot(counter, false)

		result, _ := im.runBoot(nil, false)
		if result != 0 {
			return false, util.FmtSimError("revert_with_fails(i=%d): complete-swap boot returned %d", i, result)
		}

		result, _ = im.runBoot(nil, false)
		if result != 0 {
			return false, util.FmtSimError("revert_with_fails(i=%d): revert boot returned %d", i, result)
		}

		ok, err := im.slotBytesEqual(areadesc.Image0, im.Primary)
		if err != nil || !ok {
			return false, err
		}
		ok, err = im.verifyTrailer(areadesc.Image0, magicValid, imageOk, copyDone)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// RunNorevert runs one clean (unconfirmed) upgrade, then has the test
// itself mark slot0 permanent directly (not through the bootloader), and
// checks a second boot is a no-op that preserves the upgrade. After the
// first boot, which performs the swap, slot0's trailer is expected to read
// (MagicValid, unset, copy_done).
func RunNorevert(base *Images) (bool, error) {
	im := base.Clone()
	if err := im.markUpgrade(areadesc.Image1); err != nil {
		return false, err
	}

	result, _ := im.runBoot(nil, false)
	if result != 0 {
		return false, util.FmtSimError("norevert: first boot returned %d", result)
	}

	ok, err := im.slotBytesEqual(areadesc.Image0, im.Upgrade)
	if err != nil || !ok {
		return false, err
	}
	ok, err = im.verifyTrailer(areadesc.Image0, magicValid, unset, copyDone)
	if err != nil || !ok {
		return false, err
	}

	if err := im.markPermanent(areadesc.Image0); err != nil {
		return false, err
	}

	result, _ = im.runBoot(nil, false)
	if result != 0 {
		return false, util.FmtSimError("norevert: second boot returned %d", result)
	}

	ok, err = im.slotBytesEqual(areadesc.Image0, im.Upgrade)
	if err != nil || !ok {
		return false, err
	}
	return im.verifyTrailer(areadesc.Image0, magicValid, imageOk, copyDone)
}

// RunNorevertNewimage installs only slot0, marks slot0's own trailer with
// the upgrade magic (not slot1's), and confirms a boot leaves everything
// untouched: the bootloader only ever acts on slot1's pending-upgrade
// magic.
func RunNorevertNewimage(device string, align int, bootFn boot.Func, caps boot.Caps,
	tlvFactory func() image.TlvBuilder) (bool, error) {

	im, err := NewImages(device, align, bootFn, caps, tlvFactory, false, false)
	if err != nil {
		return false, err
	}

	if err := im.markUpgrade(areadesc.Image0); err != nil {
		return false, err
	}

	result, _ := im.runBoot(nil, false)
	if result != 0 {
		return false, util.FmtSimError("norevert_newimage: boot returned %d", result)
	}

	ok, err := im.slotBytesEqual(areadesc.Image0, im.Primary)
	if err != nil || !ok {
		return false, err
	}
	return im.verifyTrailer(areadesc.Image0, magicValid, unset, unset)
}

// RunSignfailUpgrade installs a bad_sig image into slot1, pre-confirms
// slot0 as already-permanent the way a previously-completed upgrade would
// leave it, marks slot1 pending, and checks the bootloader rejects the
// bad signature without touching flash.
func RunSignfailUpgrade(device string, align int, bootFn boot.Func, caps boot.Caps,
	tlvFactory func() image.TlvBuilder) (bool, error) {

	im, err := NewImages(device, align, bootFn, caps, tlvFactory, true, true)
	if err != nil {
		return false, err
	}

	if err := im.markUpgrade(areadesc.Image0); err != nil {
		return false, err
	}
	if err := im.markPermanent(areadesc.Image0); err != nil {
		return false, err
	}
	if err := im.markUpgrade(areadesc.Image1); err != nil {
		return false, err
	}

	result, _ := im.runBoot(nil, false)
	if result != 0 {
		return false, util.FmtSimError("signfail_upgrade: boot returned %d", result)
	}

	ok, err := im.slotBytesEqual(areadesc.Image0, im.Primary)
	if err != nil || !ok {
		return false, err
	}
	return im.verifyTrailer(areadesc.Image0, magicValid, imageOk, unset)
}

// RunWithStatusFailsComplete only applies when the binding validates
// slot0 post-swap. It covers slot1's trailer with a bad region at rate 1.0
// and checks a run still completes with zero caught asserts: the
// reference binding's trailer writes all go to slot0's trailer, and its
// swap writes into slot1 start at a sector base, so none of them lies
// wholly inside the region covered here.
func RunWithStatusFailsComplete(base *Images) (bool, error) {
	if !base.Caps.ValidateSlot0 {
		return true, nil
	}

	im := base.Clone()
	if err := im.markUpgrade(areadesc.Image1); err != nil {
		return false, err
	}
	if err := im.markPermanent(areadesc.Image1); err != nil {
		return false, err
	}

	slot1 := im.trailerOffset(areadesc.Image1)
	if err := im.Dev.AddBadRegion(slot1, boot.TrailerSize(boot.MaxAlign()), 1.0); err != nil {
		return false, err
	}

	_, asserts := im.runBoot(nil, true)
	if asserts != 0 {
		return false, util.FmtSimError("with_status_fails_complete: got %d asserts, want 0", asserts)
	}

	im.Dev.ResetBadRegions()
	result, _ := im.runBoot(nil, false)
	if result != 0 {
		return false, util.FmtSimError("with_status_fails_complete: follow-up boot returned %d", result)
	}
	return im.slotBytesEqual(areadesc.Image0, im.Upgrade)
}

// RunWithStatusFailsWithReset covers slot0's own trailer (the area every
// mark* call in this reference binding actually writes) at rate
// 1.0 and expects at least one caught assert, then the same at rate 0.5
// with write verification disabled, expecting at most one.
func RunWithStatusFailsWithReset(base *Images) (bool, error) {
	if !base.Caps.ValidateSlot0 {
		return true, nil
	}

	im := base.Clone()
	if err := im.markUpgrade(areadesc.Image1); err != nil {
		return false, err
	}
	if err := im.markPermanent(areadesc.Image1); err != nil {
		return false, err
	}

	slot0 := im.trailerOffset(areadesc.Image0)
	if err := im.Dev.AddBadRegion(slot0, boot.TrailerSize(boot.MaxAlign()), 1.0); err != nil {
		return false, err
	}

	_, asserts := im.runBoot(nil, true)
	if asserts < 1 {
		return false, util.FmtSimError("with_status_fails_with_reset: got %d asserts, want >=1", asserts)
	}

	im.Dev.ResetBadRegions()
	if err := im.Dev.AddBadRegion(slot0, boot.TrailerSize(boot.MaxAlign()), 0.5); err != nil {
		return false, err
	}
	im.Dev.SetVerifyWrites(false)

	_, asserts = im.runBoot(nil, true)
	if asserts > 1 {
		return false, util.FmtSimError("with_status_fails_with_reset: got %d asserts, want <=1", asserts)
	}
	return true, nil
}

// RunSingle drives every scenario for one (device, align, caps) binding
// and folds the results into status.
func RunSingle(device string, align int, bootFn boot.Func, caps boot.Caps, status *RunStatus) error {
	tlvFactory := func() image.TlvBuilder { return image.NewHashOnlyTlv() }

	base, err := NewImages(device, align, bootFn, caps, tlvFactory, true, false)
	if err != nil {
		return err
	}

	ok, totalCount, err := RunBasicUpgrade(base)
	status.record("basic_upgrade", ok, err)
	if err != nil || !ok || totalCount <= 0 {
		return nil
	}

	ok, err = RunBasicRevert(base)
	status.record("basic_revert", ok, err)

	ok, err = RunPermWithFails(base, totalCount)
	status.record("perm_with_fails", ok, err)

	ok, _, err = RunPermWithRandomFails(base, totalCount, 4)
	status.record("perm_with_random_fails", ok, err)

	ok, err = RunRevertWithFails(base, totalCount)
	status.record("revert_with_fails", ok, err)

	ok, err = RunNorevert(base)
	status.record("norevert", ok, err)

	ok, err = RunNorevertNewimage(device, align, bootFn, caps, tlvFactory)
	status.record("norevert_newimage", ok, err)

	ok, err = RunSignfailUpgrade(device, align, bootFn, caps, tlvFactory)
	status.record("signfail_upgrade", ok, err)

	ok, err = RunWithStatusFailsComplete(base)
	status.record("with_status_fails_complete", ok, err)

	ok, err = RunWithStatusFailsWithReset(base)
	status.record("with_status_fails_with_reset", ok, err)

	return nil
}
