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

package refboot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcu-tools/bootsim/areadesc"
	"github.com/mcu-tools/bootsim/boot"
	"github.com/mcu-tools/bootsim/catalog"
	"github.com/mcu-tools/bootsim/flashsim"
	"github.com/mcu-tools/bootsim/image"
	"github.com/mcu-tools/bootsim/trailer"
)

const bodyLen = 32784

func buildFixture(t *testing.T, device string, align int) (*flashsim.Device, *areadesc.AreaDescriptor, []byte, []byte) {
	t.Helper()
	dev, ad, err := catalog.Build(device, align)
	require.NoError(t, err)

	slot0, _ := ad.Find(areadesc.Image0)
	primary, err := image.Install(dev, slot0.Base, bodyLen, false, image.NewHashOnlyTlv())
	require.NoError(t, err)

	slot1, _ := ad.Find(areadesc.Image1)
	upgrade, err := image.Install(dev, slot1.Base, bodyLen, false, image.NewHashOnlyTlv())
	require.NoError(t, err)

	return dev, ad, primary, upgrade
}

func slot1TrailerOffset(ad *areadesc.AreaDescriptor) int {
	scratch, _ := ad.Find(areadesc.Scratch)
	return scratch.Base - (boot.MagicSize() + boot.MaxAlign()*2)
}

func TestNoUpgradePendingIsNoop(t *testing.T) {
	dev, ad, primary, _ := buildFixture(t, "k64f", 8)

	caps := boot.Caps{SwapUpgrade: true, ValidateSlot0: true}
	bootFn := New(caps)

	counter := &boot.Counter{Enabled: true, N: 1 << 20}
	result, asserts := bootFn(dev, ad, counter, 8, false)
	require.Equal(t, 0, result)
	require.Zero(t, asserts)

	slot0, _ := ad.Find(areadesc.Image0)
	got := make([]byte, len(primary))
	require.NoError(t, dev.Read(slot0.Base, got))
	require.Equal(t, primary, got)
}

func TestUpgradeSwapsSlotsAndStampsTrailer(t *testing.T) {
	dev, ad, _, upgrade := buildFixture(t, "k64f", 8)

	caps := boot.Caps{SwapUpgrade: true, ValidateSlot0: true}
	bootFn := New(caps)

	trailerOff := slot1TrailerOffset(ad)
	require.NoError(t, trailer.MarkUpgrade(dev, trailerOff, boot.MaxAlign()))
	require.NoError(t, trailer.MarkPermanentUpgrade(dev, trailerOff, boot.MaxAlign()))

	counter := &boot.Counter{Enabled: true, N: 1 << 20}
	result, _ := bootFn(dev, ad, counter, 8, false)
	require.Equal(t, 0, result)

	slot0, _ := ad.Find(areadesc.Image0)
	got := make([]byte, len(upgrade))
	require.NoError(t, dev.Read(slot0.Base, got))
	require.Equal(t, upgrade, got)

	slot1, _ := ad.Find(areadesc.Image1)
	ok, err := trailer.Verify(dev, slot1.Base-(boot.MagicSize()+boot.MaxAlign()*2), boot.MaxAlign(),
		trailer.MagicValid, []byte{trailer.ImageOk}, []byte{trailer.CopyDone})
	require.NoError(t, err)
	require.True(t, ok, "slot0 trailer must read (MagicValid, image_ok, copy_done)")
}

func TestBadSignatureRejectsUpgrade(t *testing.T) {
	dev, ad, primary, _ := buildFixture(t, "k64f", 8)

	slot1, _ := ad.Find(areadesc.Image1)
	require.NoError(t, dev.Erase(slot1.Base, slot1.Size))
	_, err := image.Install(dev, slot1.Base, bodyLen, true, image.NewHashOnlyTlv())
	require.NoError(t, err)

	trailerOff := slot1TrailerOffset(ad)
	require.NoError(t, trailer.MarkUpgrade(dev, trailerOff, boot.MaxAlign()))

	caps := boot.Caps{SwapUpgrade: true, ValidateSlot0: true}
	bootFn := New(caps)

	counter := &boot.Counter{Enabled: true, N: 1 << 20}
	result, _ := bootFn(dev, ad, counter, 8, false)
	require.Equal(t, 0, result)

	slot0, _ := ad.Find(areadesc.Image0)
	got := make([]byte, len(primary))
	require.NoError(t, dev.Read(slot0.Base, got))
	require.Equal(t, primary, got, "a bad signature must leave slot0 untouched")
}
