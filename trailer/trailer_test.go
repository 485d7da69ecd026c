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

package trailer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcu-tools/bootsim/flashsim"
)

func freshDevice(t *testing.T, align int) (*flashsim.Device, int) {
	sectors := make([]int, 16)
	for i := range sectors {
		sectors[i] = 4096
	}
	fl := flashsim.New(sectors, align)
	require.NoError(t, fl.Erase(0, fl.DeviceSize()))
	return fl, 0
}

func TestReadErasedIsUnset(t *testing.T) {
	for _, align := range []int{1, 2, 4, 8} {
		fl, off := freshDevice(t, align)
		fields, err := Read(fl, off, align)
		require.NoError(t, err)
		require.Equal(t, MagicUnset, fields.Magic)
		require.Equal(t, Unset, fields.ImageOk)
		require.Equal(t, Unset, fields.CopyDone)
	}
}

func TestMarkUpgradeThenCopyDoneThenPermanent(t *testing.T) {
	for _, align := range []int{1, 2, 4, 8} {
		fl, off := freshDevice(t, align)

		require.NoError(t, MarkUpgrade(fl, off, align))
		fields, err := Read(fl, off, align)
		require.NoError(t, err)
		require.Equal(t, MagicValid, fields.Magic)
		require.Equal(t, Unset, fields.ImageOk)
		require.Equal(t, Unset, fields.CopyDone)

		require.NoError(t, MarkCopyDone(fl, off, align))
		fields, err = Read(fl, off, align)
		require.NoError(t, err)
		require.Equal(t, CopyDone, fields.CopyDone)

		require.NoError(t, MarkPermanentUpgrade(fl, off, align))
		fields, err = Read(fl, off, align)
		require.NoError(t, err)
		require.Equal(t, ImageOk, fields.ImageOk)
		require.Equal(t, MagicValid, fields.Magic, "marking image_ok must not disturb the magic field")
		require.Equal(t, CopyDone, fields.CopyDone, "marking image_ok must not disturb copy_done")
	}
}

func TestVerifyIgnoresNilFields(t *testing.T) {
	fl, off := freshDevice(t, 1)
	require.NoError(t, MarkUpgrade(fl, off, 1))

	ok, err := Verify(fl, off, 1, MagicValid, nil, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify(fl, off, 1, MagicUnset, nil, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSizeGrowsWithAlignment(t *testing.T) {
	require.Equal(t, 16+2, Size(1))
	require.Equal(t, 16+4, Size(2))
	require.Equal(t, 16+8, Size(4))
	require.Equal(t, 16+16, Size(8))
}
