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

package harness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcu-tools/bootsim/boot"
	"github.com/mcu-tools/bootsim/boot/refboot"
	"github.com/mcu-tools/bootsim/image"
)

func TestRunSingleSwapCapable(t *testing.T) {
	caps := boot.Caps{SwapUpgrade: true, ValidateSlot0: true}
	bootFn := refboot.New(caps)

	for _, device := range []string{"stm32f4", "k64f", "k64fbig", "nrf52840"} {
		for _, align := range []int{1, 2, 4, 8} {
			status := &RunStatus{}
			err := RunSingle(device, align, bootFn, caps, status)
			require.NoError(t, err, "%s align=%d", device, align)
			require.Zero(t, status.Failures, "%s align=%d: %+v", device, align, status)
			require.NotZero(t, status.Passes, "%s align=%d", device, align)
		}
	}
}

func TestRunSingleOverwriteOnly(t *testing.T) {
	caps := boot.Caps{SwapUpgrade: false, ValidateSlot0: false}
	bootFn := refboot.New(caps)

	status := &RunStatus{}
	err := RunSingle("k64f", 8, bootFn, caps, status)
	require.NoError(t, err)
	require.Zero(t, status.Failures, "%+v", status)
}

func TestRunBasicUpgradeReportsTotalCount(t *testing.T) {
	caps := boot.Caps{SwapUpgrade: true, ValidateSlot0: true}
	bootFn := refboot.New(caps)

	base, err := NewImages("k64f", 8, bootFn, caps,
		func() image.TlvBuilder { return image.NewHashOnlyTlv() }, true, false)
	require.NoError(t, err)

	ok, totalCount, err := RunBasicUpgrade(base)
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, totalCount, 0)
}
