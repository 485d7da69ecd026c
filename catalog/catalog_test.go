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

package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcu-tools/bootsim/areadesc"
)

func TestBuildKnownPresets(t *testing.T) {
	for _, name := range AllDevices {
		for _, align := range AllAligns {
			dev, ad, err := Build(name, align)
			require.NoError(t, err, "%s align=%d", name, align)
			require.NotNil(t, dev)

			for _, id := range []areadesc.FlashId{areadesc.Image0, areadesc.Image1, areadesc.Scratch} {
				_, ok := ad.Find(id)
				require.True(t, ok, "%s align=%d missing area %v", name, align, id)
			}
		}
	}
}

func TestBuildUnknownPreset(t *testing.T) {
	_, _, err := Build("does-not-exist", 1)
	require.Error(t, err)
}

func TestPresetSectorsSumMatchesDeviceSize(t *testing.T) {
	for name, preset := range Presets() {
		total := 0
		for _, s := range preset.Sectors {
			total += s
		}
		dev, _, err := Build(name, 1)
		require.NoError(t, err)
		require.Equal(t, total, dev.DeviceSize(), "preset %s", name)
	}
}

func TestParseSize(t *testing.T) {
	cases := map[string]int{
		"1024":  1024,
		"16Kb":  16 * 1024,
		"16kb":  16 * 1024,
		"16K":   16 * 1024,
		"2Mb":   2 * 1024 * 1024,
		"128Kb": 128 * 1024,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	_, err := ParseSize("not-a-size")
	require.Error(t, err)
}
