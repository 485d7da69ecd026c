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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcu-tools/bootsim/flashsim"
)

func TestSplatDeterministic(t *testing.T) {
	a := make([]byte, 32784)
	b := make([]byte, 32784)
	Splat(a, 0x20000)
	Splat(b, 0x20000)
	require.Equal(t, a, b, "splat must be reproducible for identical (len, offset)")
}

func TestSplatVariesWithOffset(t *testing.T) {
	a := make([]byte, 64)
	b := make([]byte, 64)
	Splat(a, 0)
	Splat(b, 4096)
	require.NotEqual(t, a, b)
}

func TestInstallDeterministic(t *testing.T) {
	sectors := make([]int, 16)
	for i := range sectors {
		sectors[i] = 4096
	}

	fl1 := flashsim.New(sectors, 1)
	require.NoError(t, fl1.Erase(0, fl1.DeviceSize()))
	got1, err := Install(fl1, 0, 4096-HeaderSize-32, false, NewHashOnlyTlv())
	require.NoError(t, err)

	fl2 := flashsim.New(sectors, 1)
	require.NoError(t, fl2.Erase(0, fl2.DeviceSize()))
	got2, err := Install(fl2, 0, 4096-HeaderSize-32, false, NewHashOnlyTlv())
	require.NoError(t, err)

	require.Equal(t, got1, got2)
}
