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

package areadesc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcu-tools/bootsim/flashsim"
)

func uniformDevice(count, size int) *flashsim.Device {
	sectors := make([]int, count)
	for i := range sectors {
		sectors[i] = size
	}
	return flashsim.New(sectors, 1)
}

func TestAddImageRequiresSectorBoundary(t *testing.T) {
	dev := uniformDevice(16, 4096)
	ad := New()

	require.NoError(t, ad.AddImage(dev, 0, 4096*4, Image0))
	err := ad.AddImage(dev, 100, 4096*4, Image1)
	require.Error(t, err)
	require.True(t, err != nil)
}

func TestAddImageAndFind(t *testing.T) {
	dev := uniformDevice(16, 4096)
	ad := New()
	require.NoError(t, ad.AddImage(dev, 0, 4096*4, Image0))
	require.NoError(t, ad.AddImage(dev, 4096*4, 4096*4, Image1))

	a, ok := ad.Find(Image0)
	require.True(t, ok)
	require.Equal(t, Area{Base: 0, Size: 4096 * 4}, a)

	_, ok = ad.Find(Scratch)
	require.False(t, ok)
}

func TestValidateDetectsOverlap(t *testing.T) {
	ad := New()
	ad.AddSimpleImage(0, 100, Image0)
	ad.AddSimpleImage(50, 100, Image1)
	require.Error(t, ad.Validate())
}

func TestValidateAcceptsAdjacentAreas(t *testing.T) {
	ad := New()
	ad.AddSimpleImage(0, 100, Image0)
	ad.AddSimpleImage(100, 100, Image1)
	require.NoError(t, ad.Validate())
}

func TestCloneIsIndependent(t *testing.T) {
	ad := New()
	ad.AddSimpleImage(0, 100, Image0)

	clone := ad.Clone()
	clone.AddSimpleImage(100, 100, Image1)

	_, ok := ad.Find(Image1)
	require.False(t, ok, "mutating the clone must not affect the original")

	_, ok = clone.Find(Image1)
	require.True(t, ok)
}

func TestFlashIdString(t *testing.T) {
	require.Equal(t, "Image0", Image0.String())
	require.Equal(t, "Image1", Image1.String())
	require.Equal(t, "Scratch", Scratch.String())
}
