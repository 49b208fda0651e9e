// Copyright 2024-2025 The h1client Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package attribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValues(t *testing.T) {
	t.Parallel()
	tenant := NewKey[string]()
	weight := NewKey[int]()

	values := NewValues(tenant.Value("acme"), weight.Value(7))
	got, ok := GetValue(values, tenant)
	require.True(t, ok)
	assert.Equal(t, "acme", got)
	n, ok := GetValue(values, weight)
	require.True(t, ok)
	assert.Equal(t, 7, n)

	missing := NewKey[string]()
	s, ok := GetValue(values, missing)
	assert.False(t, ok)
	assert.Empty(t, s)
}

func TestValuesZero(t *testing.T) {
	t.Parallel()
	var values Values
	key := NewKey[string]()
	s, ok := GetValue(values, key)
	assert.False(t, ok)
	assert.Empty(t, s)
}

func TestValuesWith(t *testing.T) {
	t.Parallel()
	tenant := NewKey[string]()
	region := NewKey[string]()

	base := NewValues(tenant.Value("acme"))
	extended := base.With(region.Value("eu-west"), tenant.Value("globex"))

	got, ok := GetValue(extended, tenant)
	require.True(t, ok)
	assert.Equal(t, "globex", got)
	got, ok = GetValue(extended, region)
	require.True(t, ok)
	assert.Equal(t, "eu-west", got)

	// The original collection is unchanged.
	got, ok = GetValue(base, tenant)
	require.True(t, ok)
	assert.Equal(t, "acme", got)
	_, ok = GetValue(base, region)
	assert.False(t, ok)
}

func TestKeysAreDistinct(t *testing.T) {
	t.Parallel()
	first := NewKey[string]()
	second := NewKey[string]()
	values := NewValues(first.Value("one"), second.Value("two"))
	a, _ := GetValue(values, first)
	b, _ := GetValue(values, second)
	assert.Equal(t, "one", a)
	assert.Equal(t, "two", b)
}
