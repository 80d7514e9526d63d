// Copyright 2025 Petr Havelka <petr.havelka.dev@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseISOWithT(t *testing.T) {
	v := Parse("2025-01-03T14:18:32")
	assert.Equal(t, time.Date(2025, 1, 3, 14, 18, 32, 0, time.UTC), v)
}

func TestParseISOWithTAndFraction(t *testing.T) {
	v := Parse("2025-01-03T14:18:32.399")
	assert.Equal(t, time.Date(2025, 1, 3, 14, 18, 32, 399000000, time.UTC), v)
}

func TestParseISOSpaceCommaFraction(t *testing.T) {
	v := Parse("2025-01-03 14:18:32,399")
	assert.Equal(t, time.Date(2025, 1, 3, 14, 18, 32, 399000000, time.UTC), v)
}

func TestParseShortYearSlashed(t *testing.T) {
	v := Parse("28/01/25 10:07:02.292")
	assert.Equal(t, time.Date(2025, 1, 28, 10, 7, 2, 292000000, time.UTC), v)
}

func TestParseLongYearSlashed(t *testing.T) {
	v := Parse("28/01/2025 10:07:01")
	assert.Equal(t, time.Date(2025, 1, 28, 10, 7, 1, 0, time.UTC), v)
}

func TestParseSurroundingWhitespace(t *testing.T) {
	v := Parse("  2025-01-03T14:18:32  ")
	assert.False(t, v.IsZero())
}

func TestParseGarbageIsZero(t *testing.T) {
	assert.True(t, Parse("not a date").IsZero())
	assert.True(t, Parse("").IsZero())
	assert.True(t, Parse("2025-13-45 99:99:99").IsZero())
}

func TestEpochSeconds(t *testing.T) {
	v, ok := EpochSeconds(time.Date(2025, 1, 3, 14, 18, 32, 500000000, time.UTC))
	assert.True(t, ok)
	assert.InDelta(t, 1735913912.5, v, 0.001)

	_, ok = EpochSeconds(time.Time{})
	assert.False(t, ok)
}

func TestMinMaxIgnoreZero(t *testing.T) {
	a := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	b := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, b, Max(a, b))
	assert.Equal(t, a, Min(time.Time{}, a))
	assert.Equal(t, a, Max(a, time.Time{}))
	assert.True(t, Min(time.Time{}, time.Time{}).IsZero())
}
