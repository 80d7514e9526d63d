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

package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"poslogproc/record"
)

func TestFindBurstsSeparatesDistantGroups(t *testing.T) {
	base := time.Date(2025, 1, 3, 14, 0, 0, 0, time.UTC)
	var timestamps []time.Time
	// burst one: five rows within 4 seconds
	for i := 0; i < 5; i++ {
		timestamps = append(timestamps, base.Add(time.Duration(i)*time.Second))
	}
	// burst two: five rows an hour later
	for i := 0; i < 5; i++ {
		timestamps = append(timestamps, base.Add(time.Hour).Add(time.Duration(i)*time.Second))
	}
	bursts := FindBursts(timestamps, 3, 10*time.Second)
	assert.Len(t, bursts, 2)
	assert.Equal(t, base, bursts[0].Start)
	assert.Equal(t, 5, bursts[0].Size)
	assert.Equal(t, base.Add(time.Hour), bursts[1].Start)
	assert.Equal(t, 4*time.Second, bursts[0].Duration())
}

func TestFindBurstsIgnoresZeroTimes(t *testing.T) {
	bursts := FindBursts([]time.Time{{}, {}}, 1, time.Second)
	assert.Empty(t, bursts)
}

func TestSummarize(t *testing.T) {
	base := time.Date(2025, 1, 3, 14, 0, 0, 0, time.UTC)
	rows := []record.Row{
		{RawLine: "a", Time: base.Add(time.Minute), LogLevel: "DEBUG"},
		{RawLine: "b", Time: base, LogLevel: "ERROR"},
		{RawLine: "c", LogLevel: "DEBUG"},
		{RawLine: "d"},
	}
	sum := Summarize(rows, 7)
	assert.Equal(t, 4, sum.NumRows)
	assert.Equal(t, 7, sum.NumTransactions)
	assert.Equal(t, base, sum.FirstTime)
	assert.Equal(t, base.Add(time.Minute), sum.LastTime)
	assert.Equal(t, 2, sum.LevelCounts["DEBUG"])
	assert.Equal(t, 1, sum.LevelCounts["ERROR"])
}

func TestRowTimes(t *testing.T) {
	base := time.Date(2025, 1, 3, 14, 0, 0, 0, time.UTC)
	rows := []record.Row{
		{Time: base},
		{},
		{Time: base.Add(time.Second)},
	}
	assert.Len(t, RowTimes(rows), 2)
}
