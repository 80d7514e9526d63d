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

package iis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func parseAll(t *testing.T, src string) []*Entry {
	var entries []*Entry
	err := NewParser(nil).ParseReader(strings.NewReader(src), func(e *Entry) {
		entries = append(entries, e)
	})
	assert.NoError(t, err)
	return entries
}

func TestFieldsDirectiveDrivesDecoding(t *testing.T) {
	src := `#Software: Microsoft Internet Information Services 10.0
#Fields: date time c-ip cs-method cs-uri-stem sc-status cs(User-Agent)
2025-01-03 14:18:32 192.168.1.10 GET /api/tickets 200 "Mozilla/5.0 (Windows NT)"`
	entries := parseAll(t, src)
	assert.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "192.168.1.10", e.Fields["c_ip"])
	assert.Equal(t, "GET", e.Fields["cs_method"])
	assert.Equal(t, "200", e.Fields["sc_status"])
	assert.Equal(t, `"Mozilla/5.0 (Windows NT)"`, e.Fields["cs_User_Agent_"])
	assert.Equal(t, time.Date(2025, 1, 3, 14, 18, 32, 0, time.UTC), e.Time)
}

func TestShortLinePaddedLongLineTrimmed(t *testing.T) {
	src := `#Fields: date time c-ip sc-status
2025-01-03 14:18:32 192.168.1.10
2025-01-03 14:18:33 192.168.1.10 200 extra tokens here`
	entries := parseAll(t, src)
	assert.Len(t, entries, 2)
	assert.Equal(t, "-", entries[0].Fields["sc_status"])
	assert.Equal(t, "200", entries[1].Fields["sc_status"])
	assert.Len(t, entries[1].Fields, 4)
}

func TestTimeOnlyFieldsUseCarriedDate(t *testing.T) {
	src := `#Date: 2025-01-03 00:00:00
#Fields: time c-ip
14:18:32 192.168.1.10`
	entries := parseAll(t, src)
	assert.Len(t, entries, 1)
	assert.Equal(t, time.Date(2025, 1, 3, 14, 18, 32, 0, time.UTC), entries[0].Time)
}

func TestDateOnlyFieldsYieldMidnight(t *testing.T) {
	src := `#Fields: date c-ip
2025-01-03 192.168.1.10`
	entries := parseAll(t, src)
	assert.Len(t, entries, 1)
	assert.Equal(t, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), entries[0].Time)
}

func TestDataBeforeFieldsDirectiveSkipped(t *testing.T) {
	src := `2025-01-03 14:18:32 orphan line
#Fields: date time c-ip
2025-01-03 14:18:33 192.168.1.10`
	entries := parseAll(t, src)
	assert.Len(t, entries, 1)
	assert.Equal(t, "192.168.1.10", entries[0].Fields["c_ip"])
}

func TestFieldsDirectiveMayChangeMidFile(t *testing.T) {
	src := `#Fields: date time c-ip
2025-01-03 14:18:32 192.168.1.10
#Fields: date time sc-status
2025-01-03 14:18:33 500`
	entries := parseAll(t, src)
	assert.Len(t, entries, 2)
	assert.NotContains(t, entries[1].Fields, "c_ip")
	assert.Equal(t, "500", entries[1].Fields["sc_status"])
}

func TestEntryRowConversion(t *testing.T) {
	src := `#Fields: date time c-ip
2025-01-03 14:18:32 192.168.1.10`
	entries := parseAll(t, src)
	row := entries[0].Row("web.log")
	assert.Equal(t, "web.log", row.SourceFile)
	assert.True(t, row.HasTime())
	assert.False(t, row.IsTransaction)
}
