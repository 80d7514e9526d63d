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

package evtx

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const sampleRecord = `<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event">
<System>
<Provider Name="POSTerminal" />
<EventID>1026</EventID>
<Level>2</Level>
<EventRecordID>55120</EventRecordID>
<Channel>Application</Channel>
<Computer>POS-STORE-01</Computer>
<TimeCreated SystemTime="2025-01-03T14:18:32.123456Z" />
</System>
<EventData>
<Data Name="Exception Type">System.NullReferenceException</Data>
<Data Name="AppName">posclient.exe</Data>
<Data></Data>
</EventData>
</Event>`

func TestParseRecord(t *testing.T) {
	event, err := ParseRecord(sampleRecord)
	assert.NoError(t, err)
	assert.Equal(t, "1026", event.EventID)
	assert.Equal(t, "55120", event.EventRecordID)
	assert.Equal(t, "2", event.Level)
	assert.Equal(t, "Application", event.Channel)
	assert.Equal(t, "POS-STORE-01", event.Computer)
	assert.Equal(t, "POSTerminal", event.Provider)
	assert.Equal(t, time.Date(2025, 1, 3, 14, 18, 32, 123456000, time.UTC), event.Time)
}

func TestDataNamesNormalized(t *testing.T) {
	event, err := ParseRecord(sampleRecord)
	assert.NoError(t, err)
	assert.Equal(t, "System.NullReferenceException", event.Data["Exception_Type"])
	assert.Equal(t, "posclient.exe", event.Data["AppName"])
	assert.Equal(t, "System.NullReferenceException | posclient.exe", event.Display)
}

func TestParseRecordWithoutEventData(t *testing.T) {
	event, err := ParseRecord(`<Event><System><EventID>7</EventID></System></Event>`)
	assert.NoError(t, err)
	assert.Equal(t, "7", event.EventID)
	assert.Empty(t, event.Data)
	assert.True(t, event.Time.IsZero())
}

type sliceProvider struct {
	records []string
	pos     int
}

func (p *sliceProvider) Next() (string, error) {
	if p.pos >= len(p.records) {
		return "", io.EOF
	}
	rec := p.records[p.pos]
	p.pos++
	return rec, nil
}

func TestParseRecordsSkipsBrokenRecords(t *testing.T) {
	provider := &sliceProvider{records: []string{
		sampleRecord,
		"",
		`<Event><System><EventID>8</EventID></System></Event>`,
	}}
	var events []*Event
	err := ParseRecords(provider, func(e *Event) {
		events = append(events, e)
	})
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "1026", events[0].EventID)
	assert.Equal(t, "8", events[1].EventID)
}

func TestEventRowConversion(t *testing.T) {
	event, err := ParseRecord(sampleRecord)
	assert.NoError(t, err)
	row := event.Row("system.evtx")
	assert.Equal(t, "2", row.LogLevel)
	assert.Equal(t, event.Display, row.RawLine)
	assert.True(t, row.HasTime())
}
