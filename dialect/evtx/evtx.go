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

// Package evtx turns Windows event log records into rows. The binary
// EVTX decoding itself is out of scope - a collaborator hands over the
// per-record XML documents and this package only interprets them.
package evtx

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"poslogproc/record"
	"poslogproc/timestamp"
	"poslogproc/xmlkit"
)

// RecordProvider yields the XML rendering of consecutive event log
// records. Next returns io.EOF once the source is exhausted.
type RecordProvider interface {
	Next() (string, error)
}

// Event is one decoded Windows event record.
type Event struct {
	EventID       string
	EventRecordID string
	Time          time.Time
	Provider      string
	Level         string
	Channel       string
	Computer      string
	Data          map[string]string
	Display       string
	RawXML        string
}

var reDataName = regexp.MustCompile(`\W+`)

// Row converts the event to the common row shape; the display text
// stands in for a raw log line.
func (e *Event) Row(sourceFile string) record.Row {
	raw := e.Display
	if raw == "" {
		raw = e.RawXML
	}
	return record.Row{
		RawLine:    raw,
		Time:       e.Time,
		LogLevel:   e.Level,
		SourceFile: sourceFile,
	}
}

// ParseRecord decodes a single event record XML document.
func ParseRecord(xmlStr string) (*Event, error) {
	root, err := xmlkit.ParseRecover(xmlkit.Sanitize(xmlStr))
	if err != nil {
		return nil, fmt.Errorf("failed to decode event record: %w", err)
	}
	event := &Event{
		Data:   make(map[string]string),
		RawXML: xmlStr,
	}
	if system := root.Find("System"); system != nil {
		event.EventID = system.FindText("EventID", "")
		event.EventRecordID = system.FindText("EventRecordID", "")
		event.Level = system.FindText("Level", "")
		event.Channel = system.FindText("Channel", "")
		event.Computer = system.FindText("Computer", "")
		if provider := system.Find("Provider"); provider != nil {
			event.Provider = provider.Attr("Name")
		}
		if created := system.Find("TimeCreated"); created != nil {
			event.Time = parseSystemTime(created.Attr("SystemTime"))
		}
	}
	var display []string
	if eventData := root.Find("EventData"); eventData != nil {
		for i, data := range eventData.ChildrenByName("Data") {
			value := strings.TrimSpace(data.InnerText())
			name := data.Attr("Name")
			if name == "" {
				name = fmt.Sprintf("data_%d", i)

			} else {
				name = reDataName.ReplaceAllString(name, "_")
			}
			event.Data[name] = value
			if value != "" {
				display = append(display, value)
			}
		}
	}
	event.Display = strings.Join(display, " | ")
	return event, nil
}

// ParseRecords drains the provider, passing each decodable record to
// emit. A record that fails to decode is reported and skipped; a
// provider error other than io.EOF aborts the run.
func ParseRecords(provider RecordProvider, emit func(*Event)) error {
	for {
		xmlStr, err := provider.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("event record provider failed: %w", err)
		}
		event, err := ParseRecord(xmlStr)
		if err != nil {
			log.Warn().Err(err).Msg("skipping undecodable event record")
			continue
		}
		emit(event)
	}
}

// parseSystemTime decodes the SystemTime attribute
// (e.g. 2025-01-03T14:18:32.123456Z); sub-second precision and the
// zone suffix are optional.
func parseSystemTime(v string) time.Time {
	v = strings.TrimSpace(strings.TrimSuffix(v, "Z"))
	if v == "" {
		return time.Time{}
	}
	return timestamp.Parse(v)
}
