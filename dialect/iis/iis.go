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

// Package iis parses IIS W3C extended log files. The field set is
// driven by the `#Fields:` directive, so the parser makes no
// assumptions about which columns a site logs; a `#Date:` directive is
// remembered so time-only field sets still get a full timestamp.
package iis

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"poslogproc/record"
	"poslogproc/timestamp"
)

var (
	// tokens are whitespace-separated, but quoted values (user agents,
	// referers) may contain spaces
	reToken     = regexp.MustCompile(`(?:"[^"]*"|\S)+`)
	reFieldChar = regexp.MustCompile(`[-()]`)
)

// Entry is one decoded IIS log line. Fields holds the values keyed by
// the normalized field names from the `#Fields:` directive (`c-ip` =>
// `c_ip`, `cs(User-Agent)` => `cs_User_Agent_`).
type Entry struct {
	Fields  map[string]string
	Time    time.Time
	RawLine string
	Country string
}

// Row converts the entry to the common row shape shared by all
// dialects (IIS lines never carry transaction data).
func (e *Entry) Row(sourceFile string) record.Row {
	return record.Row{
		RawLine:    e.RawLine,
		Time:       e.Time,
		SourceFile: sourceFile,
	}
}

// Parser decodes IIS logs. When constructed with a GeoIP database, the
// client IP of each line (`c-ip`) is resolved to a country name.
type Parser struct {
	geoDB *geoip2.Reader
}

// NewParser creates an IIS log parser; geoDB may be nil in which case
// no location enrichment is performed.
func NewParser(geoDB *geoip2.Reader) *Parser {
	return &Parser{geoDB: geoDB}
}

// ParseFile decodes a whole IIS log file.
func (p *Parser) ParseFile(path string) ([]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open IIS log: %w", err)
	}
	defer f.Close()
	var entries []*Entry
	err = p.ParseReader(f, func(e *Entry) {
		entries = append(entries, e)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process IIS log %s: %w", path, err)
	}
	return entries, nil
}

// ParseReader decodes IIS log lines from reader and passes each entry
// to emit. Directive lines (`#...`) update parser state and produce no
// entries; data lines arriving before any `#Fields:` directive are
// skipped.
func (p *Parser) ParseReader(reader io.Reader, emit func(*Entry)) error {
	sc := bufio.NewScanner(reader)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var fields []string
	carriedDate := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "#Fields:") {
				fields = parseFieldsDirective(line)

			} else if strings.HasPrefix(line, "#Date:") {
				parts := strings.Fields(strings.TrimPrefix(line, "#Date:"))
				if len(parts) > 0 {
					carriedDate = parts[0]
				}
			}
			continue
		}
		if len(fields) == 0 {
			log.Debug().Msg("skipping IIS data line arriving before a #Fields directive")
			continue
		}
		emit(p.decodeLine(line, fields, carriedDate))
	}
	return sc.Err()
}

func parseFieldsDirective(line string) []string {
	raw := strings.Fields(strings.TrimPrefix(line, "#Fields:"))
	fields := make([]string, len(raw))
	for i, f := range raw {
		fields[i] = reFieldChar.ReplaceAllString(f, "_")
	}
	return fields
}

func (p *Parser) decodeLine(line string, fields []string, carriedDate string) *Entry {
	tokens := reToken.FindAllString(line, -1)
	for len(tokens) < len(fields) {
		tokens = append(tokens, "-")
	}
	tokens = tokens[:len(fields)]

	values := make(map[string]string, len(fields))
	for i, name := range fields {
		values[name] = tokens[i]
	}
	entry := &Entry{
		Fields:  values,
		Time:    combineTimestamp(values, carriedDate),
		RawLine: line,
	}
	if p.geoDB != nil {
		p.applyLocation(entry)
	}
	return entry
}

// combineTimestamp builds the line timestamp from the date/time
// columns: both present is the regular case; a time-only field set
// borrows the date from the last `#Date:` directive (today when none
// was seen yet); a date-only field set yields a midnight timestamp.
func combineTimestamp(values map[string]string, carriedDate string) time.Time {
	date, hasDate := values["date"]
	tod, hasTime := values["time"]
	switch {
	case hasDate && hasTime:
		return timestamp.Parse(date + " " + tod)
	case hasTime:
		if carriedDate == "" {
			carriedDate = time.Now().Format("2006-01-02")
		}
		return timestamp.Parse(carriedDate + " " + tod)
	case hasDate:
		if t, err := time.Parse("2006-01-02", date); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (p *Parser) applyLocation(entry *Entry) {
	raw := entry.Fields["c_ip"]
	if raw == "" || raw == "-" {
		return
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return
	}
	city, err := p.geoDB.City(ip)
	if err != nil {
		log.Error().Err(err).Msgf("Failed to fetch GeoIP data for IP %s.", ip.String())
		return
	}
	entry.Country = city.Country.Names["en"]
}
