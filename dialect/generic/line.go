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

// Package generic implements the default POS log dialect: line-based
// application logs with embedded XML fragments, whole-file XML
// transaction documents and the detection logic routing between them
// (including handing prom*.xml files to the vendor protocol driver).
package generic

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"poslogproc/aggregate"
	"poslogproc/record"
	"poslogproc/timestamp"
	"poslogproc/xmlkit"
)

// The three line grammars, in priority order.
//
// bracket:   [2025-01-03 14:18:32,399] [0x000018ec] [DEBUG] [LpeComm] - [payload]
// converter: 2025-01-29 02:14:53,261 DEBUG [ctx] [27] LPE PromSrvClient.Send - payload
// iso:       2025-02-11 18:24:51,061 - MainWindow - INFO - payload
var (
	reBracketLine = regexp.MustCompile(
		`^\[(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2},\d{3})\]\s+\[0x[a-fA-F0-9]+\]\s+\[([A-Za-z]+)\]\s+\[(.*?)\]\s+-\s+\[(.*)\]$`)
	reConverterLine = regexp.MustCompile(
		`^(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2},\d{3})\s+([A-Z]+)\s+\[([^\]]+)\]\s+\[([^\]]+)\]\s+(\S+)\s+(\S+)\s+-\s+(.*)$`)
	reISOLine = regexp.MustCompile(
		`^(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2},\d{3})\s*-\s*(.*?)\s*-\s*([A-Z]+)\s*-\s*(.*)$`)

	// echoed promotion-engine queries flood the logs with large
	// payloads already captured through the vendor driver
	reLPEQuery         = regexp.MustCompile(`(?i)<LPE\s+Method="Query`)
	reLPEQueryResponse = regexp.MustCompile(`(?i)<LPE\s+Method="Query\(Response\)`)

	reCDATA   = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	reXMLDecl = regexp.MustCompile(`(?s)<\?xml\s+.*?\?>`)
)

// ParseLineBased processes a line-oriented log. Recognized lines get a
// timestamp and log level; whole lines are merged into the aggregator
// through the text-pattern harvest and any embedded XML fragment is
// interpreted in place (accumulating physical lines while a CDATA
// section remains open). Untagged lines that look like XML inherit the
// last seen timestamp.
func ParseLineBased(reader io.Reader, tm *aggregate.TransactionMap, sourceFile string, emit func(record.Row)) error {
	sc := bufio.NewScanner(reader)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var lastTS time.Time
	for sc.Scan() {
		line := xmlkit.Sanitize(sc.Text())

		if reLPEQuery.MatchString(line) || reLPEQueryResponse.MatchString(line) {
			continue
		}

		if m := reBracketLine.FindStringSubmatch(line); m != nil {
			lastTS = emitTagged(line, m[1], m[2], m[4], &lastTS, sc, tm, sourceFile, emit)
			continue
		}
		if m := reConverterLine.FindStringSubmatch(line); m != nil {
			lastTS = emitTagged(line, m[1], m[2], m[7], &lastTS, sc, tm, sourceFile, emit)
			continue
		}
		if m := reISOLine.FindStringSubmatch(line); m != nil {
			lastTS = emitTagged(line, m[1], m[3], m[4], &lastTS, sc, tm, sourceFile, emit)
			continue
		}

		// untagged fallback
		tm.MergeText(line)
		var rowTime time.Time
		containsXML := false
		if strings.HasPrefix(strings.TrimSpace(line), "<") && !lastTS.IsZero() {
			rowTime = lastTS
			containsXML = true
		}
		processInlineXML(line, sc, tm, sourceFile)
		emit(record.Row{
			RawLine:       line,
			Time:          rowTime,
			SourceFile:    sourceFile,
			IsTransaction: containsXML,
		})
	}
	return sc.Err()
}

func emitTagged(
	line, tsStr, level, message string,
	lastTS *time.Time,
	sc *bufio.Scanner,
	tm *aggregate.TransactionMap,
	sourceFile string,
	emit func(record.Row),
) time.Time {
	rowTime := timestamp.Parse(tsStr)
	if rowTime.IsZero() {
		rowTime = *lastTS
	}
	containsXML := looksLikeXML(message)
	tm.MergeText(line)
	processInlineXML(message, sc, tm, sourceFile)
	emit(record.Row{
		RawLine:       line,
		Time:          rowTime,
		LogLevel:      level,
		SourceFile:    sourceFile,
		IsTransaction: containsXML,
	})
	return rowTime
}

func looksLikeXML(message string) bool {
	return strings.Contains(message, "<?xml") ||
		strings.HasPrefix(strings.TrimSpace(message), "<")
}

// processInlineXML interprets an XML fragment embedded in a log
// message. When a CDATA section opens without closing on the same
// line, subsequent physical lines are pulled from the scanner until
// the terminator shows up - those lines belong to the fragment and are
// not reported as rows of their own.
func processInlineXML(fragment string, sc *bufio.Scanner, tm *aggregate.TransactionMap, sourceFile string) {
	if !looksLikeXML(fragment) {
		return
	}
	if strings.Contains(fragment, "<![CDATA[") && !strings.Contains(fragment, "]]>") {
		for sc.Scan() {
			next := sc.Text()
			fragment += "\n" + next
			if strings.Contains(next, "]]>") {
				break
			}
		}
	}
	fragment = strings.TrimSpace(reCDATA.ReplaceAllString(fragment, "$1"))
	root, err := xmlkit.Parse(fragment)
	if err != nil {
		log.Debug().Err(err).Str("sourceFile", sourceFile).Msg("failed to interpret inline XML fragment")
		return
	}
	ParseDocument(root, tm, sourceFile)
}
