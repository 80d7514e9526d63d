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

package generic

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"poslogproc/aggregate"
	"poslogproc/dialect/prom"
	"poslogproc/record"
	"poslogproc/timestamp"
)

// vendor promotion-engine exports get a dedicated driver
var rePromFile = regexp.MustCompile(`^prom.*\.xml$`)

// sniffSize is how much of a file the XML-vs-line decision looks at
const sniffSize = 2048

// ParseFile parses a single log file against the shared aggregator,
// deciding the dialect from the file name and a content sniff:
//  1. prom*.xml files go to the vendor protocol driver; each touched
//     transaction is represented by one synthesized row,
//  2. content opening with an XML declaration or a known root fragment
//     is treated as a whole-file XML document,
//  3. everything else runs through the line driver.
//
// It returns the produced rows together with the earliest and latest
// row timestamp (zero when no row carried one).
func ParseFile(path string, tm *aggregate.TransactionMap) ([]record.Row, time.Time, time.Time, error) {
	sourceFile := filepath.Base(path)
	var rows []record.Row
	collect := func(row record.Row) {
		rows = append(rows, row)
	}

	if rePromFile.MatchString(strings.ToLower(sourceFile)) {
		log.Debug().Str("file", path).Msg("detected prom-xml file, using the vendor protocol driver")
		touched, err := prom.ParseFile(path, tm)
		if err != nil {
			return nil, time.Time{}, time.Time{}, err
		}
		for _, transID := range touched {
			tx := tm.Get(transID)
			if tx == nil {
				continue
			}
			collect(record.Row{
				RawLine:       fmt.Sprintf("[PROMFILE] TX=%s", transID),
				Time:          tx.TransactionTime,
				TransIDs:      []string{transID},
				SourceFile:    sourceFile,
				IsTransaction: true,
			})
		}

	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("failed to read log file: %w", err)
		}
		if sniffIsXMLDocument(data) {
			ParseBigXML(data, tm, sourceFile, collect)

		} else {
			if err := ParseLineBased(bytes.NewReader(data), tm, sourceFile, collect); err != nil {
				return nil, time.Time{}, time.Time{}, fmt.Errorf("failed to read log file: %w", err)
			}
		}
	}

	var minTS, maxTS time.Time
	for _, row := range rows {
		minTS = timestamp.Min(minTS, row.Time)
		maxTS = timestamp.Max(maxTS, row.Time)
	}
	return rows, minTS, maxTS, nil
}

func sniffIsXMLDocument(data []byte) bool {
	head := data
	if len(head) > sniffSize {
		head = head[:sniffSize]
	}
	chunk := string(head)
	return strings.HasPrefix(strings.TrimSpace(chunk), "<?xml") ||
		strings.Contains(chunk, "<Root") ||
		strings.Contains(chunk, "<Customer")
}

// ParseFiles runs several files against one shared aggregator so that
// transaction data scattered over multiple logs merges into single
// records. Files are processed sequentially in the given order; the
// context is consulted between files so a host application can cancel
// a long run (rows and transactions gathered so far stay valid). A
// file-level failure aborts the run and is returned to the caller.
func ParseFiles(ctx context.Context, paths []string, tm *aggregate.TransactionMap) ([]record.Row, time.Time, time.Time, error) {
	var allRows []record.Row
	var minTS, maxTS time.Time
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return allRows, minTS, maxTS, err
		}
		rows, fileMin, fileMax, err := ParseFile(path, tm)
		if err != nil {
			return allRows, minTS, maxTS, fmt.Errorf("failed to process %s: %w", path, err)
		}
		log.Info().
			Str("file", path).
			Int("numRows", len(rows)).
			Int("numTransactions", tm.Size()).
			Msg("processed log file")
		allRows = append(allRows, rows...)
		minTS = timestamp.Min(minTS, fileMin)
		maxTS = timestamp.Max(maxTS, fileMax)
	}
	return allRows, minTS, maxTS, nil
}
