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

// Package prom implements the vendor promotion-engine protocol driver.
// A prom*.xml export is a concatenation of LPE request/response
// fragments appended to one file across process restarts - it carries
// repeated XML declarations and is not well-formed on its own. The
// driver wraps the cleaned content in a synthetic root, parses it
// leniently and feeds every LPE fragment through the vendor merge path
// of the shared aggregator.
package prom

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"poslogproc/aggregate"
	"poslogproc/timestamp"
	"poslogproc/xmlkit"
)

// ParseFile processes one vendor export against the shared aggregator
// and returns the IDs of the transactions the file touched, in
// first-touch order. A failure to parse the wrapped document is a
// hard, file-level error.
func ParseFile(path string, tm *aggregate.TransactionMap) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vendor export: %w", err)
	}
	return parseContent(xmlkit.Sanitize(string(data)), tm)
}

func parseContent(content string, tm *aggregate.TransactionMap) ([]string, error) {
	content = xmlkit.CleanDeclarations(content)
	wrapped := "<Logs>\n" + content + "\n</Logs>"
	root, err := xmlkit.ParseRecover(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wrapped vendor export: %w", err)
	}

	sessionTime := extractSessionTime(root)
	if sessionTime.IsZero() {
		log.Debug().Msg("no session timestamp could be extracted from the vendor export")

	} else {
		log.Debug().Time("sessionTime", sessionTime).Msg("extracted vendor session timestamp")
	}

	var touched []string
	touchedSet := make(map[string]bool)
	currentTicket := ""
	for _, lpe := range root.FindAll("LPE") {
		method := lpe.Attr("Method")
		currentTicket = tm.MergeXMLVendor(aggregate.MethodOf(method), lpe, currentTicket)
		if currentTicket == "" {
			continue
		}
		if !touchedSet[currentTicket] {
			touchedSet[currentTicket] = true
			touched = append(touched, currentTicket)
		}
		if !sessionTime.IsZero() {
			if tx := tm.Get(currentTicket); tx != nil {
				tx.SetTimeIfUnset(sessionTime)
			}
		}
	}
	return touched, nil
}

// extractSessionTime tries the three places a vendor export may state
// the session time, in order of reliability:
//  1. Session/StartTime with split Date ("28/01/25") and Time
//     ("10:07:02.292") attributes,
//  2. a Customer element's ISO StartDateTime attribute,
//  3. GeneralData with TransactionDate ("28/01/2025") and
//     TransactionTime ("10:07:01") attributes.
func extractSessionTime(root *xmlkit.Element) time.Time {
	for _, session := range root.FindAll("Session") {
		for _, st := range session.ChildrenByName("StartTime") {
			date, tod := st.Attr("Date"), st.Attr("Time")
			if date == "" || tod == "" {
				continue
			}
			if t := timestamp.Parse(date + " " + tod); !t.IsZero() {
				return t
			}
		}
	}
	if cust := root.Find("Customer"); cust != nil {
		if t := timestamp.Parse(cust.Attr("StartDateTime")); !t.IsZero() {
			return t
		}
	}
	if gd := root.Find("GeneralData"); gd != nil {
		date, tod := gd.Attr("TransactionDate"), gd.Attr("TransactionTime")
		if date != "" && tod != "" {
			if t := timestamp.Parse(date + " " + tod); !t.IsZero() {
				return t
			}
		}
	}
	return time.Time{}
}
