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

package aggregate

import (
	"regexp"
	"strconv"
	"strings"

	"poslogproc/timestamp"
	"poslogproc/xmlkit"
)

// Aggregator is the merge surface the dialect drivers write into.
type Aggregator interface {
	Init(transID string)
	Get(transID string) *Transaction
	MergeText(text string)
	MergeXML(method Method, elm *xmlkit.Element, currentTx string) string
}

var (
	reTransID = regexp.MustCompile(`(?i)\b(?:TransID|TransactionNumber|TicketNumber)\s*=\s*"([^"]+)"`)
	reCardID  = regexp.MustCompile(`(?i)\bCardID\s*=\s*"([^"]+)"`)
	rePhone   = regexp.MustCompile(`(?i)\bName="(?:MobilePhoneNumber|HomePhone)"\s+Value="(\d+)"`)
	reFirst   = regexp.MustCompile(`(?i)\bFirstName\s*=\s*"([^"]+)"`)
	reLast    = regexp.MustCompile(`(?i)\bLastName\s*=\s*"([^"]+)"`)
	rePromo   = regexp.MustCompile(`(?i)\b(?:Promotion\s+ID|PromNumber|PromotionID)="?(\d+)"?`)

	reItemBlock = regexp.MustCompile(`(?i)<ItemInfo\s+([^>]+)>`)
	reAttr      = regexp.MustCompile(`(\w+)\s*=\s*"([^"]+)"`)

	reStartDateTime = regexp.MustCompile(`StartDateTime="([^"]+)"`)
	reEndDateTime   = regexp.MustCompile(`EndDateTime="([^"]+)"`)
	reBusinessDate  = regexp.MustCompile(`BusinessDate="([^"]+)"`)
)

// TransactionMap is the default Aggregator implementation: a map of
// transactions keyed by ID, with insertion order preserved for
// deterministic output. It is not safe for concurrent use; one run is
// single-threaded by design.
type TransactionMap struct {
	items map[string]*Transaction
	order []string
}

// NewTransactionMap creates an empty aggregator.
func NewTransactionMap() *TransactionMap {
	return &TransactionMap{items: make(map[string]*Transaction)}
}

// Init makes sure a transaction with the given ID exists. Calling it
// repeatedly for the same ID is a no-op.
func (tm *TransactionMap) Init(transID string) {
	if _, ok := tm.items[transID]; ok {
		return
	}
	tm.items[transID] = newTransaction(transID)
	tm.order = append(tm.order, transID)
}

// Get returns the transaction with the given ID or nil.
func (tm *TransactionMap) Get(transID string) *Transaction {
	return tm.items[transID]
}

// Has tests for the presence of a transaction.
func (tm *TransactionMap) Has(transID string) bool {
	_, ok := tm.items[transID]
	return ok
}

// Size returns the number of known transactions.
func (tm *TransactionMap) Size() int {
	return len(tm.items)
}

// IDs returns transaction IDs in insertion order.
func (tm *TransactionMap) IDs() []string {
	ans := make([]string, len(tm.order))
	copy(ans, tm.order)
	return ans
}

// All returns the transactions in insertion order.
func (tm *TransactionMap) All() []*Transaction {
	ans := make([]*Transaction, 0, len(tm.order))
	for _, id := range tm.order {
		ans = append(ans, tm.items[id])
	}
	return ans
}

// MergeText scans a whole line (or re-serialized XML fragment) for the
// known attribute patterns and merges what it finds into every
// transaction the text mentions. Scalar fields follow first-non-empty
// semantics; first/last name take the LAST match within the block
// (later occurrences carry the loyalty member identity, earlier ones
// often belong to clerk records).
func (tm *TransactionMap) MergeText(text string) {
	ids := uniqueMatches(reTransID, text)
	if len(ids) == 0 {
		return
	}
	for _, transID := range ids {
		tm.Init(transID)
		rec := tm.items[transID]

		for _, c := range allGroups(reCardID, text) {
			setIfEmpty(&rec.CardID, c)
		}
		firsts := allGroups(reFirst, text)
		lasts := allGroups(reLast, text)
		if len(firsts) > 0 {
			setIfEmpty(&rec.FirstName, firsts[len(firsts)-1])
		}
		if len(lasts) > 0 {
			setIfEmpty(&rec.LastName, lasts[len(lasts)-1])
		}
		for _, p := range allGroups(rePhone, text) {
			rec.AddPhone(p)
		}
		for _, pm := range allGroups(rePromo, text) {
			rec.AddPromotion(pm)
		}

		for _, block := range allGroups(reItemBlock, text) {
			attrs := parseAttrBlock(block)
			rec.AppendItem(&Item{
				PLU:     attrs["PluCode"],
				Name:    strings.TrimSpace(attrs["Name"]),
				DepCode: attrs["DepCode"],
				Qty:     floatAttr(attrs, "Quantity", 1),
				Price:   floatAttr(attrs, "Price", 0),
				Amount:  floatAttr(attrs, "Amount", 0),
			})
		}

		for _, re := range []*regexp.Regexp{reStartDateTime, reEndDateTime, reBusinessDate} {
			if m := re.FindStringSubmatch(text); m != nil {
				rec.AddTimestamp(timestamp.Parse(m[1]))
			}
		}
		rec.SettleTime()
	}
}

func uniqueMatches(re *regexp.Regexp, text string) []string {
	var ans []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ans = append(ans, m[1])
		}
	}
	return ans
}

func allGroups(re *regexp.Regexp, text string) []string {
	var ans []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		ans = append(ans, m[1])
	}
	return ans
}

func parseAttrBlock(block string) map[string]string {
	ans := make(map[string]string)
	for _, m := range reAttr.FindAllStringSubmatch(block, -1) {
		ans[m[1]] = m[2]
	}
	return ans
}

func floatAttr(attrs map[string]string, name string, dflt float64) float64 {
	v, ok := attrs[name]
	if !ok || v == "" {
		return dflt
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return dflt
	}
	return f
}

// parseFloat converts an attribute value with a defensive default, the
// policy all numeric fields in POS fragments follow (qty missing or
// malformed means 1, monetary values mean 0).
func parseFloat(v string, dflt float64) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return dflt
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return dflt
	}
	return f
}
